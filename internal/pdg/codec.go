package pdg

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// FormatVersion is bumped whenever the encoded layout changes.
const FormatVersion = 2

type wireGraph struct {
	Version     int          `msgpack:"v"`
	KResolution int32        `msgpack:"kres"`
	TracksTau   bool         `msgpack:"tracks_tau,omitempty"`
	FOV         [3]float64   `msgpack:"fov"`
	Nyquist     [3]float64   `msgpack:"nyquist"`
	Root        []wireNode   `msgpack:"root"`
	Steps       []wireStep   `msgpack:"steps"`
	Samples     []SampleInfo `msgpack:"samples"`
	Stats       Stats        `msgpack:"stats"`
	Overflow    Overflow     `msgpack:"overflow"`
}

type wireNode struct {
	_msgpack struct{} `msgpack:",as_array"`
	Kind     Kind
	K        [3]int32
	Re, Im   float64
	Tau      int64
}

type wireEdge struct {
	_msgpack struct{} `msgpack:",as_array"`
	Src, Dst int32
	Rel      Relation
	Conj     bool
	Re, Im   float64
	B        float64
	ADC      bool
}

type wireStep struct {
	Kind     StepKind   `msgpack:"kind"`
	Rep      int        `msgpack:"rep"`
	Event    int        `msgpack:"event"`
	Usage    string     `msgpack:"usage,omitempty"`
	Angle    float64    `msgpack:"angle,omitempty"`
	Phase    float64    `msgpack:"phase,omitempty"`
	Duration float64    `msgpack:"dt,omitempty"`
	Shift    [3]int32   `msgpack:"shift"`
	ADC      bool       `msgpack:"adc,omitempty"`
	Sample   int        `msgpack:"sample"`
	ADCPhase float64    `msgpack:"adc_phase,omitempty"`
	Nodes    []wireNode `msgpack:"nodes"`
	Edges    []wireEdge `msgpack:"edges"`
}

func toWireNodes(nodes []Node) []wireNode {
	out := make([]wireNode, len(nodes))
	for i, n := range nodes {
		out[i] = wireNode{Kind: n.Kind, K: n.K, Re: real(n.Weight), Im: imag(n.Weight), Tau: n.Tau}
	}
	return out
}

func fromWireNodes(nodes []wireNode) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = Node{Kind: n.Kind, K: n.K, Tau: n.Tau, Weight: complex(n.Re, n.Im)}
	}
	return out
}

// Encode serialises g with msgpack.
func Encode(g *Graph) ([]byte, error) {
	w := wireGraph{
		Version:     FormatVersion,
		KResolution: g.KResolution,
		TracksTau:   g.TracksTau,
		FOV:         g.FOV,
		Nyquist:     g.Nyquist,
		Root:        toWireNodes(g.Root),
		Steps:       make([]wireStep, len(g.Steps)),
		Samples:     g.Samples,
		Stats:       g.Stats,
		Overflow:    g.Overflow,
	}
	for i := range g.Steps {
		s := &g.Steps[i]
		ws := wireStep{
			Kind: s.Kind, Rep: s.Rep, Event: s.Event,
			Usage: s.Usage, Angle: s.Angle, Phase: s.Phase,
			Duration: s.Duration, Shift: s.Shift, ADC: s.ADC, Sample: s.Sample, ADCPhase: s.ADCPhase,
			Nodes: toWireNodes(s.Nodes),
			Edges: make([]wireEdge, len(s.Edges)),
		}
		for j, e := range s.Edges {
			ws.Edges[j] = wireEdge{
				Src: e.Src, Dst: e.Dst, Rel: e.Rel, Conj: e.Conj,
				Re: real(e.Factor), Im: imag(e.Factor), B: e.B, ADC: e.ADC,
			}
		}
		w.Steps[i] = ws
	}
	data, err := msgpack.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph: %w", err)
	}
	return data, nil
}

// Decode parses a graph produced by Encode and validates its structure.
func Decode(data []byte) (*Graph, error) {
	var w wireGraph
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}
	if w.Version != FormatVersion {
		return nil, inconsistent(-1, "unsupported graph format version %d", w.Version)
	}
	g := &Graph{
		KResolution: w.KResolution,
		TracksTau:   w.TracksTau,
		FOV:         w.FOV,
		Nyquist:     w.Nyquist,
		Root:        fromWireNodes(w.Root),
		Steps:       make([]Step, len(w.Steps)),
		Samples:     w.Samples,
		Stats:       w.Stats,
		Overflow:    w.Overflow,
	}
	for i, ws := range w.Steps {
		s := Step{
			Kind: ws.Kind, Rep: ws.Rep, Event: ws.Event,
			Usage: ws.Usage, Angle: ws.Angle, Phase: ws.Phase,
			Duration: ws.Duration, Shift: ws.Shift, ADC: ws.ADC, Sample: ws.Sample, ADCPhase: ws.ADCPhase,
			Nodes: fromWireNodes(ws.Nodes),
			Edges: make([]Edge, len(ws.Edges)),
		}
		for j, e := range ws.Edges {
			s.Edges[j] = Edge{
				Src: e.Src, Dst: e.Dst, Rel: e.Rel, Conj: e.Conj,
				Factor: complex(e.Re, e.Im), B: e.B, ADC: e.ADC,
			}
		}
		g.Steps[i] = s
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
