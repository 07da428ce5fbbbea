package pdg

import (
	"fmt"
	"math"
	"time"
)

// Kind distinguishes transverse from longitudinal states.
type Kind uint8

const (
	// KindZ is a longitudinal state Z(k).
	KindZ Kind = iota
	// KindPlus is a transverse state F+(k).
	KindPlus
)

func (k Kind) String() string {
	switch k {
	case KindZ:
		return "Z"
	case KindPlus:
		return "+"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Node is one magnetisation state. K is the dephasing index: the gradient
// moment in cycles per field of view multiplied by the graph's KResolution.
// Tau is the reversible dephasing time in TauTick units; it is only non-zero
// in graphs that track it. Weight is the state's value in the idealised
// pre-pass ensemble.
type Node struct {
	Kind   Kind
	K      [3]int32
	Tau    int64
	Weight complex128
}

// TauTick is the resolution of Node.Tau in seconds.
const TauTick = 1e-9

// Ticks converts a duration in seconds to TauTick units.
func Ticks(dt float64) int64 {
	return int64(math.Round(dt / TauTick))
}

// DephasingTime returns Tau in seconds.
func (n *Node) DephasingTime() float64 {
	return float64(n.Tau) * TauTick
}

// IsGround reports whether n is Z(0).
func (n *Node) IsGround() bool {
	return n.Kind == KindZ && n.K == [3]int32{} && n.Tau == 0
}

// Relation names the operator element an edge represents.
type Relation uint8

const (
	// RelKeep is +(k) to +(k) under a pulse.
	RelKeep Relation = iota
	// RelFlip is +(k) to +(-k) under a pulse, read conjugated.
	RelFlip
	// RelPlusToZ is +(k) to Z(k) under a pulse.
	RelPlusToZ
	// RelPlusToZConj is +(k) to Z(-k) under a pulse, read conjugated.
	RelPlusToZConj
	// RelZToZ is Z(k) to Z(k) under a pulse.
	RelZToZ
	// RelZToPlus is Z(k) to +(k) under a pulse.
	RelZToPlus
	// RelZToPlusConj is Z(k) to +(-k) under a pulse, read conjugated.
	RelZToPlusConj
	// RelTransverse is free precession and T2 decay of a + state.
	RelTransverse
	// RelLongitudinal is T1 decay of a dephased Z state.
	RelLongitudinal
	// RelRecovery is T1 recovery of Z(0) toward equilibrium.
	RelRecovery
)

var relationNames = [...]string{
	RelKeep:         "keep",
	RelFlip:         "flip",
	RelPlusToZ:      "plus_to_z",
	RelPlusToZConj:  "plus_to_z_conj",
	RelZToZ:         "z_to_z",
	RelZToPlus:      "z_to_plus",
	RelZToPlusConj:  "z_to_plus_conj",
	RelTransverse:   "transverse",
	RelLongitudinal: "longitudinal",
	RelRecovery:     "recovery",
}

func (r Relation) String() string {
	if int(r) < len(relationNames) {
		return relationNames[r]
	}
	return fmt.Sprintf("Relation(%d)", uint8(r))
}

// IsFree reports whether r belongs to a free-evolution step.
func (r Relation) IsFree() bool {
	return r >= RelTransverse
}

// Edge is a template transition from node Src of the previous table to node
// Dst of the current table.
type Edge struct {
	Src, Dst int32
	Rel      Relation
	// Conj means the source value is conjugated before use.
	Conj bool
	// Factor is the voxel-independent coefficient. It is the rotation
	// element for pulse steps and 1 for free steps.
	Factor complex128
	// B is the diffusion weighting of a free step in s/m² (rad² s/m²).
	B float64
	// ADC marks traversals that contribute to the step's sample.
	ADC bool
}

// StepKind distinguishes rotations from free evolution.
type StepKind uint8

const (
	StepPulse StepKind = iota
	StepFree
)

func (k StepKind) String() string {
	if k == StepPulse {
		return "pulse"
	}
	return "free"
}

// Step is one time slice of the graph.
type Step struct {
	Kind StepKind
	// Rep and Event locate the step in the sequence. Event is -1 for the
	// pulse and for the free step covering the pulse duration.
	Rep, Event int

	// Pulse parameters.
	Usage string
	Angle float64
	Phase float64

	// Free-step parameters. Shift is the dephasing increment in index
	// units. Sample is the sample index when ADC is set, -1 otherwise.
	Duration float64
	Shift    [3]int32
	ADC      bool
	Sample   int
	ADCPhase float64

	Nodes []Node
	Edges []Edge
}

// SampleInfo describes one ADC sample of the graph.
type SampleInfo struct {
	Rep, Event int
	// K is the moment of the dominant pathway in cycles per FOV.
	K [3]float64
	// NominalK is the moment predicted by the sequence's gradient sum.
	NominalK [3]float64
	ADCPhase float64
}

// Stats are counters collected while building a graph.
type Stats struct {
	Created   int
	Pruned    int
	Evicted   int
	Clipped   int
	Compacted int
	MaxAlive  int
	Nodes     int
	Edges     int
	Duration  time.Duration
}

// Overflow is the non-fatal diagnostic raised when the state budget or the
// dephasing range forced the builder to drop states that were above the
// pruning threshold. A graph with an overflow may produce a lossy signal.
type Overflow struct {
	Evicted   int
	Clipped   int
	FirstStep int
}

// Occurred reports whether any state was dropped by budget or range.
func (o Overflow) Occurred() bool {
	return o.Evicted > 0 || o.Clipped > 0
}

// Graph is a complete Phase Distribution Graph. It must not be modified once
// built.
type Graph struct {
	KResolution int32
	// TracksTau is set when nodes carry their dephasing time, which is
	// what T2' attenuation is computed from.
	TracksTau bool
	FOV       [3]float64
	// Nyquist is the per-axis cutoff in cycles per FOV, 0 when disabled.
	Nyquist  [3]float64
	Root     []Node
	Steps    []Step
	Samples  []SampleInfo
	Stats    Stats
	Overflow Overflow
}

// NewRoot returns the initial table: Z(0) at equilibrium.
func NewRoot() []Node {
	return []Node{{Kind: KindZ, Weight: 1}}
}

// Table returns the node table before step i, which is Root for i == 0.
func (g *Graph) Table(i int) []Node {
	if i == 0 {
		return g.Root
	}
	return g.Steps[i-1].Nodes
}

// MaxNodes returns the size of the largest table, which bounds the buffers
// needed to replay the graph.
func (g *Graph) MaxNodes() int {
	n := len(g.Root)
	for i := range g.Steps {
		n = max(n, len(g.Steps[i].Nodes))
	}
	return n
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	n := 0
	for i := range g.Steps {
		n += len(g.Steps[i].Edges)
	}
	return n
}

// NodeCount returns the number of nodes over all tables, root included.
func (g *Graph) NodeCount() int {
	n := len(g.Root)
	for i := range g.Steps {
		n += len(g.Steps[i].Nodes)
	}
	return n
}

// Moment converts a dephasing index to cycles per FOV.
func (g *Graph) Moment(k [3]int32) [3]float64 {
	var m [3]float64
	for a := range m {
		m[a] = float64(k[a]) / float64(g.KResolution)
	}
	return m
}

// Canonical reports whether (k, tau) is the stored representative of the
// pair {(k, tau), (-k, -tau)}: zero, or with its first non-zero component
// positive. Tau is compared after k.
func Canonical(k [3]int32, tau int64) bool {
	for _, v := range k {
		if v != 0 {
			return v > 0
		}
	}
	return tau >= 0
}

// Neg returns -k.
func Neg(k [3]int32) [3]int32 {
	return [3]int32{-k[0], -k[1], -k[2]}
}
