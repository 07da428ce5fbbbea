package pdg

import (
	"errors"
	"fmt"
)

// ErrInconsistent is the sentinel wrapped by every InconsistencyError.
var ErrInconsistent = errors.New("graph inconsistency")

// InconsistencyError reports a graph that does not match its own structure
// or the parameters it is replayed with. Step is -1 for graph-level
// problems.
type InconsistencyError struct {
	Step   int
	Reason string
}

// Error implements the error interface.
func (e *InconsistencyError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("%s: %s", ErrInconsistent, e.Reason)
	}
	return fmt.Sprintf("%s: step %d: %s", ErrInconsistent, e.Step, e.Reason)
}

// Unwrap lets errors.Is match ErrInconsistent.
func (e *InconsistencyError) Unwrap() error {
	return ErrInconsistent
}

func inconsistent(step int, format string, args ...any) error {
	return &InconsistencyError{Step: step, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the structural invariants of g: node 0 of every table is
// Z(0), every edge addresses existing nodes, ADC edges only appear on ADC
// steps and point at + nodes, and sample indices match the sample list.
// Dephasing times are only allowed when the graph tracks them.
func (g *Graph) Validate() error {
	if g.KResolution <= 0 {
		return inconsistent(-1, "k resolution must be positive, got %d", g.KResolution)
	}
	if len(g.Root) == 0 || !g.Root[0].IsGround() {
		return inconsistent(-1, "root table must start with Z(0)")
	}
	next := 0
	for i := range g.Steps {
		s := &g.Steps[i]
		prev := g.Table(i)
		if len(s.Nodes) == 0 || !s.Nodes[0].IsGround() {
			return inconsistent(i, "table must start with Z(0)")
		}
		if !g.TracksTau {
			for j := range s.Nodes {
				if s.Nodes[j].Tau != 0 {
					return inconsistent(i, "node %d carries a dephasing time but the graph does not track it", j)
				}
			}
		}
		if s.ADC {
			if s.Kind != StepFree {
				return inconsistent(i, "ADC on a pulse step")
			}
			if s.Sample != next {
				return inconsistent(i, "sample index %d, expected %d", s.Sample, next)
			}
			next++
		}
		for j := range s.Edges {
			e := &s.Edges[j]
			if e.Src < 0 || int(e.Src) >= len(prev) {
				return inconsistent(i, "edge %d source %d out of range [0, %d)", j, e.Src, len(prev))
			}
			if e.Dst < 0 || int(e.Dst) >= len(s.Nodes) {
				return inconsistent(i, "edge %d destination %d out of range [0, %d)", j, e.Dst, len(s.Nodes))
			}
			if e.Rel.IsFree() != (s.Kind == StepFree) {
				return inconsistent(i, "edge %d relation %s on a %s step", j, e.Rel, s.Kind)
			}
			if e.ADC && (!s.ADC || s.Nodes[e.Dst].Kind != KindPlus) {
				return inconsistent(i, "edge %d flagged ADC outside a transverse sample", j)
			}
		}
	}
	if next != len(g.Samples) {
		return inconsistent(-1, "graph has %d ADC steps but %d samples", next, len(g.Samples))
	}
	return nil
}

// Check verifies that g can be replayed with the given dephasing resolution
// and maximum order, on top of the structural checks of Validate.
func (g *Graph) Check(kres, maxOrder int32) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if g.KResolution != kres {
		return inconsistent(-1, "graph built with k resolution %d, replay expects %d", g.KResolution, kres)
	}
	for i := range g.Steps {
		for _, n := range g.Steps[i].Nodes {
			for _, v := range n.K {
				if v > maxOrder || v < -maxOrder {
					return inconsistent(i, "dephasing index %v exceeds maximum order %d", n.K, maxOrder)
				}
			}
		}
	}
	return nil
}
