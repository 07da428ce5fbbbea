package prepass

import "github.com/specialistvlad/pdgsim/internal/pdg"

// compact removes every state that has no path to an ADC edge and
// re-indexes the tables. Z(0) stays at index 0 of every table whether or
// not it is needed, so the ground-state invariant survives. The signal is
// unchanged: a removed state can never reach a sample.
func compact(g *pdg.Graph) {
	n := len(g.Steps)
	if n == 0 {
		return
	}

	needed := make([][]bool, n)
	for i := n - 1; i >= 0; i-- {
		s := &g.Steps[i]
		need := make([]bool, len(s.Nodes))
		for _, e := range s.Edges {
			if e.ADC {
				need[e.Dst] = true
			}
		}
		if i+1 < n {
			for _, e := range g.Steps[i+1].Edges {
				if needed[i+1][e.Dst] {
					need[e.Src] = true
				}
			}
		}
		needed[i] = need
	}

	// remap[i][j] is the new index of node j of table i, or -1.
	remap := make([][]int32, n)
	for i := range g.Steps {
		s := &g.Steps[i]
		idx := make([]int32, len(s.Nodes))
		nodes := s.Nodes[:0:0]
		for j := range s.Nodes {
			if j != 0 && !needed[i][j] {
				idx[j] = -1
				continue
			}
			idx[j] = int32(len(nodes))
			nodes = append(nodes, s.Nodes[j])
		}
		remap[i] = idx

		edges := s.Edges[:0:0]
		for _, e := range s.Edges {
			if idx[e.Dst] < 0 {
				continue
			}
			if i > 0 {
				if remap[i-1][e.Src] < 0 {
					continue
				}
				e.Src = remap[i-1][e.Src]
			}
			e.Dst = idx[e.Dst]
			edges = append(edges, e)
		}
		s.Nodes = nodes
		s.Edges = edges
	}
}
