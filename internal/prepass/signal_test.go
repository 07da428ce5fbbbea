package prepass

import (
	"math"
	"testing"

	"github.com/specialistvlad/pdgsim/internal/mainpass"
	"github.com/specialistvlad/pdgsim/internal/pdg"
	"github.com/specialistvlad/pdgsim/internal/phantom"
	"github.com/specialistvlad/pdgsim/internal/sequence"
	"github.com/specialistvlad/pdgsim/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simulate(t *testing.T, g *pdg.Graph, ph phantom.Phantom, p Params) *signal.Trace {
	t.Helper()
	trace, err := mainpass.ExecuteGraph(testContext(), g, ph, mainpass.Params{KResolution: p.KResolution, MaxOrder: p.MaxOrder, Workers: 2})
	require.NoError(t, err)
	return trace
}

func peak(tr *signal.Trace) float64 {
	m := 0.0
	for _, s := range tr.Samples {
		for _, v := range s.Values {
			m = max(m, math.Hypot(real(v), imag(v)))
		}
	}
	return m
}

func TestCompaction_PreservesSignal(t *testing.T) {
	t.Parallel()

	seq, err := sequence.GRE(sequence.CartesianOptions{Matrix: [2]int{4, 4}, FlipAngle: 0.5, Dwell: 1e-4, Tail: 5e-3})
	require.NoError(t, err)
	p := DefaultParams()
	ph := phantom.NewDiskGrid([3]int{4, 4, 1}, p.FOV, phantom.Tissue{T1: 1, T2: 0.1}, []phantom.Disk{
		{Radius: 0.3, Tissue: phantom.Tissue{PD: 1, T1: 1, T2: 0.1, B0: 5}},
	})

	full, _, err := computeGraph(testContext(), seq, p, false)
	require.NoError(t, err)
	compacted, _, err := computeGraph(testContext(), seq, p, true)
	require.NoError(t, err)
	require.NoError(t, compacted.Validate())
	assert.Less(t, compacted.NodeCount(), full.NodeCount())

	a, b := simulate(t, full, ph, p), simulate(t, compacted, ph, p)
	assert.Less(t, signal.MaxAbsDiff(a, b), 1e-12)
}

func TestPruning_ConvergesToLosslessSignal(t *testing.T) {
	t.Parallel()

	seq, err := sequence.GRE(sequence.CartesianOptions{Matrix: [2]int{8, 4}, FlipAngle: 0.5, Dwell: 1e-4, Tail: 2e-3})
	require.NoError(t, err)
	ph := phantom.NewUniformGrid([3]int{2, 2, 1}, [3]float64{0.2, 0.2, 0.005}, phantom.Tissue{PD: 1, T1: 1, T2: 0.1})

	run := func(threshold float64) *signal.Trace {
		p := DefaultParams()
		p.T1, p.T2, p.D = 1, 0.1, 0
		p.MaxStates = 0
		p.MinMagnitude = threshold
		g, _, err := ComputeGraph(testContext(), seq, p)
		require.NoError(t, err)
		return simulate(t, g, ph, p)
	}

	reference := run(0)
	coarse := signal.MaxAbsDiff(run(1e-1), reference)
	fine := signal.MaxAbsDiff(run(1e-4), reference)

	assert.LessOrEqual(t, fine, coarse)
	assert.Less(t, fine, 0.02*peak(reference))
}
