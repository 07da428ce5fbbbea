package prepass

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"

	"github.com/specialistvlad/pdgsim/internal/ctxlog"
	"github.com/specialistvlad/pdgsim/internal/pdg"
	"github.com/specialistvlad/pdgsim/internal/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.DiscardHandler))
}

// lossless returns params that never prune or evict and, with zero-length
// events, never relax.
func lossless() Params {
	p := DefaultParams()
	p.MinMagnitude = 0
	p.MaxStates = 0
	p.D = 0
	p.KResolution = 1
	return p
}

func randomSequence(rng *rand.Rand, reps int) *sequence.Sequence {
	seq := &sequence.Sequence{Name: "random"}
	for range reps {
		rep := sequence.Repetition{
			Pulse: sequence.Pulse{Angle: rng.Float64() * math.Pi, Phase: rng.Float64() * 2 * math.Pi},
		}
		for range 1 + rng.IntN(2) {
			rep.Events = append(rep.Events, sequence.Event{
				Gradient: [3]float64{float64(rng.IntN(5) - 2), float64(rng.IntN(3) - 1), 0},
				ADC:      rng.IntN(2) == 0,
			})
		}
		seq.Repetitions = append(seq.Repetitions, rep)
	}
	return seq
}

// echoTrain repeats an unspoiled pulse followed by a unit dephasing event,
// which grows the number of states with every repetition.
func echoTrain(n int, angle float64) *sequence.Sequence {
	seq := &sequence.Sequence{Name: "echo_train"}
	for range n {
		seq.Repetitions = append(seq.Repetitions, sequence.Repetition{
			Pulse:  sequence.Pulse{Angle: angle},
			Events: []sequence.Event{{Gradient: [3]float64{1, 0, 0}, ADC: true}},
		})
	}
	return seq
}

func TestComputeGraph_ConservesNormWithoutRelaxation(t *testing.T) {
	t.Parallel()

	for seed := uint64(1); seed <= 5; seed++ {
		rng := rand.New(rand.NewPCG(seed, 42))
		seq := randomSequence(rng, 6)

		g, state, err := ComputeGraph(testContext(), seq, lossless())
		require.NoError(t, err)
		require.NoError(t, g.Validate())
		assert.InDelta(t, 1.0, state.Norm(), 1e-9, "seed %d", seed)
		assert.False(t, g.Overflow.Occurred())
		assert.Zero(t, state.Pruned)
	}
}

func TestComputeGraph_RelaxationReducesNorm(t *testing.T) {
	t.Parallel()

	seq := sequence.FID(math.Pi/2, 0, 0.05)
	p := lossless()
	p.T1, p.T2 = 1, 0.05
	_, state, err := ComputeGraph(testContext(), seq, p)
	require.NoError(t, err)

	// Z(0) recovers to 1-e^{-0.05}, the transverse state decays to e^{-1}.
	require.Len(t, state.Nodes, 2)
	assert.InDelta(t, 1-math.Exp(-0.05), real(state.Nodes[0].Weight), 1e-12)
	assert.InDelta(t, math.Exp(-1), real(state.Nodes[1].Weight), 1e-12)
}

func TestComputeGraph_FIDStructure(t *testing.T) {
	t.Parallel()

	seq := sequence.FID(math.Pi/2, 0.4, 1e-3)
	seq.Repetitions[0].Events[0].Gradient = [3]float64{2, 0, 0}
	seq.Repetitions[0].Events = append(seq.Repetitions[0].Events, sequence.Event{Duration: 1, Gradient: [3]float64{5, 0, 0}})

	p := lossless()
	p.KResolution = 10
	g, _, err := ComputeGraph(testContext(), seq, p)
	require.NoError(t, err)
	require.Len(t, g.Steps, 3)
	require.Len(t, g.Samples, 1)

	adc := g.Steps[1]
	assert.True(t, adc.ADC)
	require.Len(t, adc.Nodes, 2)
	assert.Equal(t, pdg.KindPlus, adc.Nodes[1].Kind)
	assert.Equal(t, [3]int32{20, 0, 0}, adc.Nodes[1].K)
	assert.Equal(t, [3]float64{2, 0, 0}, g.Samples[0].K)
	assert.Equal(t, [3]float64{2, 0, 0}, g.Samples[0].NominalK)

	// Nothing after the last sample is needed, only Z(0) survives.
	assert.Len(t, g.Steps[2].Nodes, 1)
	assert.Positive(t, g.Stats.Compacted)
}

func TestComputeGraph_SpinEchoRefocuses(t *testing.T) {
	t.Parallel()

	// The long tail lets the previous line decay below the threshold.
	seq, err := sequence.SpinEcho(sequence.CartesianOptions{Matrix: [2]int{4, 2}, Dwell: 1e-4, EchoTime: 10e-3, Tail: 5})
	require.NoError(t, err)
	p := DefaultParams()
	p.MinMagnitude = 1e-6
	g, _, err := ComputeGraph(testContext(), seq, p)
	require.NoError(t, err)

	require.Len(t, g.Samples, seq.ADCCount())
	for i, s := range g.Samples {
		assert.Equal(t, s.NominalK, s.K, "sample %d", i)
	}
}

func TestComputeGraph_PruningShrinksGraph(t *testing.T) {
	t.Parallel()

	seq, err := sequence.GRE(sequence.CartesianOptions{
		Matrix: [2]int{8, 8}, FlipAngle: 0.5, Dwell: 1e-4, Prephase: 1e-3, Tail: 5e-3, SpoilerMoment: 8,
	})
	require.NoError(t, err)

	var sizes []int
	for _, threshold := range []float64{1e-1, 1e-3, 1e-6} {
		p := DefaultParams()
		p.MinMagnitude = threshold
		g, _, err := ComputeGraph(testContext(), seq, p)
		require.NoError(t, err)
		sizes = append(sizes, g.NodeCount())
	}
	assert.LessOrEqual(t, sizes[0], sizes[1])
	assert.LessOrEqual(t, sizes[1], sizes[2])
}

func TestComputeGraph_Budget(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		seq       *sequence.Sequence
		mutate    func(*Params)
		maxAlive  int
		evicted   bool
		clipped   bool
		firstStep int
	}{
		{
			name:      "global eviction",
			seq:       echoTrain(8, math.Pi/3),
			mutate:    func(p *Params) { p.MaxStates = 3; p.Eviction = EvictGlobal },
			maxAlive:  1 + 3,
			evicted:   true,
			firstStep: -1,
		},
		{
			name:      "per-kind eviction",
			seq:       echoTrain(8, math.Pi/3),
			mutate:    func(p *Params) { p.MaxStates = 3; p.Eviction = EvictPerKind },
			maxAlive:  1 + 2*3,
			evicted:   true,
			firstStep: -1,
		},
		{
			// The third dephasing event pushes k from 2000 to 3000.
			name:      "dephasing range",
			seq:       echoTrain(6, math.Pi/3),
			mutate:    func(p *Params) { p.KResolution = 1000; p.MaxOrder = 2500 },
			clipped:   true,
			firstStep: 5,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := lossless()
			tc.mutate(&p)

			g, state, err := ComputeGraph(testContext(), tc.seq, p)
			require.NoError(t, err, "overflow never fails the build")
			assert.True(t, g.Overflow.Occurred())
			assert.Equal(t, g.Stats.Evicted, g.Overflow.Evicted)
			assert.Equal(t, g.Stats.Clipped, g.Overflow.Clipped)
			assert.Equal(t, tc.evicted, g.Overflow.Evicted > 0)
			assert.Equal(t, tc.clipped, g.Overflow.Clipped > 0)
			if tc.firstStep >= 0 {
				assert.Equal(t, tc.firstStep, g.Overflow.FirstStep)
			}
			if tc.maxAlive == 0 {
				return
			}
			assert.LessOrEqual(t, len(state.Nodes), tc.maxAlive)
			for i := range g.Steps {
				if g.Steps[i].Kind == pdg.StepFree {
					assert.LessOrEqual(t, len(g.Steps[i].Nodes), tc.maxAlive)
				}
			}
		})
	}
}

func TestComputeGraph_TracksDephasingTime(t *testing.T) {
	t.Parallel()

	seq := &sequence.Sequence{
		Name: "se",
		Repetitions: []sequence.Repetition{
			{
				Pulse:  sequence.Pulse{Usage: sequence.UsageExcitation, Angle: math.Pi / 2},
				Events: []sequence.Event{{Duration: 5e-3}},
			},
			{
				Pulse:  sequence.Pulse{Usage: sequence.UsageRefocusing, Angle: math.Pi, Phase: math.Pi / 2},
				Events: []sequence.Event{{Duration: 5e-3, ADC: true}},
			},
		},
	}

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		g, _, err := ComputeGraph(testContext(), seq, lossless())
		require.NoError(t, err)
		assert.False(t, g.TracksTau)
		for i := range g.Steps {
			for _, n := range g.Steps[i].Nodes {
				assert.Zero(t, n.Tau)
			}
		}
	})

	t.Run("enabled", func(t *testing.T) {
		t.Parallel()
		p := lossless()
		p.T2Dash = 0.02
		g, _, err := ComputeGraph(testContext(), seq, p)
		require.NoError(t, err)
		require.True(t, g.TracksTau)
		require.NoError(t, g.Validate())

		taus := func(step int) map[int64]bool {
			out := map[int64]bool{}
			for _, n := range g.Steps[step].Nodes {
				if n.Kind == pdg.KindPlus {
					out[n.Tau] = true
				}
			}
			return out
		}
		half := pdg.Ticks(5e-3)
		assert.True(t, taus(1)[half], "free precession accumulates dephasing time")
		assert.True(t, taus(2)[-half], "refocusing negates it")
		assert.True(t, taus(3)[0], "the echo is rephased")
	})
}

func TestComputeGraph_TransmitFieldSet(t *testing.T) {
	t.Parallel()

	seq := echoTrain(3, math.Pi)
	p := lossless()
	p.MinMagnitude = 1e-9

	nominal, _, err := ComputeGraph(testContext(), seq, p)
	require.NoError(t, err)

	p.B1 = []float64{0.5, 1}
	spread, _, err := ComputeGraph(testContext(), seq, p)
	require.NoError(t, err)

	// Perfect inversions leave no transverse states; half-strength ones do.
	assert.Greater(t, spread.NodeCount(), nominal.NodeCount())
	for i := range spread.Steps {
		for _, e := range spread.Steps[i].Edges {
			if spread.Steps[i].Kind == pdg.StepPulse {
				want := pdg.NewPulseFactors(seq.Repetitions[0].Pulse.Angle, 0)[e.Rel]
				assert.InDelta(t, 0, cmplx.Abs(e.Factor-want), 1e-12, "edges keep the nominal coefficient")
			}
		}
	}

	p.B1 = []float64{0}
	_, _, err = ComputeGraph(testContext(), seq, p)
	assert.ErrorContains(t, err, "invalid pre-pass parameters")
}

func TestComputeGraph_BackgroundContext(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		_, _, err := ComputeGraph(context.Background(), sequence.FID(math.Pi/2, 0, 0), DefaultParams())
		assert.NoError(t, err)
	})
}

func TestComputeGraph_Nyquist(t *testing.T) {
	t.Parallel()

	seq := sequence.FID(math.Pi/2, 0, 0)
	seq.Repetitions[0].Events[0].Gradient = [3]float64{3, 0, 0}

	p := lossless()
	p.Nyquist = [3]float64{2, 0, 0}
	g, _, err := ComputeGraph(testContext(), seq, p)
	require.NoError(t, err)
	require.Len(t, g.Samples, 1)
	for _, e := range g.Steps[1].Edges {
		assert.False(t, e.ADC)
	}
	assert.Equal(t, [3]float64{3, 0, 0}, g.Samples[0].K, "falls back to the nominal moment")
}

func TestComputeGraph_Failures(t *testing.T) {
	t.Parallel()

	t.Run("non-finite gradient", func(t *testing.T) {
		t.Parallel()
		seq := sequence.FID(math.Pi/2, 0, 0)
		seq.Repetitions[0].Events[0].Gradient[0] = math.NaN()
		g, state, err := ComputeGraph(testContext(), seq, DefaultParams())
		assert.True(t, errors.Is(err, sequence.ErrMalformed))
		assert.Nil(t, g)
		assert.Nil(t, state)
	})

	t.Run("gradient beyond maximum order", func(t *testing.T) {
		t.Parallel()
		seq := sequence.FID(math.Pi/2, 0, 0)
		seq.Repetitions[0].Events[0].Gradient[2] = 1e6
		p := DefaultParams()
		p.MaxOrder = 1000
		_, _, err := ComputeGraph(testContext(), seq, p)
		var malformed *sequence.MalformedError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, "gradient.z", malformed.Field)
	})

	t.Run("invalid params", func(t *testing.T) {
		t.Parallel()
		p := DefaultParams()
		p.Eviction = "random"
		_, _, err := ComputeGraph(testContext(), sequence.FID(1, 0, 0), p)
		assert.ErrorContains(t, err, "invalid pre-pass parameters")
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(testContext())
		cancel()
		_, _, err := ComputeGraph(ctx, sequence.FID(1, 0, 0), DefaultParams())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCompact_KeepsGroundState(t *testing.T) {
	t.Parallel()

	// No ADC at all: every table collapses to Z(0).
	seq := randomSequence(rand.New(rand.NewPCG(3, 3)), 4)
	for r := range seq.Repetitions {
		for e := range seq.Repetitions[r].Events {
			seq.Repetitions[r].Events[e].ADC = false
		}
	}
	g, _, err := ComputeGraph(testContext(), seq, lossless())
	require.NoError(t, err)
	require.NoError(t, g.Validate())
	for i := range g.Steps {
		require.Len(t, g.Steps[i].Nodes, 1)
		assert.True(t, g.Steps[i].Nodes[0].IsGround())
	}
}
