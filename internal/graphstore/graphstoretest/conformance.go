// Package graphstoretest holds the behavioural tests every graphstore.Store
// implementation must pass.
package graphstoretest

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/pdgsim/internal/graphstore"
	"github.com/specialistvlad/pdgsim/internal/pdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SmallGraph returns a valid two-step graph: an excitation followed by one
// sampled free step.
func SmallGraph() *pdg.Graph {
	f := pdg.NewPulseFactors(math.Pi/2, 0)
	return &pdg.Graph{
		KResolution: 1,
		FOV:         [3]float64{0.2, 0.2, 0},
		Root:        pdg.NewRoot(),
		Steps: []pdg.Step{
			{
				Kind: pdg.StepPulse, Usage: "excitation", Angle: math.Pi / 2, Sample: -1,
				Nodes: []pdg.Node{{Kind: pdg.KindZ}, {Kind: pdg.KindPlus, Weight: f[pdg.RelZToPlus]}},
				Edges: []pdg.Edge{{Src: 0, Dst: 1, Rel: pdg.RelZToPlus, Factor: f[pdg.RelZToPlus]}},
			},
			{
				Kind: pdg.StepFree, Duration: 1e-3, Shift: [3]int32{1, 0, 0}, ADC: true, Sample: 0,
				Nodes: []pdg.Node{{Kind: pdg.KindZ}, {Kind: pdg.KindPlus, K: [3]int32{1, 0, 0}, Weight: 0.99}},
				Edges: []pdg.Edge{
					{Src: 0, Dst: 0, Rel: pdg.RelRecovery, Factor: 1},
					{Src: 1, Dst: 1, Rel: pdg.RelTransverse, Factor: 1, ADC: true},
				},
			},
		},
		Samples: []pdg.SampleInfo{{K: [3]float64{1, 0, 0}, NominalK: [3]float64{1, 0, 0}}},
	}
}

// Run exercises s through its whole contract. The store must be empty.
func Run(t *testing.T, s graphstore.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, graphstore.ErrNotFound))
	})

	t.Run("put then get", func(t *testing.T) {
		g := SmallGraph()
		require.NoError(t, s.Put(ctx, "a", g))
		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		if diff := cmp.Diff(g, got); diff != "" {
			t.Fatalf("stored graph mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("put replaces", func(t *testing.T) {
		g := SmallGraph()
		g.FOV = [3]float64{1, 1, 1}
		require.NoError(t, s.Put(ctx, "a", g))
		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, g.FOV, got.FOV)
	})

	t.Run("keys and delete", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "b", SmallGraph()))
		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []graphstore.Key{"a", "b"}, keys)

		require.NoError(t, s.Delete(ctx, "a"))
		require.NoError(t, s.Delete(ctx, "never-stored"))
		_, err = s.Get(ctx, "a")
		assert.ErrorIs(t, err, graphstore.ErrNotFound)

		keys, err = s.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []graphstore.Key{"b"}, keys)
	})
}
