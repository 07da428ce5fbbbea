package pdgexport

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/specialistvlad/pdgsim/internal/ctxlog"
	"github.com/specialistvlad/pdgsim/internal/graphstore/graphstoretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	cypher string
	params map[string]any
}

type recorder struct {
	calls  []call
	failOn string
}

func (r *recorder) Run(_ context.Context, cypher string, params map[string]any) error {
	r.calls = append(r.calls, call{cypher, params})
	if r.failOn != "" && strings.Contains(cypher, r.failOn) {
		return errors.New("boom")
	}
	return nil
}

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.DiscardHandler))
}

func TestRows(t *testing.T) {
	g := graphstoretest.SmallGraph()

	nodes := NodeRows("g1", g)
	require.Len(t, nodes, g.NodeCount())
	assert.Equal(t, "t0/n0", nodes[0]["id"])
	assert.Equal(t, "Z", nodes[0]["kind"])
	last := nodes[len(nodes)-1]
	assert.Equal(t, "t2/n1", last["id"])
	assert.Equal(t, "+", last["kind"])
	assert.Equal(t, 1.0, last["kx"])
	assert.Equal(t, 0.0, last["tau"])

	edges := EdgeRows("g1", g)
	require.Len(t, edges, g.EdgeCount())
	assert.Equal(t, "t0/n0", edges[0]["src"])
	assert.Equal(t, "t1/n1", edges[0]["dst"])
	assert.Equal(t, "z_to_plus", edges[0]["relation"])
	assert.Equal(t, true, edges[2]["adc"])
}

func TestExport_Batches(t *testing.T) {
	r := &recorder{}
	e := New(r)
	e.BatchSize = 2
	g := graphstoretest.SmallGraph()

	require.NoError(t, e.Export(testContext(), "g1", g))

	// index, clean, 5 states in 3 batches, 3 edges in 2 batches.
	require.Len(t, r.calls, 7)
	assert.Contains(t, r.calls[0].cypher, "CREATE INDEX")
	assert.Equal(t, "g1", r.calls[1].params["graph"])
	assert.Len(t, r.calls[2].params["batch"], 2)
	assert.Len(t, r.calls[4].params["batch"], 1)
	assert.Contains(t, r.calls[5].cypher, "EVOLVES")
	assert.NoError(t, e.Close(testContext()))
}

func TestExport_PropagatesErrors(t *testing.T) {
	r := &recorder{failOn: "EVOLVES"}
	err := New(r).Export(testContext(), "g1", graphstoretest.SmallGraph())
	assert.ErrorContains(t, err, "failed to export edges")
}
