// Package pdgexport loads a Phase Distribution Graph into Neo4j for
// inspection. States become (:PDGState) nodes and edges become
// [:EVOLVES] relationships, both tagged with the graph key so several graphs
// can share one database.
package pdgexport

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/specialistvlad/pdgsim/internal/ctxlog"
	"github.com/specialistvlad/pdgsim/internal/pdg"
)

// DefaultBatchSize bounds the rows sent per UNWIND query.
const DefaultBatchSize = 5000

// Runner executes one Cypher statement.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) error
}

// driverRunner runs statements through a Neo4j driver.
type driverRunner struct {
	driver neo4j.DriverWithContext
}

func (r *driverRunner) Run(ctx context.Context, cypher string, params map[string]any) error {
	_, err := neo4j.ExecuteQuery(ctx, r.driver, cypher, params, neo4j.EagerResultTransformer)
	return err
}

// Exporter writes graphs through a Runner.
type Exporter struct {
	runner    Runner
	close     func(context.Context) error
	BatchSize int
}

// Connect opens a Neo4j driver and verifies connectivity.
func Connect(ctx context.Context, uri, user, password string) (*Exporter, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to reach neo4j at %s: %w", uri, err)
	}
	return &Exporter{runner: &driverRunner{driver: driver}, close: driver.Close, BatchSize: DefaultBatchSize}, nil
}

// New returns an exporter on top of an arbitrary runner.
func New(r Runner) *Exporter {
	return &Exporter{runner: r, BatchSize: DefaultBatchSize}
}

// Close releases the driver, if any.
func (e *Exporter) Close(ctx context.Context) error {
	if e.close == nil {
		return nil
	}
	return e.close(ctx)
}

func stateID(table, index int) string {
	return fmt.Sprintf("t%d/n%d", table, index)
}

// NodeRows returns one row per state. Table 0 is the root, table i+1 the
// table after step i.
func NodeRows(key string, g *pdg.Graph) []map[string]any {
	rows := make([]map[string]any, 0, g.NodeCount())
	for t := 0; t <= len(g.Steps); t++ {
		for i, n := range g.Table(t) {
			m := g.Moment(n.K)
			rows = append(rows, map[string]any{
				"graph": key,
				"id":    stateID(t, i),
				"table": t,
				"kind":  n.Kind.String(),
				"kx":    m[0],
				"ky":    m[1],
				"kz":    m[2],
				"tau":   n.DephasingTime(),
				"re":    real(n.Weight),
				"im":    imag(n.Weight),
			})
		}
	}
	return rows
}

// EdgeRows returns one row per edge.
func EdgeRows(key string, g *pdg.Graph) []map[string]any {
	rows := make([]map[string]any, 0, g.EdgeCount())
	for s := range g.Steps {
		step := &g.Steps[s]
		for _, e := range step.Edges {
			rows = append(rows, map[string]any{
				"graph":     key,
				"src":       stateID(s, int(e.Src)),
				"dst":       stateID(s+1, int(e.Dst)),
				"step":      s,
				"step_kind": step.Kind.String(),
				"relation":  e.Rel.String(),
				"conj":      e.Conj,
				"re":        real(e.Factor),
				"im":        imag(e.Factor),
				"adc":       e.ADC,
			})
		}
	}
	return rows
}

const (
	cypherIndex = "CREATE INDEX pdg_state_key IF NOT EXISTS FOR (n:PDGState) ON (n.graph, n.id)"
	cypherClean = "MATCH (n:PDGState {graph: $graph}) DETACH DELETE n"
	cypherNodes = `UNWIND $batch AS row
		 MERGE (n:PDGState {graph: row.graph, id: row.id})
		 SET n.table = row.table, n.kind = row.kind,
		     n.kx = row.kx, n.ky = row.ky, n.kz = row.kz, n.tau = row.tau,
		     n.re = row.re, n.im = row.im`
	cypherEdges = `UNWIND $batch AS row
		 MATCH (a:PDGState {graph: row.graph, id: row.src}), (b:PDGState {graph: row.graph, id: row.dst})
		 MERGE (a)-[r:EVOLVES {step: row.step}]->(b)
		 SET r.step_kind = row.step_kind, r.relation = row.relation, r.conj = row.conj,
		     r.re = row.re, r.im = row.im, r.adc = row.adc`
)

// Export replaces any previous copy of the graph stored under key.
func (e *Exporter) Export(ctx context.Context, key string, g *pdg.Graph) error {
	logger := ctxlog.FromContext(ctx)
	if err := e.runner.Run(ctx, cypherIndex, nil); err != nil {
		return fmt.Errorf("failed to create pdg index: %w", err)
	}
	if err := e.runner.Run(ctx, cypherClean, map[string]any{"graph": key}); err != nil {
		return fmt.Errorf("failed to clean graph %s: %w", key, err)
	}
	nodes := NodeRows(key, g)
	logger.Debug("Exporting PDG states.", "graph", key, "count", len(nodes))
	if err := e.batched(ctx, cypherNodes, nodes); err != nil {
		return fmt.Errorf("failed to export states: %w", err)
	}
	edges := EdgeRows(key, g)
	logger.Debug("Exporting PDG edges.", "graph", key, "count", len(edges))
	if err := e.batched(ctx, cypherEdges, edges); err != nil {
		return fmt.Errorf("failed to export edges: %w", err)
	}
	return nil
}

func (e *Exporter) batched(ctx context.Context, cypher string, rows []map[string]any) error {
	size := e.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	for lo := 0; lo < len(rows); lo += size {
		batch := rows[lo:min(len(rows), lo+size)]
		if err := e.runner.Run(ctx, cypher, map[string]any{"batch": batch}); err != nil {
			return err
		}
	}
	return nil
}
