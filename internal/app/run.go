package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/pdgsim/internal/config"
	"github.com/specialistvlad/pdgsim/internal/ctxlog"
	"github.com/specialistvlad/pdgsim/internal/graphstore"
	"github.com/specialistvlad/pdgsim/internal/mainpass"
	"github.com/specialistvlad/pdgsim/internal/pdg"
	"github.com/specialistvlad/pdgsim/internal/prepass"
	"github.com/specialistvlad/pdgsim/internal/reco"
	"github.com/specialistvlad/pdgsim/internal/sequence"
	"github.com/specialistvlad/pdgsim/internal/signal"
	"github.com/specialistvlad/pdgsim/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/specialistvlad/pdgsim/internal/app")

// Result is everything a run produced.
type Result struct {
	RunID    string
	Scenario *config.Scenario
	Key      graphstore.Key
	CacheHit bool
	Graph    *pdg.Graph
	Trace    *signal.Trace
	// Image is nil when the scenario has no reconstruction block.
	Image *reco.Image
}

// Run loads the scenario and executes the whole simulation pipeline.
func (a *App) Run(ctx context.Context) (res *Result, err error) {
	runID := uuid.NewString()
	ctx = ctxlog.WithLogger(ctx, a.logger.With("run_id", runID))
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Run method started.")
	defer func() { a.metrics.ObserveRun(err) }()

	ctx, span := tracer.Start(ctx, "app.Run")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", runID))

	sc, err := a.loader.Load(ctx, a.config.ScenarioPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario: %w", err)
	}
	logger.Debug("Scenario loaded.", "sequence", sc.Sequence.Type, "phantom", sc.Phantom.Type)

	seq, err := buildSequence(sc.Sequence)
	if err != nil {
		return nil, fmt.Errorf("failed to build sequence: %w", err)
	}
	ph, err := buildPhantom(sc.Phantom)
	if err != nil {
		return nil, fmt.Errorf("failed to build phantom: %w", err)
	}
	logger.Info("Scenario ready.",
		"name", sc.Simulation.Name,
		"repetitions", len(seq.Repetitions),
		"samples", seq.ADCCount(),
		"voxels", ph.VoxelCount(),
		"coils", ph.CoilCount(),
	)

	pp, err := prepassParams(&sc.Simulation, ph)
	if err != nil {
		return nil, err
	}
	mp, err := mainpassParams(&sc.Simulation, pp, a.config.Workers)
	if err != nil {
		return nil, err
	}

	res = &Result{RunID: runID, Scenario: sc}
	logger.Info("🚀 Starting simulation...")
	if res.Key, res.Graph, res.CacheHit, err = a.graph(ctx, seq, pp); err != nil {
		return nil, err
	}

	start := time.Now()
	if res.Trace, err = mainpass.ExecuteGraph(ctx, res.Graph, ph, mp); err != nil {
		return nil, err
	}
	a.metrics.ObservePass(telemetry.PassMain, time.Since(start))
	a.metrics.ObserveTrace(ph.VoxelCount(), len(res.Trace.Samples), res.Trace.Lossy)
	if res.Trace.Lossy {
		logger.Warn("Signal is lossy: the state budget evicted or clipped states.", "evicted", res.Trace.Evicted)
	}

	if sc.Reconstruction != nil {
		opts, err := recoOptions(sc.Reconstruction, sc.Sequence, ph, a.config.Workers)
		if err != nil {
			return nil, err
		}
		start = time.Now()
		if res.Image, err = reco.Adjoint(ctx, res.Trace, opts); err != nil {
			return nil, fmt.Errorf("reconstruction failed: %w", err)
		}
		a.metrics.ObservePass(telemetry.PassReco, time.Since(start))
	}

	if err := a.writeOutputs(ctx, res); err != nil {
		return nil, err
	}
	logger.Info("🏁 Simulation finished.", "samples", len(res.Trace.Samples), "cache_hit", res.CacheHit)
	return res, nil
}

// graph returns the cached graph for seq and pp, computing and storing it
// on a miss.
func (a *App) graph(ctx context.Context, seq *sequence.Sequence, pp prepass.Params) (graphstore.Key, *pdg.Graph, bool, error) {
	logger := ctxlog.FromContext(ctx)

	key, err := graphstore.KeyFor(seq, pp)
	if err != nil {
		return "", nil, false, err
	}
	g, err := a.store.Get(ctx, key)
	switch {
	case err == nil:
		a.metrics.ObserveCache(true)
		a.metrics.ObserveGraph(g.NodeCount(), g.EdgeCount())
		logger.Debug("Graph store hit.", "key", key)
		return key, g, true, nil
	case !errors.Is(err, graphstore.ErrNotFound):
		return "", nil, false, fmt.Errorf("failed to read graph store: %w", err)
	}
	a.metrics.ObserveCache(false)

	g, _, err = prepass.ComputeGraph(ctx, seq, pp)
	if err != nil {
		return "", nil, false, err
	}
	a.metrics.ObservePass(telemetry.PassPre, g.Stats.Duration)
	a.metrics.ObserveGraph(g.NodeCount(), g.EdgeCount())
	logger.Info("Graph computed.", "key", key, "nodes", g.Stats.Nodes, "edges", g.Stats.Edges, "duration", g.Stats.Duration)

	if err := a.store.Put(ctx, key, g); err != nil {
		return "", nil, false, fmt.Errorf("failed to write graph store: %w", err)
	}
	return key, g, false, nil
}
