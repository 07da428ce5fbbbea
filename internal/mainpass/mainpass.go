package mainpass

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"time"

	"github.com/specialistvlad/pdgsim/internal/ctxlog"
	"github.com/specialistvlad/pdgsim/internal/pdg"
	"github.com/specialistvlad/pdgsim/internal/phantom"
	"github.com/specialistvlad/pdgsim/internal/signal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/specialistvlad/pdgsim/internal/mainpass")

// chunk is a half-open voxel index range.
type chunk struct {
	lo, hi int
}

// replay holds the voxel-independent data shared by all workers.
type replay struct {
	g  *pdg.Graph
	ph phantom.Phantom
	// moments[i][j] is the dominant k (cycles/FOV) of the destination of
	// edge j of step i; only filled for ADC edges.
	moments [][][3]float64
	// taus[i][j] is the dephasing time of the destination of ADC edge j.
	taus [][]int64
	// demod[i] is e^{-i·ADCPhase} for ADC step i.
	demod []complex128
	coils int
}

func newReplay(g *pdg.Graph, ph phantom.Phantom) *replay {
	r := &replay{
		g:       g,
		ph:      ph,
		moments: make([][][3]float64, len(g.Steps)),
		taus:    make([][]int64, len(g.Steps)),
		demod:   make([]complex128, len(g.Steps)),
		coils:   ph.CoilCount(),
	}
	for i := range g.Steps {
		s := &g.Steps[i]
		if !s.ADC {
			continue
		}
		r.demod[i] = cmplx.Rect(1, -s.ADCPhase)
		r.moments[i] = make([][3]float64, len(s.Edges))
		r.taus[i] = make([]int64, len(s.Edges))
		for j := range s.Edges {
			if s.Edges[j].ADC {
				dst := &s.Nodes[s.Edges[j].Dst]
				r.moments[i][j] = g.Moment(dst.K)
				r.taus[i][j] = dst.Tau
			}
		}
	}
	return r
}

// worker owns its buffers and partial trace.
type worker struct {
	r      *replay
	cur    []complex128
	next   []complex128
	acc    *signal.Trace
	voxels int
}

func (r *replay) newWorker() *worker {
	n := r.g.MaxNodes()
	return &worker{
		r:    r,
		cur:  make([]complex128, n),
		next: make([]complex128, n),
		acc:  signal.New(len(r.g.Samples), r.coils),
	}
}

// simulate carries one voxel through the graph.
func (w *worker) simulate(v *phantom.Voxel) {
	g := w.r.g
	if v.PD == 0 {
		return
	}
	relax := pdg.Relaxation{T1: v.T1, T2: v.T2, T2Dash: v.T2Dash, B0: v.B0, D: v.D, B1: v.FlipScale()}

	cur := w.cur[:len(g.Root)]
	for i := range g.Root {
		cur[i] = g.Root[i].Weight
	}
	for si := range g.Steps {
		s := &g.Steps[si]
		next := w.next[:len(s.Nodes)]
		clear(next)
		op := pdg.Instantiate(s, relax)
		for ei := range s.Edges {
			e := &s.Edges[ei]
			m := cur[e.Src]
			if e.Conj {
				m = cmplx.Conj(m)
			}
			mul, add := op.Apply(e)
			val := mul*m + add
			next[e.Dst] += val
			if !e.ADC {
				continue
			}
			k := w.r.moments[si][ei]
			phase := -2 * math.Pi * (k[0]*v.Pos[0] + k[1]*v.Pos[1] + k[2]*v.Pos[2])
			contrib := val * cmplx.Rect(v.PD*op.Dephasing(w.r.taus[si][ei]), phase) * w.r.demod[si]
			values := w.acc.Samples[s.Sample].Values
			for c := range values {
				values[c] += contrib * v.Sensitivity(c)
			}
		}
		w.cur, w.next = w.next, w.cur
		cur = next
	}
	w.voxels++
}

// run consumes chunks until the channel closes or the context ends.
func (w *worker) run(ctx context.Context, chunks <-chan chunk, workerID int) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)
	for c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := c.lo; i < c.hi; i++ {
			v := w.r.ph.Voxel(i)
			w.simulate(&v)
		}
	}
	logger.Debug("Worker finished.", "workerID", workerID, "voxels", w.voxels)
	return nil
}

// ExecuteGraph simulates every voxel of ph through g and returns the summed
// signal. The graph is checked against p and the phantom is validated before
// any voxel is simulated; errors are *pdg.InconsistencyError and
// *phantom.InvalidError respectively. On any error no trace is returned.
func ExecuteGraph(ctx context.Context, g *pdg.Graph, ph phantom.Phantom, p Params) (*signal.Trace, error) {
	logger := ctxlog.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "mainpass.ExecuteGraph")
	defer span.End()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := g.Check(p.KResolution, p.MaxOrder); err != nil {
		return nil, err
	}
	if err := ph.Validate(); err != nil {
		return nil, err
	}

	if !g.TracksTau && usesT2Dash(ph) {
		logger.Warn("Phantom has T2' but the graph does not track dephasing time; T2' is ignored.")
	}

	start := time.Now()
	r := newReplay(g, ph)
	n := ph.VoxelCount()
	size := p.chunkSize()
	workers := min(p.workers(), max(1, (n+size-1)/size))
	span.SetAttributes(attribute.Int("mainpass.voxels", n), attribute.Int("mainpass.workers", workers))

	pool := make([]*worker, workers)
	for i := range pool {
		pool[i] = r.newWorker()
	}

	eg, egCtx := errgroup.WithContext(ctx)
	chunks := make(chan chunk)
	eg.Go(func() error {
		defer close(chunks)
		for lo := 0; lo < n; lo += size {
			select {
			case chunks <- chunk{lo: lo, hi: min(n, lo+size)}:
			case <-egCtx.Done():
				return egCtx.Err()
			}
		}
		return nil
	})
	for i, w := range pool {
		eg.Go(func() error { return w.run(egCtx, chunks, i) })
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("main-pass aborted: %w", err)
	}
	// errgroup only reports worker errors; a parent cancellation that raced
	// the last chunk still invalidates the run.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("main-pass aborted: %w", err)
	}

	trace := pool[0].acc
	for _, w := range pool[1:] {
		if err := trace.Add(w.acc); err != nil {
			return nil, err
		}
	}
	for i := range trace.Samples {
		info := g.Samples[i]
		trace.Samples[i].Rep = info.Rep
		trace.Samples[i].Event = info.Event
		trace.Samples[i].K = info.K
		trace.Samples[i].NominalK = info.NominalK
	}
	trace.Lossy = g.Overflow.Occurred()
	trace.Evicted = g.Overflow.Evicted + g.Overflow.Clipped
	normalize(trace, ph, p.Normalize)

	logger.Debug("Main-pass finished.",
		"voxels", n,
		"workers", workers,
		"samples", len(trace.Samples),
		"duration", time.Since(start),
	)
	return trace, nil
}

func usesT2Dash(ph phantom.Phantom) bool {
	for _, v := range ph.Voxels() {
		if v.T2Dash > 0 {
			return true
		}
	}
	return false
}

func normalize(t *signal.Trace, ph phantom.Phantom, mode Normalization) {
	switch mode {
	case NormalizeVoxelCount:
		if n := ph.VoxelCount(); n > 0 {
			t.Scale(1 / float64(n))
		}
	case NormalizeTotalPD:
		total := 0.0
		for _, v := range ph.Voxels() {
			total += v.PD
		}
		if total > 0 {
			t.Scale(1 / total)
		}
	}
}
