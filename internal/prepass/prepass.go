package prepass

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"slices"
	"time"

	"github.com/specialistvlad/pdgsim/internal/ctxlog"
	"github.com/specialistvlad/pdgsim/internal/pdg"
	"github.com/specialistvlad/pdgsim/internal/sequence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/specialistvlad/pdgsim/internal/prepass")

// State is the builder's view of the ensemble after the last step.
type State struct {
	// Nodes is the alive table with idealised weights.
	Nodes []pdg.Node
	// Moment is the nominal accumulated gradient moment in cycles/FOV.
	Moment    [3]float64
	Threshold float64
	Budget    int

	Created int
	Pruned  int
	Evicted int
	Clipped int
}

// Norm returns the ensemble norm of the alive table.
func (s *State) Norm() float64 {
	return pdg.Norm(s.Nodes)
}

type nodeKey struct {
	kind pdg.Kind
	k    [3]int32
	tau  int64
}

type builder struct {
	p     Params
	nom   pdg.Relaxation
	g     *pdg.Graph
	state *State
	// track is set when states carry their dephasing time.
	track bool
}

// ComputeGraph walks seq once and returns its compacted graph together with
// the final builder state. The sequence and parameters are validated before
// any state is created; a sequence error is a *sequence.MalformedError.
func ComputeGraph(ctx context.Context, seq *sequence.Sequence, p Params) (*pdg.Graph, *State, error) {
	return computeGraph(ctx, seq, p, true)
}

func computeGraph(ctx context.Context, seq *sequence.Sequence, p Params, compaction bool) (*pdg.Graph, *State, error) {
	logger := ctxlog.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "prepass.ComputeGraph")
	defer span.End()

	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	if err := seq.Validate(); err != nil {
		return nil, nil, err
	}
	if err := checkOrder(seq, p); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	b := &builder{
		p:     p,
		nom:   pdg.Relaxation{T1: p.T1, T2: p.T2, T2Dash: p.T2Dash, D: p.D},
		track: p.T2Dash > 0,
		g: &pdg.Graph{
			KResolution: p.KResolution,
			TracksTau:   p.T2Dash > 0,
			FOV:         p.FOV,
			Nyquist:     p.Nyquist,
			Root:        pdg.NewRoot(),
		},
		state: &State{Threshold: p.MinMagnitude, Budget: p.MaxStates, Created: 1},
	}
	b.state.Nodes = b.g.Root

	for r := range seq.Repetitions {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("pre-pass cancelled at repetition %d: %w", r, err)
		}
		rep := &seq.Repetitions[r]
		b.pulse(r, rep.Pulse)
		if rep.Pulse.Duration > 0 {
			b.free(r, -1, rep.Pulse.Duration, [3]float64{}, false, 0)
		}
		for e, ev := range rep.Events {
			b.free(r, e, ev.Duration, ev.Gradient, ev.ADC, ev.ADCPhase)
		}
		b.g.Stats.MaxAlive = max(b.g.Stats.MaxAlive, len(b.state.Nodes))
	}

	before := b.g.NodeCount()
	if compaction {
		compact(b.g)
	}
	st := &b.g.Stats
	st.Created = b.state.Created
	st.Pruned = b.state.Pruned
	st.Evicted = b.state.Evicted
	st.Clipped = b.state.Clipped
	st.Compacted = before - b.g.NodeCount()
	st.Nodes = b.g.NodeCount()
	st.Edges = b.g.EdgeCount()
	st.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("pdg.steps", len(b.g.Steps)),
		attribute.Int("pdg.nodes", st.Nodes),
		attribute.Int("pdg.edges", st.Edges),
	)
	logger.Debug("Pre-pass finished.",
		"steps", len(b.g.Steps),
		"nodes", st.Nodes,
		"edges", st.Edges,
		"pruned", st.Pruned,
		"compacted", st.Compacted,
		"duration", st.Duration,
	)
	if b.g.Overflow.Occurred() {
		logger.Warn("State budget overflow, signal may be lossy.",
			"evicted", b.g.Overflow.Evicted,
			"clipped", b.g.Overflow.Clipped,
			"first_step", b.g.Overflow.FirstStep,
		)
	}
	return b.g, b.state, nil
}

// checkOrder rejects gradient moments that cannot be represented with the
// configured resolution and maximum order.
func checkOrder(seq *sequence.Sequence, p Params) error {
	limit := float64(p.MaxOrder)
	for r := range seq.Repetitions {
		for e, ev := range seq.Repetitions[r].Events {
			for a, g := range ev.Gradient {
				if math.Abs(math.Round(g*float64(p.KResolution))) > limit {
					return &sequence.MalformedError{
						Repetition: r,
						Event:      e,
						Field:      fmt.Sprintf("gradient.%c", "xyz"[a]),
						Value:      g,
						Reason:     fmt.Sprintf("exceeds maximum dephasing order %d", p.MaxOrder),
					}
				}
			}
		}
	}
	return nil
}

func (b *builder) overflowAt(step int) {
	if !b.g.Overflow.Occurred() {
		b.g.Overflow.FirstStep = step
	}
}

// pulseFactors returns the nominal coefficients stored on the edges, the
// mean coefficients over the B1 set used for the idealised weights, and
// which relations are non-zero for at least one B1 value.
func (b *builder) pulseFactors(p sequence.Pulse) (nominal, mean pdg.PulseFactors, live [pdg.RelZToPlusConj + 1]bool) {
	nominal = pdg.NewPulseFactors(p.Angle, p.Phase)
	if len(b.p.B1) == 0 {
		for rel, f := range nominal {
			live[rel] = f != 0
		}
		return nominal, nominal, live
	}
	for _, b1 := range b.p.B1 {
		f := pdg.NewPulseFactors(p.Angle*b1, p.Phase)
		for rel := range f {
			mean[rel] += f[rel]
			live[rel] = live[rel] || f[rel] != 0
		}
	}
	inv := complex(1/float64(len(b.p.B1)), 0)
	for rel := range mean {
		mean[rel] *= inv
	}
	return nominal, mean, live
}

// pulse splits every alive state along the rotation rules.
func (b *builder) pulse(rep int, p sequence.Pulse) {
	nominal, mean, live := b.pulseFactors(p)
	alive := b.state.Nodes
	step := pdg.Step{
		Kind:   pdg.StepPulse,
		Rep:    rep,
		Event:  -1,
		Usage:  p.Usage.String(),
		Angle:  p.Angle,
		Phase:  p.Phase,
		Sample: -1,
		Nodes:  make([]pdg.Node, 1, 3*len(alive)),
		Edges:  make([]pdg.Edge, 0, 4*len(alive)),
	}
	step.Nodes[0] = pdg.Node{Kind: pdg.KindZ}
	index := map[nodeKey]int32{{kind: pdg.KindZ}: 0}

	// Conjugated relations read the folded partner, so they land on
	// (-k, -tau).
	link := func(src int, kind pdg.Kind, rel pdg.Relation, conj bool) {
		if !live[rel] {
			return
		}
		n := &alive[src]
		key := nodeKey{kind: kind, k: n.K, tau: n.Tau}
		if conj {
			key.k, key.tau = pdg.Neg(n.K), -n.Tau
		}
		dst, ok := index[key]
		if !ok {
			dst = int32(len(step.Nodes))
			index[key] = dst
			step.Nodes = append(step.Nodes, pdg.Node{Kind: kind, K: key.k, Tau: key.tau})
			b.state.Created++
		}
		w := n.Weight
		if conj {
			w = cmplx.Conj(w)
		}
		step.Nodes[dst].Weight += mean[rel] * w
		step.Edges = append(step.Edges, pdg.Edge{Src: int32(src), Dst: dst, Rel: rel, Conj: conj, Factor: nominal[rel]})
	}

	for i := range alive {
		n := &alive[i]
		switch n.Kind {
		case pdg.KindPlus:
			link(i, pdg.KindPlus, pdg.RelKeep, false)
			link(i, pdg.KindPlus, pdg.RelFlip, true)
			if pdg.Canonical(n.K, n.Tau) {
				link(i, pdg.KindZ, pdg.RelPlusToZ, false)
			}
			if !pdg.Canonical(pdg.Neg(n.K), -n.Tau) {
				continue
			}
			// Z(-k) is stored when -k is canonical, which includes k == 0.
			link(i, pdg.KindZ, pdg.RelPlusToZConj, true)
		case pdg.KindZ:
			link(i, pdg.KindZ, pdg.RelZToZ, false)
			link(i, pdg.KindPlus, pdg.RelZToPlus, false)
			if !n.IsGround() {
				link(i, pdg.KindPlus, pdg.RelZToPlusConj, true)
			}
		}
	}

	b.g.Steps = append(b.g.Steps, step)
	b.state.Nodes = b.g.Steps[len(b.g.Steps)-1].Nodes

	switch p.Usage {
	case sequence.UsageExcitation:
		b.state.Moment = [3]float64{}
	case sequence.UsageRefocusing:
		m := b.state.Moment
		b.state.Moment = [3]float64{-m[0], -m[1], -m[2]}
	}
}

type candidate struct {
	node pdg.Node
	edge pdg.Edge
	mag  float64
}

// free relaxes and dephases the alive table for dt seconds, then prunes,
// evicts and, on ADC steps, flags the sampled edges.
func (b *builder) free(rep, event int, dt float64, grad [3]float64, adc bool, adcPhase float64) {
	stepIndex := len(b.g.Steps)
	var shift [3]int32
	for a, g := range grad {
		shift[a] = int32(math.Round(g * float64(b.p.KResolution)))
		b.state.Moment[a] += g
	}
	step := pdg.Step{
		Kind:     pdg.StepFree,
		Rep:      rep,
		Event:    event,
		Duration: dt,
		Shift:    shift,
		ADC:      adc,
		Sample:   -1,
		ADCPhase: adcPhase,
	}
	op := pdg.Instantiate(&step, b.nom)
	ticks := pdg.Ticks(dt)

	alive := b.state.Nodes
	cands := make([]candidate, 0, len(alive))
	for i := range alive {
		n := alive[i]
		e := pdg.Edge{Src: int32(i), Factor: 1}
		k2 := n.K
		switch {
		case n.IsGround():
			e.Rel = pdg.RelRecovery
		case n.Kind == pdg.KindZ:
			e.Rel = pdg.RelLongitudinal
		default:
			e.Rel = pdg.RelTransverse
			var ok bool
			if k2, ok = b.shifted(n.K, shift); !ok {
				b.overflowAt(stepIndex)
				b.state.Clipped++
				b.g.Overflow.Clipped++
				continue
			}
			if b.track {
				n.Tau += ticks
			}
		}
		e.B = pdg.DiffusionWeight(n.K, k2, b.p.KResolution, b.p.FOV, dt)
		mul, add := op.Apply(&e)
		n.K = k2
		n.Weight = mul*n.Weight + add
		cands = append(cands, candidate{node: n, edge: e, mag: cmplx.Abs(n.Weight)})
	}

	keep := b.prune(cands)
	keep = b.evict(stepIndex, cands, keep)

	step.Nodes = make([]pdg.Node, 0, len(keep))
	step.Edges = make([]pdg.Edge, 0, len(keep))
	for _, c := range keep {
		e := cands[c].edge
		e.Dst = int32(len(step.Nodes))
		step.Nodes = append(step.Nodes, cands[c].node)
		step.Edges = append(step.Edges, e)
	}
	if adc {
		b.sample(&step)
	}
	b.g.Steps = append(b.g.Steps, step)
	b.state.Nodes = b.g.Steps[len(b.g.Steps)-1].Nodes
}

// shifted returns k+shift, or false when the result leaves the supported
// dephasing range.
func (b *builder) shifted(k, shift [3]int32) ([3]int32, bool) {
	var out [3]int32
	limit := int64(b.p.MaxOrder)
	for a := range k {
		v := int64(k[a]) + int64(shift[a])
		if v > limit || v < -limit {
			return out, false
		}
		out[a] = int32(v)
	}
	return out, true
}

// prune returns the candidate indices at or above the magnitude threshold.
// The ground state is always first and never pruned.
func (b *builder) prune(cands []candidate) []int {
	keep := make([]int, 0, len(cands))
	for i := range cands {
		if i == 0 || cands[i].mag >= b.p.MinMagnitude {
			keep = append(keep, i)
			continue
		}
		b.state.Pruned++
	}
	return keep
}

// evict enforces the state budget on the pruned candidate list. Survivors
// keep their table order; among equal magnitudes the older state wins.
func (b *builder) evict(stepIndex int, cands []candidate, keep []int) []int {
	if b.p.MaxStates <= 0 {
		return keep
	}
	var groups [][]int
	switch b.p.Eviction {
	case EvictPerKind:
		var plus, z []int
		for _, c := range keep[1:] {
			if cands[c].node.Kind == pdg.KindPlus {
				plus = append(plus, c)
			} else {
				z = append(z, c)
			}
		}
		groups = [][]int{plus, z}
	default:
		groups = [][]int{keep[1:]}
	}

	survivors := []int{keep[0]}
	dropped := 0
	for _, group := range groups {
		if len(group) <= b.p.MaxStates {
			survivors = append(survivors, group...)
			continue
		}
		ranked := slices.Clone(group)
		slices.SortStableFunc(ranked, func(x, y int) int {
			return cmp.Compare(cands[y].mag, cands[x].mag)
		})
		survivors = append(survivors, ranked[:b.p.MaxStates]...)
		dropped += len(group) - b.p.MaxStates
	}
	if dropped == 0 {
		return keep
	}
	b.overflowAt(stepIndex)
	b.state.Evicted += dropped
	b.g.Overflow.Evicted += dropped
	slices.Sort(survivors)
	return survivors
}

// sample flags the edges into transverse states inside the Nyquist cutoff
// and records the sample's metadata.
func (b *builder) sample(step *pdg.Step) {
	step.Sample = len(b.g.Samples)
	info := pdg.SampleInfo{
		Rep:      step.Rep,
		Event:    step.Event,
		K:        b.state.Moment,
		NominalK: b.state.Moment,
		ADCPhase: step.ADCPhase,
	}
	op := pdg.Instantiate(step, b.nom)
	best := -1.0
	for i := range step.Edges {
		n := &step.Nodes[step.Edges[i].Dst]
		if n.Kind != pdg.KindPlus || !b.insideNyquist(n.K) {
			continue
		}
		step.Edges[i].ADC = true
		if m := cmplx.Abs(n.Weight) * op.Dephasing(n.Tau); m > best {
			best = m
			info.K = b.g.Moment(n.K)
		}
	}
	b.g.Samples = append(b.g.Samples, info)
}

func (b *builder) insideNyquist(k [3]int32) bool {
	for a, cut := range b.p.Nyquist {
		if cut > 0 && math.Abs(float64(k[a])/float64(b.p.KResolution)) > cut {
			return false
		}
	}
	return true
}
