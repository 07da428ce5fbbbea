package app

import (
	"errors"
	"fmt"
	"math"

	"github.com/specialistvlad/pdgsim/internal/config"
	"github.com/specialistvlad/pdgsim/internal/mainpass"
	"github.com/specialistvlad/pdgsim/internal/phantom"
	"github.com/specialistvlad/pdgsim/internal/prepass"
	"github.com/specialistvlad/pdgsim/internal/reco"
	"github.com/specialistvlad/pdgsim/internal/sequence"
)

func matrix(s *config.Sequence) ([2]int, error) {
	if len(s.Matrix) != 2 {
		return [2]int{}, fmt.Errorf("sequence %q: matrix needs 2 components, got %d", s.Type, len(s.Matrix))
	}
	return [2]int{s.Matrix[0], s.Matrix[1]}, nil
}

// buildSequence turns a sequence block into a validated sequence.
func buildSequence(s *config.Sequence) (*sequence.Sequence, error) {
	var (
		seq *sequence.Sequence
		err error
	)
	switch s.Type {
	case config.SequenceFID:
		seq = sequence.FID(s.FlipAngle, s.Phase, s.Delay)
	case config.SequenceGRE, config.SequenceSpinEcho:
		m, merr := matrix(s)
		if merr != nil {
			return nil, merr
		}
		o := sequence.CartesianOptions{
			Matrix:        m,
			FlipAngle:     s.FlipAngle,
			Dwell:         s.Dwell,
			Prephase:      s.Prephase,
			Tail:          s.Tail,
			SpoilerMoment: s.SpoilerMoment,
			RFSpoiling:    s.RFSpoiling,
			EchoTime:      s.EchoTime,
		}
		if s.Type == config.SequenceGRE {
			seq, err = sequence.GRE(o)
		} else {
			seq, err = sequence.SpinEcho(o)
		}
	case config.SequenceRadial:
		seq, err = sequence.Radial(sequence.RadialOptions{
			Spokes:        s.Spokes,
			Samples:       s.Samples,
			FlipAngle:     s.FlipAngle,
			Dwell:         s.Dwell,
			Prephase:      s.Prephase,
			Tail:          s.Tail,
			SpoilerMoment: s.SpoilerMoment,
			GoldenAngle:   s.GoldenAngle,
		})
	case config.SequenceCustom:
		seq, err = customSequence(s)
	default:
		return nil, fmt.Errorf("unknown sequence type %q", s.Type)
	}
	if err != nil {
		return nil, err
	}
	if err := seq.Validate(); err != nil {
		return nil, err
	}
	return seq, nil
}

func customSequence(s *config.Sequence) (*sequence.Sequence, error) {
	seq := &sequence.Sequence{Name: config.SequenceCustom}
	for i, r := range s.Repetitions {
		usage, err := sequence.ParseUsage(r.Pulse.Usage)
		if err != nil {
			return nil, fmt.Errorf("repetition %d: %w", i, err)
		}
		rep := sequence.Repetition{Pulse: sequence.Pulse{
			Usage:    usage,
			Angle:    r.Pulse.Angle,
			Phase:    r.Pulse.Phase,
			Duration: r.Pulse.Duration,
		}}
		for _, e := range r.Events {
			ev := sequence.Event{Duration: e.Duration, ADC: e.ADC, ADCPhase: e.ADCPhase}
			copy(ev.Gradient[:], e.Gradient)
			for range max(1, e.Repeat) {
				rep.Events = append(rep.Events, ev)
			}
		}
		seq.Repetitions = append(seq.Repetitions, rep)
	}
	return seq, nil
}

// builtPhantom is a phantom plus the geometry the passes need from it.
type builtPhantom struct {
	phantom.Phantom
	// FOV is zero when the phantom does not carry one.
	FOV [3]float64
	// Shape is the grid shape before any point conversion, or zero.
	Shape [3]int
}

func vec3[T any](name string, v []T) ([3]T, error) {
	var out [3]T
	if len(v) != 3 {
		return out, fmt.Errorf("%s needs 3 components, got %d", name, len(v))
	}
	copy(out[:], v)
	return out, nil
}

func toTissue(t config.Tissue) phantom.Tissue {
	return phantom.Tissue{PD: t.PD, T1: t.T1, T2: t.T2, B0: t.B0, D: t.D, T2Dash: t.T2Dash, B1: t.B1}
}

// buildPhantom creates the phantom and applies crop, resample and point
// conversion in that order.
func buildPhantom(p *config.Phantom) (*builtPhantom, error) {
	var ph phantom.Phantom
	switch p.Type {
	case config.PhantomUniform, config.PhantomDisks:
		shape, err := vec3("phantom shape", p.Shape)
		if err != nil {
			return nil, err
		}
		fov, err := vec3("phantom fov", p.FOV)
		if err != nil {
			return nil, err
		}
		if p.Type == config.PhantomUniform {
			ph = phantom.NewUniformGrid(shape, fov, toTissue(*p.Tissue))
			break
		}
		disks := make([]phantom.Disk, len(p.Disks))
		for i, d := range p.Disks {
			disks[i] = phantom.Disk{Center: [2]float64{d.Center[0], d.Center[1]}, Radius: d.Radius, Tissue: toTissue(d.Tissue)}
		}
		ph = phantom.NewDiskGrid(shape, fov, toTissue(*p.Background), disks)
	case config.PhantomFile:
		loaded, err := phantom.Load(p.Path)
		if err != nil {
			return nil, err
		}
		ph = loaded
	default:
		return nil, fmt.Errorf("unknown phantom type %q", p.Type)
	}

	grid, isGrid := ph.(*phantom.Grid)
	if !isGrid {
		if p.CropLo != nil || p.Resample != nil || p.PointThreshold != nil {
			return nil, fmt.Errorf("phantom %q: crop, resample and point_threshold need a voxel grid", p.Type)
		}
		return &builtPhantom{Phantom: ph}, nil
	}

	if p.CropLo != nil || p.CropHi != nil {
		lo, err := vec3("crop.lo", p.CropLo)
		if err != nil {
			return nil, err
		}
		hi, err := vec3("crop.hi", p.CropHi)
		if err != nil {
			return nil, err
		}
		if grid, err = grid.Crop(lo, hi); err != nil {
			return nil, err
		}
	}
	if p.Resample != nil {
		shape, err := vec3("resample", p.Resample)
		if err != nil {
			return nil, err
		}
		if grid, err = grid.Resample(shape); err != nil {
			return nil, err
		}
	}
	out := &builtPhantom{Phantom: grid, FOV: grid.FOV(), Shape: grid.Shape()}
	if p.PointThreshold != nil {
		out.Phantom = grid.Points(*p.PointThreshold)
	}
	return out, nil
}

// transmitSamples is the number of B1 values the pre-pass keeps states for
// when the phantom's transmit field is not uniform.
const transmitSamples = 3

// tissueProfile returns the mean T2' over the voxels that set one and the
// B1 values the graph should be built for. Both are zero for a phantom
// without dephasing or transmit maps.
func tissueProfile(ph phantom.Phantom) (t2dash float64, b1 []float64) {
	sum, n := 0.0, 0
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range ph.Voxels() {
		if v.PD == 0 {
			continue
		}
		if v.T2Dash > 0 {
			sum += v.T2Dash
			n++
		}
		s := v.FlipScale()
		lo, hi = min(lo, s), max(hi, s)
	}
	if n > 0 {
		t2dash = sum / float64(n)
	}
	switch {
	case lo > hi, lo == 1 && hi == 1:
	case lo == hi:
		b1 = []float64{lo}
	default:
		for i := range transmitSamples {
			b1 = append(b1, lo+(hi-lo)*float64(i)/(transmitSamples-1))
		}
	}
	return t2dash, b1
}

// prepassParams overlays the phantom's geometry and tissue profile, then
// the simulation block, on the defaults.
func prepassParams(s *config.Simulation, ph *builtPhantom) (prepass.Params, error) {
	p := prepass.DefaultParams()
	if ph.Phantom != nil {
		p.T2Dash, p.B1 = tissueProfile(ph.Phantom)
	}
	override(&p.T1, s.T1)
	override(&p.T2, s.T2)
	override(&p.D, s.D)
	override(&p.T2Dash, s.T2Dash)
	override(&p.MinMagnitude, s.MinMagnitude)
	override(&p.MaxStates, s.MaxStates)
	if s.Eviction != "" {
		p.Eviction = prepass.EvictionPolicy(s.Eviction)
	}
	if s.KResolution != nil {
		p.KResolution = int32(*s.KResolution)
	}
	if s.MaxOrder != nil {
		p.MaxOrder = int32(*s.MaxOrder)
	}
	if s.Nyquist != nil {
		if len(s.Nyquist) != 3 {
			return p, fmt.Errorf("simulation nyquist needs 3 components, got %d", len(s.Nyquist))
		}
		copy(p.Nyquist[:], s.Nyquist)
	}
	if ph.FOV != ([3]float64{}) {
		p.FOV = ph.FOV
	}
	return p, p.Validate()
}

// mainpassParams matches the graph's resolution. Workers from the device
// win over the scenario.
func mainpassParams(s *config.Simulation, pp prepass.Params, workers int) (mainpass.Params, error) {
	p := mainpass.DefaultParams()
	p.KResolution, p.MaxOrder = pp.KResolution, pp.MaxOrder
	override(&p.Workers, s.Workers)
	if workers > 0 {
		p.Workers = workers
	}
	override(&p.ChunkSize, s.ChunkSize)
	if s.Normalize != "" {
		p.Normalize = mainpass.Normalization(s.Normalize)
	}
	return p, p.Validate()
}

// recoOptions picks the reconstruction grid: the block's shape, else the
// phantom grid, else the sequence matrix.
func recoOptions(r *config.Reconstruction, s *config.Sequence, ph *builtPhantom, workers int) (reco.Options, error) {
	o := reco.Options{Density: reco.Density(r.Density), NonCartesian: r.NonCartesian, Workers: workers}
	switch {
	case r.Shape != nil:
		shape, err := vec3("reconstruction shape", r.Shape)
		if err != nil {
			return o, err
		}
		o.Shape = shape
	case ph.Shape != [3]int{}:
		o.Shape = ph.Shape
	case len(s.Matrix) == 2:
		o.Shape = [3]int{s.Matrix[0], s.Matrix[1], 1}
	default:
		return o, errors.New("reconstruction shape is required: neither the phantom nor the sequence has a grid")
	}
	if o.Density == "" {
		o.Density = reco.DensityNone
		if s.Type == config.SequenceRadial {
			o.Density = reco.DensityRadial
		}
	}
	return o, nil
}

func override[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
