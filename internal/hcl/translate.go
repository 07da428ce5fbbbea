package hcl

import (
	"fmt"

	"github.com/specialistvlad/pdgsim/internal/config"
)

func translateSimulation(b *simulationBlock) config.Simulation {
	return config.Simulation{
		Name:         b.Name,
		T1:           b.T1,
		T2:           b.T2,
		D:            b.D,
		T2Dash:       b.T2Dash,
		MinMagnitude: b.MinMagnitude,
		MaxStates:    b.MaxStates,
		Eviction:     b.Eviction,
		KResolution:  b.KResolution,
		MaxOrder:     b.MaxOrder,
		Nyquist:      b.Nyquist,
		Workers:      b.Workers,
		ChunkSize:    b.ChunkSize,
		Normalize:    b.Normalize,
	}
}

func translateSequence(typ string, b *sequenceBlock) (*config.Sequence, error) {
	switch typ {
	case config.SequenceFID, config.SequenceGRE, config.SequenceSpinEcho, config.SequenceRadial:
		if len(b.Repetitions) > 0 {
			return nil, fmt.Errorf("sequence %q: repetition blocks are only allowed in custom sequences", typ)
		}
	case config.SequenceCustom:
		if len(b.Repetitions) == 0 {
			return nil, fmt.Errorf("sequence %q: at least one repetition block is required", typ)
		}
	default:
		return nil, fmt.Errorf("unknown sequence type %q", typ)
	}

	s := &config.Sequence{
		Type:          typ,
		Matrix:        b.Matrix,
		FlipAngle:     b.FlipAngle,
		Phase:         b.Phase,
		Delay:         b.Delay,
		Dwell:         b.Dwell,
		Prephase:      b.Prephase,
		Tail:          b.Tail,
		SpoilerMoment: b.SpoilerMoment,
		RFSpoiling:    b.RFSpoiling,
		EchoTime:      b.EchoTime,
		Spokes:        b.Spokes,
		Samples:       b.Samples,
		GoldenAngle:   b.GoldenAngle,
	}
	for i, rb := range b.Repetitions {
		var rep config.Repetition
		if rb.Pulse != nil {
			rep.Pulse = config.Pulse{
				Usage:    rb.Pulse.Usage,
				Angle:    rb.Pulse.Angle,
				Phase:    rb.Pulse.Phase,
				Duration: rb.Pulse.Duration,
			}
		}
		for j, eb := range rb.Events {
			if len(eb.Gradient) != 0 && len(eb.Gradient) != 3 {
				return nil, fmt.Errorf("sequence: repetition %d event %d: gradient needs 3 components, got %d", i, j, len(eb.Gradient))
			}
			rep.Events = append(rep.Events, config.Event{
				Duration: eb.Duration,
				Gradient: eb.Gradient,
				ADC:      eb.ADC,
				ADCPhase: eb.ADCPhase,
				Repeat:   eb.Repeat,
			})
		}
		s.Repetitions = append(s.Repetitions, rep)
	}
	return s, nil
}

func tissue(b *tissueBlock) *config.Tissue {
	if b == nil {
		return nil
	}
	return &config.Tissue{PD: b.PD, T1: b.T1, T2: b.T2, B0: b.B0, D: b.D, T2Dash: b.T2Dash, B1: b.B1}
}

func translatePhantom(typ string, b *phantomBlock) (*config.Phantom, error) {
	p := &config.Phantom{
		Type:           typ,
		Shape:          b.Shape,
		FOV:            b.FOV,
		Path:           b.Path,
		Tissue:         tissue(b.Tissue),
		Background:     tissue(b.Background),
		Resample:       b.Resample,
		PointThreshold: b.PointThreshold,
	}
	if b.Crop != nil {
		p.CropLo, p.CropHi = b.Crop.Lo, b.Crop.Hi
	}
	for _, d := range b.Disks {
		p.Disks = append(p.Disks, config.Disk{Center: d.Center, Radius: d.Radius, Tissue: *tissue(&d.Tissue)})
	}

	grid := func() error {
		if len(p.Shape) != 3 || len(p.FOV) != 3 {
			return fmt.Errorf("phantom %q: shape and fov need 3 components", typ)
		}
		return nil
	}
	switch typ {
	case config.PhantomUniform:
		if p.Tissue == nil {
			return nil, fmt.Errorf("phantom %q: a tissue block is required", typ)
		}
		if err := grid(); err != nil {
			return nil, err
		}
	case config.PhantomDisks:
		if p.Background == nil {
			return nil, fmt.Errorf("phantom %q: a background block is required", typ)
		}
		if err := grid(); err != nil {
			return nil, err
		}
		for i, d := range p.Disks {
			if len(d.Center) != 2 {
				return nil, fmt.Errorf("phantom %q: disk %d: center needs 2 components", typ, i)
			}
		}
	case config.PhantomFile:
		if p.Path == "" {
			return nil, fmt.Errorf("phantom %q: path is required", typ)
		}
	default:
		return nil, fmt.Errorf("unknown phantom type %q", typ)
	}
	return p, nil
}
