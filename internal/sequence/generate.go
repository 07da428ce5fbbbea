package sequence

import (
	"errors"
	"fmt"
	"math"
)

// rfSpoilIncrement is the quadratic RF spoiling phase increment (117°).
const rfSpoilIncrement = 117.0 * math.Pi / 180.0

// FID builds the smallest useful sequence: a single excitation followed by
// one event of length delay that ends with an ADC sample.
func FID(angle, phase, delay float64) *Sequence {
	return &Sequence{
		Name: "fid",
		Repetitions: []Repetition{{
			Pulse: Pulse{Usage: UsageExcitation, Angle: angle, Phase: phase},
			Events: []Event{{
				Duration: delay,
				ADC:      true,
			}},
		}},
	}
}

// CartesianOptions configures the Cartesian generators (GRE and spin echo).
type CartesianOptions struct {
	// Matrix is the readout (x) and phase-encode (y) resolution.
	Matrix [2]int
	// FlipAngle of the excitation pulse in radians.
	FlipAngle float64
	// Dwell is the duration of one readout sample.
	Dwell float64
	// Prephase is the duration of the prephasing event.
	Prephase float64
	// Tail is the duration of the spoiler/recovery event closing each line.
	Tail float64
	// SpoilerMoment is added along x at the end of each line. Zero disables it.
	SpoilerMoment float64
	// RFSpoiling enables the quadratic phase cycling of excitation pulses.
	RFSpoiling bool
	// EchoTime is used by the spin echo generator only.
	EchoTime float64
}

func (o *CartesianOptions) validate() error {
	if o.Matrix[0] <= 0 || o.Matrix[1] <= 0 {
		return fmt.Errorf("matrix must be positive, got %v", o.Matrix)
	}
	if o.Dwell < 0 || o.Prephase < 0 || o.Tail < 0 || o.EchoTime < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}

// spoilPhase returns the RF phase of line j under quadratic spoiling.
func spoilPhase(j int) float64 {
	n := float64(j)
	return math.Mod(0.5*rfSpoilIncrement*(n*n+n+2), 2*math.Pi)
}

// GRE builds a 2D Cartesian gradient echo (FLASH) sequence with one
// phase-encode line per repetition. Samples cover kx in [-Nx/2, Nx/2) and
// ky in [-Ny/2, Ny/2) on the integer grid, so the trajectory is exactly
// Cartesian for an Nx×Ny image.
func GRE(o CartesianOptions) (*Sequence, error) {
	if err := o.validate(); err != nil {
		return nil, fmt.Errorf("gre: %w", err)
	}
	nx, ny := o.Matrix[0], o.Matrix[1]
	seq := &Sequence{Name: "gre", Repetitions: make([]Repetition, 0, ny)}
	for j := 0; j < ny; j++ {
		pe := float64(j - ny/2)
		phase := 0.0
		if o.RFSpoiling {
			phase = spoilPhase(j)
		}
		events := make([]Event, 0, nx+2)
		events = append(events, Event{
			Duration: o.Prephase,
			Gradient: [3]float64{-float64(nx/2) - 1, pe, 0},
		})
		for i := 0; i < nx; i++ {
			events = append(events, Event{
				Duration: o.Dwell,
				Gradient: [3]float64{1, 0, 0},
				ADC:      true,
				ADCPhase: phase,
			})
		}
		events = append(events, Event{
			Duration: o.Tail,
			Gradient: [3]float64{-float64(nx-nx/2-1) + o.SpoilerMoment, -pe, 0},
		})
		seq.Repetitions = append(seq.Repetitions, Repetition{
			Pulse:  Pulse{Usage: UsageExcitation, Angle: o.FlipAngle, Phase: phase},
			Events: events,
		})
	}
	return seq, nil
}

// SpinEcho builds a 2D Cartesian spin echo sequence. Every line uses two
// repetitions: a 90° excitation with its prephaser, then a 180° refocusing
// pulse followed by the readout centred on the echo.
func SpinEcho(o CartesianOptions) (*Sequence, error) {
	if err := o.validate(); err != nil {
		return nil, fmt.Errorf("spin echo: %w", err)
	}
	nx, ny := o.Matrix[0], o.Matrix[1]
	readout := float64(nx) * o.Dwell
	wait := o.EchoTime/2 - readout/2
	if wait < 0 {
		return nil, fmt.Errorf("spin echo: echo time %v too short for a %v s readout", o.EchoTime, readout)
	}
	seq := &Sequence{Name: "spin_echo", Repetitions: make([]Repetition, 0, 2*ny)}
	for j := 0; j < ny; j++ {
		pe := float64(j - ny/2)
		seq.Repetitions = append(seq.Repetitions, Repetition{
			Pulse: Pulse{Usage: UsageExcitation, Angle: math.Pi / 2},
			Events: []Event{{
				// Mirrored by the refocusing pulse into (-Nx/2-1, pe).
				Duration: o.EchoTime / 2,
				Gradient: [3]float64{float64(nx/2) + 1, -pe, 0},
			}},
		})
		events := make([]Event, 0, nx+2)
		events = append(events, Event{Duration: wait})
		for i := 0; i < nx; i++ {
			events = append(events, Event{
				Duration: o.Dwell,
				Gradient: [3]float64{1, 0, 0},
				ADC:      true,
			})
		}
		events = append(events, Event{
			Duration: o.Tail,
			Gradient: [3]float64{o.SpoilerMoment, 0, 0},
		})
		seq.Repetitions = append(seq.Repetitions, Repetition{
			Pulse:  Pulse{Usage: UsageRefocusing, Angle: math.Pi, Phase: math.Pi / 2},
			Events: events,
		})
	}
	return seq, nil
}

// RadialOptions configures the radial generator.
type RadialOptions struct {
	Spokes        int
	Samples       int
	FlipAngle     float64
	Dwell         float64
	Prephase      float64
	Tail          float64
	SpoilerMoment float64
	// GoldenAngle uses the 111.25° increment instead of uniform spacing
	// over 180°.
	GoldenAngle bool
}

// Radial builds a 2D radial gradient echo sequence. Each spoke passes
// through the k-space centre; sample positions are generally not on the
// integer grid.
func Radial(o RadialOptions) (*Sequence, error) {
	if o.Spokes <= 0 || o.Samples <= 0 {
		return nil, fmt.Errorf("radial: spokes and samples must be positive, got %d/%d", o.Spokes, o.Samples)
	}
	if o.Dwell < 0 || o.Prephase < 0 || o.Tail < 0 {
		return nil, errors.New("radial: durations must not be negative")
	}
	seq := &Sequence{Name: "radial", Repetitions: make([]Repetition, 0, o.Spokes)}
	half := float64(o.Samples / 2)
	for s := 0; s < o.Spokes; s++ {
		theta := float64(s) * math.Pi / float64(o.Spokes)
		if o.GoldenAngle {
			theta = math.Mod(float64(s)*111.25*math.Pi/180, 2*math.Pi)
		}
		dx, dy := math.Cos(theta), math.Sin(theta)
		events := make([]Event, 0, o.Samples+2)
		events = append(events, Event{
			Duration: o.Prephase,
			Gradient: [3]float64{-(half + 1) * dx, -(half + 1) * dy, 0},
		})
		for i := 0; i < o.Samples; i++ {
			events = append(events, Event{
				Duration: o.Dwell,
				Gradient: [3]float64{dx, dy, 0},
				ADC:      true,
			})
		}
		rewind := -(float64(o.Samples) - half - 1)
		events = append(events, Event{
			Duration: o.Tail,
			Gradient: [3]float64{rewind*dx + o.SpoilerMoment, rewind * dy, 0},
		})
		seq.Repetitions = append(seq.Repetitions, Repetition{
			Pulse:  Pulse{Usage: UsageExcitation, Angle: o.FlipAngle},
			Events: events,
		})
	}
	return seq, nil
}
