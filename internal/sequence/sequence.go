package sequence

import (
	"fmt"
	"strings"
)

// PulseUsage tags what an RF pulse is used for. The tag drives the nominal
// k-space trajectory (excitations reset it, refocusing pulses mirror it).
type PulseUsage int

const (
	UsageUndefined PulseUsage = iota
	UsageExcitation
	UsageRefocusing
	UsageStorage
	UsagePreparation
	UsageSpoiler
)

var usageNames = map[PulseUsage]string{
	UsageUndefined:   "undefined",
	UsageExcitation:  "excitation",
	UsageRefocusing:  "refocusing",
	UsageStorage:     "storage",
	UsagePreparation: "preparation",
	UsageSpoiler:     "spoiler",
}

// String implements fmt.Stringer.
func (u PulseUsage) String() string {
	if name, ok := usageNames[u]; ok {
		return name
	}
	return fmt.Sprintf("usage(%d)", int(u))
}

// ParseUsage converts a usage name (as written in scenario files) into a
// PulseUsage.
func ParseUsage(s string) (PulseUsage, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return UsageUndefined, nil
	}
	for u, name := range usageNames {
		if name == s {
			return u, nil
		}
	}
	return UsageUndefined, fmt.Errorf("unknown pulse usage %q", s)
}

// Pulse is an instantaneous RF rotation. A pulse with angle α and phase φ
// turns equilibrium magnetisation into transverse magnetisation sin(α)·e^{iφ}.
// A non-zero Duration is simulated as free relaxation right after the
// rotation.
type Pulse struct {
	Usage    PulseUsage `msgpack:"usage"`
	Angle    float64    `msgpack:"angle"`    // rad
	Phase    float64    `msgpack:"phase"`    // rad
	Duration float64    `msgpack:"duration"` // s
}

// Event is one time interval of a repetition.
type Event struct {
	Duration float64    `msgpack:"duration"` // s
	Gradient [3]float64 `msgpack:"gradient"` // cycles per FOV
	ADC      bool       `msgpack:"adc"`
	ADCPhase float64    `msgpack:"adc_phase"` // rad, receiver demodulation
}

// Repetition is one pulse followed by its events.
type Repetition struct {
	Pulse  Pulse   `msgpack:"pulse"`
	Events []Event `msgpack:"events"`
}

// Duration returns the total time spanned by the repetition.
func (r *Repetition) Duration() float64 {
	d := r.Pulse.Duration
	for _, ev := range r.Events {
		d += ev.Duration
	}
	return d
}

// ADCCount returns the number of samples the repetition acquires.
func (r *Repetition) ADCCount() int {
	n := 0
	for _, ev := range r.Events {
		if ev.ADC {
			n++
		}
	}
	return n
}

// Sequence is an ordered list of repetitions.
type Sequence struct {
	Name        string       `msgpack:"name"`
	Repetitions []Repetition `msgpack:"repetitions"`
}

// ADCCount returns the total number of samples acquired by the sequence.
func (s *Sequence) ADCCount() int {
	n := 0
	for i := range s.Repetitions {
		n += s.Repetitions[i].ADCCount()
	}
	return n
}

// EventCount returns the total number of events over all repetitions.
func (s *Sequence) EventCount() int {
	n := 0
	for i := range s.Repetitions {
		n += len(s.Repetitions[i].Events)
	}
	return n
}

// Duration returns the total sequence duration in seconds.
func (s *Sequence) Duration() float64 {
	d := 0.0
	for i := range s.Repetitions {
		d += s.Repetitions[i].Duration()
	}
	return d
}
