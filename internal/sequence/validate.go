package sequence

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformed is the sentinel wrapped by every MalformedError.
var ErrMalformed = errors.New("malformed sequence")

// MalformedError reports the first invalid value found in a sequence.
// Event is -1 when the offending value belongs to the repetition's pulse.
type MalformedError struct {
	Repetition int
	Event      int
	Field      string
	Value      float64
	Reason     string
}

// Error implements the error interface.
func (e *MalformedError) Error() string {
	loc := fmt.Sprintf("repetition %d", e.Repetition)
	if e.Event >= 0 {
		loc += fmt.Sprintf(", event %d", e.Event)
	} else {
		loc += ", pulse"
	}
	return fmt.Sprintf("%s: %s: %s %s (%v)", ErrMalformed, loc, e.Field, e.Reason, e.Value)
}

// Unwrap lets errors.Is match ErrMalformed.
func (e *MalformedError) Unwrap() error {
	return ErrMalformed
}

// Validate checks that all timings, angles and gradient moments are finite
// and that no duration is negative. It returns a *MalformedError for the
// first problem found, scanning repetitions and events in order.
func (s *Sequence) Validate() error {
	for r := range s.Repetitions {
		rep := &s.Repetitions[r]
		p := rep.Pulse
		if err := checkFinite(r, -1, "angle", p.Angle); err != nil {
			return err
		}
		if err := checkFinite(r, -1, "phase", p.Phase); err != nil {
			return err
		}
		if err := checkDuration(r, -1, p.Duration); err != nil {
			return err
		}
		for e, ev := range rep.Events {
			if err := checkDuration(r, e, ev.Duration); err != nil {
				return err
			}
			for axis, g := range ev.Gradient {
				if err := checkFinite(r, e, gradientField(axis), g); err != nil {
					return err
				}
			}
			if err := checkFinite(r, e, "adc_phase", ev.ADCPhase); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkFinite(rep, event int, field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &MalformedError{Repetition: rep, Event: event, Field: field, Value: v, Reason: "is not finite"}
	}
	return nil
}

func checkDuration(rep, event int, v float64) error {
	if err := checkFinite(rep, event, "duration", v); err != nil {
		return err
	}
	if v < 0 {
		return &MalformedError{Repetition: rep, Event: event, Field: "duration", Value: v, Reason: "is negative"}
	}
	return nil
}

func gradientField(axis int) string {
	return "gradient." + string("xyz"[axis])
}
