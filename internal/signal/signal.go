// Package signal holds the complex signal trace produced by the main-pass.
package signal

import (
	"fmt"
	"math/cmplx"
)

// Sample is one ADC sample with one value per receive coil.
type Sample struct {
	Index int `json:"index"`
	Rep   int `json:"rep"`
	Event int `json:"event"`
	// K is the moment of the dominant pathway, in cycles per FOV.
	K        [3]float64   `json:"k"`
	NominalK [3]float64   `json:"nominal_k"`
	Values   []complex128 `json:"-"`
}

// Trace is the signal of one simulation run in acquisition order.
type Trace struct {
	Coils   int      `json:"coils"`
	Samples []Sample `json:"samples"`
	// Lossy is set when the graph dropped states above the pruning
	// threshold; Evicted counts them.
	Lossy   bool `json:"lossy"`
	Evicted int  `json:"evicted"`
}

// New returns a zeroed trace with n samples of coils values each.
func New(n, coils int) *Trace {
	t := &Trace{Coils: coils, Samples: make([]Sample, n)}
	values := make([]complex128, n*coils)
	for i := range t.Samples {
		t.Samples[i].Index = i
		t.Samples[i].Values = values[i*coils : (i+1)*coils : (i+1)*coils]
	}
	return t
}

// Add accumulates other into t. Both traces must have the same shape.
func (t *Trace) Add(other *Trace) error {
	if len(t.Samples) != len(other.Samples) || t.Coils != other.Coils {
		return fmt.Errorf("cannot add trace of %d×%d to trace of %d×%d",
			len(other.Samples), other.Coils, len(t.Samples), t.Coils)
	}
	for i := range t.Samples {
		dst, src := t.Samples[i].Values, other.Samples[i].Values
		for c := range dst {
			dst[c] += src[c]
		}
	}
	return nil
}

// Scale multiplies every value by f.
func (t *Trace) Scale(f float64) {
	for i := range t.Samples {
		for c := range t.Samples[i].Values {
			t.Samples[i].Values[c] *= complex(f, 0)
		}
	}
}

// Coil returns the values of coil c in sample order.
func (t *Trace) Coil(c int) []complex128 {
	out := make([]complex128, len(t.Samples))
	for i := range t.Samples {
		out[i] = t.Samples[i].Values[c]
	}
	return out
}

// Trajectory returns the dominant-pathway k of every sample.
func (t *Trace) Trajectory() [][3]float64 {
	out := make([][3]float64, len(t.Samples))
	for i := range t.Samples {
		out[i] = t.Samples[i].K
	}
	return out
}

// MaxAbsDiff returns the largest absolute difference between the values of
// two traces of the same shape, or +Inf when the shapes differ.
func MaxAbsDiff(a, b *Trace) float64 {
	if len(a.Samples) != len(b.Samples) || a.Coils != b.Coils {
		return cmplx.Abs(cmplx.Inf())
	}
	d := 0.0
	for i := range a.Samples {
		for c := range a.Samples[i].Values {
			d = max(d, cmplx.Abs(a.Samples[i].Values[c]-b.Samples[i].Values[c]))
		}
	}
	return d
}
