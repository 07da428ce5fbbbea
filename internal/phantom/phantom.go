package phantom

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"math/cmplx"
)

// Tissue is the set of magnetic properties carried by every voxel.
type Tissue struct {
	PD float64 `yaml:"pd" msgpack:"pd"` // proton density, arbitrary units
	T1 float64 `yaml:"t1" msgpack:"t1"` // s
	T2 float64 `yaml:"t2" msgpack:"t2"` // s
	B0 float64 `yaml:"b0" msgpack:"b0"` // off-resonance, Hz
	D  float64 `yaml:"d" msgpack:"d"`   // diffusion coefficient, m²/s
	// T2Dash is the reversible dephasing time in s; zero disables it.
	T2Dash float64 `yaml:"t2dash,omitempty" msgpack:"t2dash,omitempty"`
	// B1 is the relative transmit field scaling every flip angle; zero
	// reads as the nominal field 1.
	B1 float64 `yaml:"b1,omitempty" msgpack:"b1,omitempty"`
}

// FlipScale returns the factor applied to every pulse angle.
func (t Tissue) FlipScale() float64 {
	if t.B1 == 0 {
		return 1
	}
	return t.B1
}

// Voxel is one simulated volume element. A nil Coils slice means unit
// sensitivity on every coil.
type Voxel struct {
	Pos [3]float64
	Tissue
	Coils []complex128
}

// Sensitivity returns the voxel's sensitivity for coil c.
func (v *Voxel) Sensitivity(c int) complex128 {
	if v.Coils == nil {
		return 1
	}
	return v.Coils[c]
}

// Phantom is the read-only contract consumed by the main-pass.
type Phantom interface {
	// VoxelCount returns the number of voxels or points.
	VoxelCount() int
	// CoilCount returns the number of receive coils, at least 1.
	CoilCount() int
	// Voxel returns voxel i, 0 <= i < VoxelCount().
	Voxel(i int) Voxel
	// Voxels lazily yields every voxel with its index.
	Voxels() iter.Seq2[int, Voxel]
	// Validate reports the first voxel with invalid parameters.
	Validate() error
}

// ErrInvalid is the sentinel wrapped by every InvalidError.
var ErrInvalid = errors.New("invalid phantom")

// InvalidError identifies the first offending voxel of a phantom.
type InvalidError struct {
	Index int
	Field string
	Value float64
}

// Error implements the error interface.
func (e *InvalidError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s (%v)", ErrInvalid, e.Field, e.Value)
	}
	return fmt.Sprintf("%s: voxel %d: %s is %v", ErrInvalid, e.Index, e.Field, e.Value)
}

// Unwrap lets errors.Is match ErrInvalid.
func (e *InvalidError) Unwrap() error {
	return ErrInvalid
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// validateVoxel checks a single voxel. T1 and T2 must be strictly positive,
// D, T2' and B1 non-negative, everything finite.
func validateVoxel(i int, v Voxel, coils int) error {
	fields := [...]struct {
		name string
		val  float64
	}{
		{"pd", v.PD}, {"t1", v.T1}, {"t2", v.T2}, {"b0", v.B0}, {"d", v.D},
		{"t2dash", v.T2Dash}, {"b1", v.B1},
		{"pos.x", v.Pos[0]}, {"pos.y", v.Pos[1]}, {"pos.z", v.Pos[2]},
	}
	for _, f := range fields {
		if !finite(f.val) {
			return &InvalidError{Index: i, Field: f.name, Value: f.val}
		}
	}
	if v.T1 <= 0 {
		return &InvalidError{Index: i, Field: "t1", Value: v.T1}
	}
	if v.T2 <= 0 {
		return &InvalidError{Index: i, Field: "t2", Value: v.T2}
	}
	if v.D < 0 {
		return &InvalidError{Index: i, Field: "d", Value: v.D}
	}
	if v.T2Dash < 0 {
		return &InvalidError{Index: i, Field: "t2dash", Value: v.T2Dash}
	}
	if v.B1 < 0 {
		return &InvalidError{Index: i, Field: "b1", Value: v.B1}
	}
	if v.Coils != nil && len(v.Coils) != coils {
		return &InvalidError{Index: i, Field: "coil count", Value: float64(len(v.Coils))}
	}
	for c, s := range v.Coils {
		if cmplx.IsNaN(s) || cmplx.IsInf(s) {
			return &InvalidError{Index: i, Field: fmt.Sprintf("coil[%d]", c), Value: real(s)}
		}
	}
	return nil
}

func validateAll(p Phantom) error {
	coils := p.CoilCount()
	for i, v := range p.Voxels() {
		if err := validateVoxel(i, v, coils); err != nil {
			return err
		}
	}
	return nil
}
