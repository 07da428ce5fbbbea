package prepass

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// EvictionPolicy selects how the state budget is enforced.
type EvictionPolicy string

const (
	// EvictGlobal ranks every state except Z(0) in one list.
	EvictGlobal EvictionPolicy = "global"
	// EvictPerKind ranks transverse and longitudinal states separately,
	// each with the full budget.
	EvictPerKind EvictionPolicy = "per_kind"
)

// Params configures a pre-pass run.
type Params struct {
	// Nominal tissue used to weigh states during pruning.
	T1 float64 `validate:"gt=0"`
	T2 float64 `validate:"gt=0"`
	D  float64 `validate:"gte=0"`

	// T2Dash is the nominal reversible dephasing time. A positive value
	// makes every state carry its dephasing time so that the main-pass can
	// apply T2' per voxel; zero disables it.
	T2Dash float64 `validate:"gte=0"`
	// B1 lists the relative transmit fields the graph must serve. Pulse
	// edges are kept unless their coefficient vanishes for every listed
	// value, and idealised weights use the mean coefficient. Empty means
	// the nominal field only.
	B1 []float64 `validate:"omitempty,dive,gt=0"`

	// MinMagnitude prunes states whose idealised magnitude is below it.
	MinMagnitude float64 `validate:"gte=0"`
	// MaxStates bounds the number of alive states per table, Z(0) not
	// counted. Zero disables the budget.
	MaxStates int            `validate:"gte=0"`
	Eviction  EvictionPolicy `validate:"oneof=global per_kind"`

	// KResolution is the number of dephasing indices per cycle/FOV.
	KResolution int32 `validate:"gt=0"`
	// MaxOrder is the largest supported |dephasing index| on any axis.
	MaxOrder int32 `validate:"gt=0"`

	FOV [3]float64 `validate:"dive,gte=0"`
	// Nyquist is the per-axis cutoff in cycles/FOV above which transverse
	// states do not contribute to samples. Zero disables an axis.
	Nyquist [3]float64 `validate:"dive,gte=0"`
}

// DefaultParams returns parameters suited to brain-like tissue at 3 T.
func DefaultParams() Params {
	return Params{
		T1:           1.0,
		T2:           0.1,
		D:            1e-9,
		MinMagnitude: 1e-4,
		MaxStates:    2000,
		Eviction:     EvictGlobal,
		KResolution:  1000,
		MaxOrder:     1 << 24,
		FOV:          [3]float64{0.2, 0.2, 0.005},
	}
}

var validate = validator.New()

// Validate checks the parameter ranges.
func (p *Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid pre-pass parameters: %w", err)
	}
	return nil
}
