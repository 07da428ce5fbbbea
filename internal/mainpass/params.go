package mainpass

import (
	"fmt"
	"runtime"

	"github.com/go-playground/validator/v10"
)

// Normalization selects how the summed signal is scaled.
type Normalization string

const (
	NormalizeNone       Normalization = "none"
	NormalizeVoxelCount Normalization = "voxel_count"
	NormalizeTotalPD    Normalization = "total_pd"
)

// Params configures a main-pass run. KResolution and MaxOrder must match the
// graph being replayed.
type Params struct {
	KResolution int32 `validate:"gt=0"`
	MaxOrder    int32 `validate:"gt=0"`
	// Workers is the size of the worker pool; zero means GOMAXPROCS.
	Workers int `validate:"gte=0"`
	// ChunkSize is the number of voxels handed to a worker at once; zero
	// selects a default.
	ChunkSize int           `validate:"gte=0"`
	Normalize Normalization `validate:"omitempty,oneof=none voxel_count total_pd"`
}

const defaultChunkSize = 256

// DefaultParams mirrors the pre-pass defaults.
func DefaultParams() Params {
	return Params{
		KResolution: 1000,
		MaxOrder:    1 << 24,
		Normalize:   NormalizeNone,
	}
}

var validate = validator.New()

// Validate checks the parameter ranges.
func (p *Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid main-pass parameters: %w", err)
	}
	return nil
}

func (p *Params) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (p *Params) chunkSize() int {
	if p.ChunkSize > 0 {
		return p.ChunkSize
	}
	return defaultChunkSize
}
