package phantom

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

const (
	kindGrid   = "grid"
	kindPoints = "points"
)

// file is the on-disk schema shared by the YAML and msgpack encodings.
// Complex coil sensitivities are stored as [re, im] pairs.
type file struct {
	Kind   string         `yaml:"kind" msgpack:"kind"`
	Shape  [3]int         `yaml:"shape,omitempty" msgpack:"shape,omitempty"`
	FOV    [3]float64     `yaml:"fov,omitempty" msgpack:"fov,omitempty"`
	Maps   *fileMaps      `yaml:"maps,omitempty" msgpack:"maps,omitempty"`
	Coils  [][][2]float64 `yaml:"coils,omitempty" msgpack:"coils,omitempty"`
	Points []filePoint    `yaml:"points,omitempty" msgpack:"points,omitempty"`
	// CoilCount is only meaningful for point clouds.
	CoilCount int `yaml:"coil_count,omitempty" msgpack:"coil_count,omitempty"`
}

type fileMaps struct {
	PD []float64 `yaml:"pd" msgpack:"pd"`
	T1 []float64 `yaml:"t1" msgpack:"t1"`
	T2 []float64 `yaml:"t2" msgpack:"t2"`
	B0 []float64 `yaml:"b0,omitempty" msgpack:"b0,omitempty"`
	D  []float64 `yaml:"d,omitempty" msgpack:"d,omitempty"`

	T2Dash []float64 `yaml:"t2dash,omitempty" msgpack:"t2dash,omitempty"`
	B1     []float64 `yaml:"b1,omitempty" msgpack:"b1,omitempty"`
}

type filePoint struct {
	Pos    [3]float64 `yaml:"pos" msgpack:"pos"`
	Tissue `yaml:",inline" msgpack:",inline"`
	Coils  [][2]float64 `yaml:"coils,omitempty" msgpack:"coils,omitempty"`
}

func toPairs(c []complex128) [][2]float64 {
	if c == nil {
		return nil
	}
	out := make([][2]float64, len(c))
	for i, v := range c {
		out[i] = [2]float64{real(v), imag(v)}
	}
	return out
}

func fromPairs(p [][2]float64) []complex128 {
	if p == nil {
		return nil
	}
	out := make([]complex128, len(p))
	for i, v := range p {
		out[i] = complex(v[0], v[1])
	}
	return out
}

func (f *file) phantom() (Phantom, error) {
	switch f.Kind {
	case kindGrid, "":
		if f.Maps == nil {
			return nil, fmt.Errorf("%w: grid phantom has no maps", ErrInvalid)
		}
		m := GridMaps{
			PD: f.Maps.PD, T1: f.Maps.T1, T2: f.Maps.T2, B0: f.Maps.B0, D: f.Maps.D,
			T2Dash: f.Maps.T2Dash, B1: f.Maps.B1,
		}
		for _, c := range f.Coils {
			m.Coils = append(m.Coils, fromPairs(c))
		}
		return NewGrid(f.Shape, f.FOV, m)
	case kindPoints:
		voxels := make([]Voxel, len(f.Points))
		for i, p := range f.Points {
			voxels[i] = Voxel{Pos: p.Pos, Tissue: p.Tissue, Coils: fromPairs(p.Coils)}
		}
		return NewPoints(voxels, max(1, f.CoilCount))
	default:
		return nil, fmt.Errorf("%w: unknown phantom kind %q", ErrInvalid, f.Kind)
	}
}

func fileFrom(p Phantom) (*file, error) {
	switch p := p.(type) {
	case *Grid:
		m := p.Maps()
		f := &file{
			Kind:  kindGrid,
			Shape: p.Shape(),
			FOV:   p.FOV(),
			Maps: &fileMaps{
				PD: m.PD, T1: m.T1, T2: m.T2, B0: m.B0, D: m.D,
				T2Dash: m.T2Dash, B1: m.B1,
			},
		}
		for _, c := range m.Coils {
			f.Coils = append(f.Coils, toPairs(c))
		}
		return f, nil
	case *Points:
		f := &file{Kind: kindPoints, CoilCount: p.CoilCount(), Points: make([]filePoint, 0, p.VoxelCount())}
		for _, v := range p.Voxels() {
			f.Points = append(f.Points, filePoint{Pos: v.Pos, Tissue: v.Tissue, Coils: toPairs(v.Coils)})
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot save phantom of type %T", p)
	}
}

// Load reads a phantom file. The format is chosen by extension: .yaml and
// .yml use YAML, .msgpack and .mpk use msgpack.
func Load(path string) (Phantom, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read phantom file %s: %w", path, err)
	}
	var f file
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode phantom %s: %w", path, err)
		}
	case ".msgpack", ".mpk":
		if err := msgpack.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to decode phantom %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported phantom file extension %q", ext)
	}
	p, err := f.phantom()
	if err != nil {
		return nil, fmt.Errorf("phantom %s: %w", path, err)
	}
	return p, nil
}

// Save writes p to path, choosing the format by extension like Load.
func Save(path string, p Phantom) error {
	f, err := fileFrom(p)
	if err != nil {
		return err
	}
	var data []byte
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(f)
	case ".msgpack", ".mpk":
		data, err = msgpack.Marshal(f)
	default:
		return fmt.Errorf("unsupported phantom file extension %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to encode phantom: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write phantom file %s: %w", path, err)
	}
	return nil
}
