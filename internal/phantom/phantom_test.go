package phantom

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var water = Tissue{PD: 1, T1: 3, T2: 0.5, D: 2e-9}

func TestGrid_PositionsAndIndexOrder(t *testing.T) {
	t.Parallel()

	g := NewUniformGrid([3]int{4, 2, 1}, [3]float64{0.2, 0.1, 0.01}, water)
	require.Equal(t, 8, g.VoxelCount())
	assert.Equal(t, 1, g.CoilCount())

	// x runs fastest.
	assert.Equal(t, [3]float64{-0.5, -0.5, 0}, g.Voxel(0).Pos)
	assert.Equal(t, [3]float64{-0.25, -0.5, 0}, g.Voxel(1).Pos)
	assert.Equal(t, [3]float64{-0.5, 0, 0}, g.Voxel(4).Pos)
	assert.Equal(t, [3]float64{0.25, 0, 0}, g.Voxel(7).Pos)
	assert.NoError(t, g.Validate())
}

func TestGrid_Validate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		mutate    func(m *GridMaps)
		wantIndex int
		wantField string
	}{
		{"NaN T2", func(m *GridMaps) { m.T2[2] = math.NaN() }, 2, "t2"},
		{"zero T1", func(m *GridMaps) { m.T1[1] = 0 }, 1, "t1"},
		{"negative diffusion", func(m *GridMaps) { m.D[3] = -1 }, 3, "d"},
		{"first offender wins", func(m *GridMaps) { m.PD[3] = math.Inf(1); m.B0[1] = math.NaN() }, 1, "b0"},
		{"negative T2'", func(m *GridMaps) { m.T2Dash[0] = -1 }, 0, "t2dash"},
		{"NaN B1", func(m *GridMaps) { m.B1[2] = math.NaN() }, 2, "b1"},
		{"negative B1", func(m *GridMaps) { m.B1[3] = -0.5 }, 3, "b1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := NewUniformGrid([3]int{2, 2, 1}, [3]float64{1, 1, 1}, water).Maps()
			tc.mutate(&m)
			g, err := NewGrid([3]int{2, 2, 1}, [3]float64{1, 1, 1}, m)
			require.NoError(t, err)

			err = g.Validate()
			require.True(t, errors.Is(err, ErrInvalid))
			var inv *InvalidError
			require.ErrorAs(t, err, &inv)
			assert.Equal(t, tc.wantIndex, inv.Index)
			assert.Equal(t, tc.wantField, inv.Field)
		})
	}
}

func TestNewGrid_RejectsWrongLengths(t *testing.T) {
	t.Parallel()

	_, err := NewGrid([3]int{2, 2, 1}, [3]float64{1, 1, 1}, GridMaps{PD: []float64{1}, T1: []float64{1}, T2: []float64{1}})
	assert.ErrorIs(t, err, ErrInvalid)

	g, err := NewGrid([3]int{1, 1, 1}, [3]float64{1, 1, 1}, GridMaps{PD: []float64{1}, T1: []float64{1}, T2: []float64{1}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, g.Voxel(0).B0, "missing b0 map defaults to zero")
}

func TestDiskGrid(t *testing.T) {
	t.Parallel()

	fat := Tissue{PD: 0.8, T1: 0.3, T2: 0.08}
	g := NewDiskGrid([3]int{8, 8, 1}, [3]float64{0.2, 0.2, 0.005}, Tissue{T1: 1, T2: 1}, []Disk{
		{Radius: 0.3, Tissue: water},
		{Radius: 0.1, Tissue: fat},
	})
	centre := g.Voxel(4 + 8*4) // position (0, 0)
	assert.Equal(t, fat, centre.Tissue)
	ring := g.Voxel(6 + 8*4) // position (0.25, 0)
	assert.Equal(t, water, ring.Tissue)
	assert.Equal(t, 0.0, g.Voxel(0).PD)

	points := g.Points(0)
	assert.Less(t, points.VoxelCount(), g.VoxelCount())
	for _, v := range points.Voxels() {
		assert.Greater(t, v.PD, 0.0)
	}
}

func TestGrid_CropAndResample(t *testing.T) {
	t.Parallel()

	g := NewGridFunc([3]int{4, 4, 1}, [3]float64{0.4, 0.4, 0.01}, func(x, y, _ int) Tissue {
		return Tissue{PD: float64(x + 4*y), T1: 1, T2: 1}
	})

	c, err := g.Crop([3]int{1, 1, 0}, [3]int{3, 3, 1})
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 2, 1}, c.Shape())
	assert.InDelta(t, 0.2, c.FOV()[0], 1e-12)
	assert.Equal(t, []float64{5, 6, 9, 10}, c.Maps().PD)

	_, err = g.Crop([3]int{0, 0, 0}, [3]int{5, 1, 1})
	assert.Error(t, err)

	down, err := g.Resample([3]int{2, 2, 1})
	require.NoError(t, err)
	// Each target cell averages a 2x2 block.
	assert.Equal(t, []float64{2.5, 4.5, 10.5, 12.5}, down.Maps().PD)

	up, err := g.Resample([3]int{8, 8, 1})
	require.NoError(t, err)
	assert.Equal(t, 64, up.VoxelCount())
	assert.NoError(t, up.Validate())
}

func TestGrid_TransmitAndDephasingMaps(t *testing.T) {
	t.Parallel()

	g := NewGridFunc([3]int{2, 1, 1}, [3]float64{0.2, 0.1, 0.01}, func(x, _, _ int) Tissue {
		if x == 0 {
			return Tissue{PD: 1, T1: 1, T2: 0.1}
		}
		return Tissue{PD: 1, T1: 1, T2: 0.1, T2Dash: 0.02, B1: 0.5}
	})
	assert.Equal(t, 1.0, g.Voxel(0).FlipScale(), "unset B1 is the nominal field")
	assert.Equal(t, 0.5, g.Voxel(1).FlipScale())
	assert.Equal(t, []float64{0, 0.02}, g.Maps().T2Dash)

	merged, err := g.Resample([3]int{1, 1, 1})
	require.NoError(t, err)
	v := merged.Voxel(0)
	assert.InDelta(t, 0.75, v.B1, 1e-12)
	assert.InDelta(t, 0.01, v.T2Dash, 1e-12)
}

func TestPoints(t *testing.T) {
	t.Parallel()

	_, err := NewPoints(nil, 0)
	assert.ErrorIs(t, err, ErrInvalid)

	p, err := NewPoints([]Voxel{
		{Pos: [3]float64{0.1, 0, 0}, Tissue: water, Coils: []complex128{1, 1i}},
		{Pos: [3]float64{-0.1, 0, 0}, Tissue: water},
	}, 2)
	require.NoError(t, err)
	assert.NoError(t, p.Validate())
	v := p.Voxel(1)
	assert.Equal(t, complex128(1), v.Sensitivity(1))

	r, err := p.Reordered([]int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, p.Voxel(0), r.Voxel(1))

	_, err = p.Reordered([]int{0, 0})
	assert.Error(t, err)

	bad, err := NewPoints([]Voxel{{Tissue: water, Coils: []complex128{1}}}, 2)
	require.NoError(t, err)
	assert.ErrorIs(t, bad.Validate(), ErrInvalid)
}

func TestLoadSave_RoundTrip(t *testing.T) {
	t.Parallel()

	dephased := water
	dephased.T2Dash = 0.03
	dephased.B1 = 0.9
	g := NewDiskGrid([3]int{4, 4, 1}, [3]float64{0.2, 0.2, 0.005}, Tissue{T1: 1, T2: 1}, []Disk{{Radius: 0.3, Tissue: dephased}})
	g, err := g.WithCoils([][]complex128{make([]complex128, 16), make([]complex128, 16)})
	require.NoError(t, err)
	points, err := NewPoints([]Voxel{{Pos: [3]float64{0.1, 0.2, 0}, Tissue: dephased, Coils: []complex128{2 - 1i}}}, 1)
	require.NoError(t, err)

	for _, ext := range []string{".yaml", ".msgpack"} {
		for name, p := range map[string]Phantom{"grid": g, "points": points} {
			t.Run(name+ext, func(t *testing.T) {
				t.Parallel()
				path := filepath.Join(t.TempDir(), "phantom"+ext)
				require.NoError(t, Save(path, p))

				got, err := Load(path)
				require.NoError(t, err)
				require.Equal(t, p.VoxelCount(), got.VoxelCount())
				assert.Equal(t, p.CoilCount(), got.CoilCount())
				for i := range p.VoxelCount() {
					if diff := cmp.Diff(p.Voxel(i), got.Voxel(i)); diff != "" {
						t.Fatalf("voxel %d mismatch (-want +got):\n%s", i, diff)
					}
				}
			})
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read")

	path := filepath.Join(t.TempDir(), "phantom.txt")
	assert.ErrorContains(t, Save(path, NewUniformGrid([3]int{1, 1, 1}, [3]float64{1, 1, 1}, water)), "unsupported")
}
