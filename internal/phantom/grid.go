package phantom

import (
	"fmt"
	"iter"
	"math"
)

// Grid is a regular voxel phantom. Voxels are stored x-fastest:
// index = x + Nx·(y + Ny·z).
type Grid struct {
	shape [3]int
	fov   [3]float64
	maps  [7][]float64 // pd, t1, t2, b0, d, t2dash, b1
	coils [][]complex128
}

const (
	mapPD = iota
	mapT1
	mapT2
	mapB0
	mapD
	mapT2Dash
	mapB1
)

// GridMaps is the raw parameter-map form of a grid, as stored in files.
// Every slice must hold Nx·Ny·Nz values; Coils holds one map per coil and
// may be empty. B0, D, T2Dash and B1 are optional.
type GridMaps struct {
	PD, T1, T2, B0, D []float64
	T2Dash, B1        []float64
	Coils             [][]complex128
}

// NewGrid builds a grid from parameter maps. The maps are copied.
func NewGrid(shape [3]int, fov [3]float64, m GridMaps) (*Grid, error) {
	n := shape[0] * shape[1] * shape[2]
	if shape[0] <= 0 || shape[1] <= 0 || shape[2] <= 0 {
		return nil, &InvalidError{Index: -1, Field: "shape must be positive", Value: float64(n)}
	}
	g := &Grid{shape: shape, fov: fov}
	for i, src := range [...][]float64{m.PD, m.T1, m.T2, m.B0, m.D, m.T2Dash, m.B1} {
		if src == nil && i >= mapB0 {
			src = make([]float64, n)
		}
		if len(src) != n {
			return nil, &InvalidError{Index: -1, Field: fmt.Sprintf("map %d length", i), Value: float64(len(src))}
		}
		g.maps[i] = append([]float64(nil), src...)
	}
	for c, cm := range m.Coils {
		if len(cm) != n {
			return nil, &InvalidError{Index: -1, Field: fmt.Sprintf("coil map %d length", c), Value: float64(len(cm))}
		}
		g.coils = append(g.coils, append([]complex128(nil), cm...))
	}
	return g, nil
}

// NewGridFunc builds a grid by evaluating fn at every voxel index.
func NewGridFunc(shape [3]int, fov [3]float64, fn func(x, y, z int) Tissue) *Grid {
	n := shape[0] * shape[1] * shape[2]
	g := &Grid{shape: shape, fov: fov}
	for i := range g.maps {
		g.maps[i] = make([]float64, n)
	}
	for z := 0; z < shape[2]; z++ {
		for y := 0; y < shape[1]; y++ {
			for x := 0; x < shape[0]; x++ {
				g.set(g.index(x, y, z), fn(x, y, z))
			}
		}
	}
	return g
}

// NewUniformGrid returns a grid where every voxel carries the same tissue.
func NewUniformGrid(shape [3]int, fov [3]float64, t Tissue) *Grid {
	return NewGridFunc(shape, fov, func(int, int, int) Tissue { return t })
}

// Disk describes a cylinder (along z) of tissue. Centre and Radius are
// fractions of the field of view.
type Disk struct {
	Center [2]float64
	Radius float64
	Tissue Tissue
}

// NewDiskGrid paints disks over a background tissue; later disks win.
func NewDiskGrid(shape [3]int, fov [3]float64, background Tissue, disks []Disk) *Grid {
	return NewGridFunc(shape, fov, func(x, y, z int) Tissue {
		pos := position(shape, x, y, z)
		t := background
		for _, d := range disks {
			dx, dy := pos[0]-d.Center[0], pos[1]-d.Center[1]
			if dx*dx+dy*dy <= d.Radius*d.Radius {
				t = d.Tissue
			}
		}
		return t
	})
}

// WithCoils returns a copy of the grid carrying the given coil maps.
func (g *Grid) WithCoils(coils [][]complex128) (*Grid, error) {
	m := g.Maps()
	m.Coils = coils
	return NewGrid(g.shape, g.fov, m)
}

func (g *Grid) index(x, y, z int) int {
	return x + g.shape[0]*(y+g.shape[1]*z)
}

func (g *Grid) coords(i int) (x, y, z int) {
	x = i % g.shape[0]
	i /= g.shape[0]
	return x, i % g.shape[1], i / g.shape[1]
}

func (g *Grid) set(i int, t Tissue) {
	g.maps[mapPD][i] = t.PD
	g.maps[mapT1][i] = t.T1
	g.maps[mapT2][i] = t.T2
	g.maps[mapB0][i] = t.B0
	g.maps[mapD][i] = t.D
	g.maps[mapT2Dash][i] = t.T2Dash
	g.maps[mapB1][i] = t.B1
}

// position maps a voxel index to its centre in FOV units. For an even
// dimension N the positions are (i - N/2)/N, which keeps the integer
// Cartesian k-space grid an exact DFT of the voxel grid.
func position(shape [3]int, x, y, z int) [3]float64 {
	idx := [3]int{x, y, z}
	var p [3]float64
	for a := range p {
		p[a] = float64(idx[a]-shape[a]/2) / float64(shape[a])
	}
	return p
}

// Shape returns the voxel counts along x, y, z.
func (g *Grid) Shape() [3]int { return g.shape }

// FOV returns the physical size of the grid in metres.
func (g *Grid) FOV() [3]float64 { return g.fov }

// VoxelCount implements Phantom.
func (g *Grid) VoxelCount() int { return len(g.maps[mapPD]) }

// CoilCount implements Phantom.
func (g *Grid) CoilCount() int { return max(1, len(g.coils)) }

// Voxel implements Phantom.
func (g *Grid) Voxel(i int) Voxel {
	x, y, z := g.coords(i)
	v := Voxel{
		Pos: position(g.shape, x, y, z),
		Tissue: Tissue{
			PD:     g.maps[mapPD][i],
			T1:     g.maps[mapT1][i],
			T2:     g.maps[mapT2][i],
			B0:     g.maps[mapB0][i],
			D:      g.maps[mapD][i],
			T2Dash: g.maps[mapT2Dash][i],
			B1:     g.maps[mapB1][i],
		},
	}
	if len(g.coils) > 0 {
		v.Coils = make([]complex128, len(g.coils))
		for c := range g.coils {
			v.Coils[c] = g.coils[c][i]
		}
	}
	return v
}

// Voxels implements Phantom.
func (g *Grid) Voxels() iter.Seq2[int, Voxel] {
	return func(yield func(int, Voxel) bool) {
		for i := 0; i < g.VoxelCount(); i++ {
			if !yield(i, g.Voxel(i)) {
				return
			}
		}
	}
}

// Validate implements Phantom.
func (g *Grid) Validate() error { return validateAll(g) }

// Maps returns a copy of the grid's parameter maps.
func (g *Grid) Maps() GridMaps {
	cp := func(s []float64) []float64 { return append([]float64(nil), s...) }
	m := GridMaps{
		PD: cp(g.maps[mapPD]), T1: cp(g.maps[mapT1]), T2: cp(g.maps[mapT2]),
		B0: cp(g.maps[mapB0]), D: cp(g.maps[mapD]),
		T2Dash: cp(g.maps[mapT2Dash]), B1: cp(g.maps[mapB1]),
	}
	for _, c := range g.coils {
		m.Coils = append(m.Coils, append([]complex128(nil), c...))
	}
	return m
}

// Crop returns the sub-grid [lo, hi) along every axis. The field of view
// shrinks in proportion.
func (g *Grid) Crop(lo, hi [3]int) (*Grid, error) {
	var shape [3]int
	var fov [3]float64
	for a := range shape {
		if lo[a] < 0 || hi[a] > g.shape[a] || lo[a] >= hi[a] {
			return nil, fmt.Errorf("crop: axis %d range [%d, %d) outside [0, %d)", a, lo[a], hi[a], g.shape[a])
		}
		shape[a] = hi[a] - lo[a]
		fov[a] = g.fov[a] * float64(shape[a]) / float64(g.shape[a])
	}
	out := &Grid{shape: shape, fov: fov}
	n := shape[0] * shape[1] * shape[2]
	for m := range out.maps {
		out.maps[m] = make([]float64, 0, n)
	}
	out.coils = make([][]complex128, len(g.coils))
	for z := lo[2]; z < hi[2]; z++ {
		for y := lo[1]; y < hi[1]; y++ {
			for x := lo[0]; x < hi[0]; x++ {
				src := g.index(x, y, z)
				for m := range out.maps {
					out.maps[m] = append(out.maps[m], g.maps[m][src])
				}
				for c := range g.coils {
					out.coils[c] = append(out.coils[c], g.coils[c][src])
				}
			}
		}
	}
	if len(out.coils) == 0 {
		out.coils = nil
	}
	return out, nil
}

// Resample returns the grid resampled to shape. Target cells covering one
// or more source voxel centres take their average (box filter); cells that
// cover none take the nearest source voxel.
func (g *Grid) Resample(shape [3]int) (*Grid, error) {
	if shape[0] <= 0 || shape[1] <= 0 || shape[2] <= 0 {
		return nil, fmt.Errorf("resample: shape must be positive, got %v", shape)
	}
	n := shape[0] * shape[1] * shape[2]
	out := &Grid{shape: shape, fov: g.fov}
	for m := range out.maps {
		out.maps[m] = make([]float64, n)
	}
	out.coils = make([][]complex128, len(g.coils))
	for c := range out.coils {
		out.coils[c] = make([]complex128, n)
	}
	counts := make([]int, n)

	cell := func(src [3]int) int {
		var t [3]int
		for a := range t {
			t[a] = src[a] * shape[a] / g.shape[a]
		}
		return out.index(t[0], t[1], t[2])
	}
	for i := 0; i < g.VoxelCount(); i++ {
		x, y, z := g.coords(i)
		dst := cell([3]int{x, y, z})
		counts[dst]++
		for m := range out.maps {
			v := g.maps[m][i]
			if m == mapB1 {
				// Unset B1 averages as the nominal field.
				v = Tissue{B1: v}.FlipScale()
			}
			out.maps[m][dst] += v
		}
		for c := range g.coils {
			out.coils[c][dst] += g.coils[c][i]
		}
	}
	for dst := 0; dst < n; dst++ {
		if counts[dst] > 0 {
			inv := 1 / float64(counts[dst])
			for m := range out.maps {
				out.maps[m][dst] *= inv
			}
			for c := range out.coils {
				out.coils[c][dst] *= complex(inv, 0)
			}
			continue
		}
		x, y, z := out.coords(dst)
		var src [3]int
		for a, t := range [3]int{x, y, z} {
			src[a] = min(g.shape[a]-1, int(math.Floor((float64(t)+0.5)*float64(g.shape[a])/float64(shape[a]))))
		}
		si := g.index(src[0], src[1], src[2])
		for m := range out.maps {
			out.maps[m][dst] = g.maps[m][si]
		}
		for c := range out.coils {
			out.coils[c][dst] = g.coils[c][si]
		}
	}
	if len(out.coils) == 0 {
		out.coils = nil
	}
	return out, nil
}

// Points converts the grid into a point cloud, keeping only voxels whose
// proton density exceeds pdThreshold. Empty voxels contribute no signal, so
// this is the usual way to shrink a grid before simulation.
func (g *Grid) Points(pdThreshold float64) *Points {
	p := &Points{coils: g.CoilCount()}
	for _, v := range g.Voxels() {
		if v.PD > pdThreshold {
			p.voxels = append(p.voxels, v)
		}
	}
	return p
}
