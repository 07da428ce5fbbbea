package phantom

import (
	"fmt"
	"iter"
)

// Points is an arbitrary point-cloud phantom. Positions are fractions of the
// field of view.
type Points struct {
	voxels []Voxel
	coils  int
}

// NewPoints builds a point cloud from voxels. coils is the number of receive
// coils; voxels with nil Coils use unit sensitivity. The slice is copied.
func NewPoints(voxels []Voxel, coils int) (*Points, error) {
	if coils < 1 {
		return nil, fmt.Errorf("%w: coil count must be at least 1, got %d", ErrInvalid, coils)
	}
	p := &Points{voxels: make([]Voxel, len(voxels)), coils: coils}
	for i, v := range voxels {
		if v.Coils != nil {
			v.Coils = append([]complex128(nil), v.Coils...)
		}
		p.voxels[i] = v
	}
	return p, nil
}

// VoxelCount implements Phantom.
func (p *Points) VoxelCount() int { return len(p.voxels) }

// CoilCount implements Phantom.
func (p *Points) CoilCount() int { return max(1, p.coils) }

// Voxel implements Phantom.
func (p *Points) Voxel(i int) Voxel { return p.voxels[i] }

// Voxels implements Phantom.
func (p *Points) Voxels() iter.Seq2[int, Voxel] {
	return func(yield func(int, Voxel) bool) {
		for i, v := range p.voxels {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Validate implements Phantom.
func (p *Points) Validate() error { return validateAll(p) }

// Reordered returns a copy of p with voxels in the order given by perm,
// where perm[i] is the source index of the i-th voxel.
func (p *Points) Reordered(perm []int) (*Points, error) {
	if len(perm) != len(p.voxels) {
		return nil, fmt.Errorf("permutation has %d entries, phantom has %d voxels", len(perm), len(p.voxels))
	}
	out := &Points{voxels: make([]Voxel, len(perm)), coils: p.coils}
	seen := make([]bool, len(perm))
	for i, src := range perm {
		if src < 0 || src >= len(p.voxels) || seen[src] {
			return nil, fmt.Errorf("invalid permutation entry %d at %d", src, i)
		}
		seen[src] = true
		out.voxels[i] = p.voxels[src]
	}
	return out, nil
}
