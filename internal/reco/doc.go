// Package reco reconstructs images from simulated signal traces with the
// adjoint of the encoding operator,
//
//	x(r) = (1/N) · Σ_s w_s · y_s · e^{+2πi k_s·r},
//
// where r runs over the voxel centres of the requested grid (fractions of
// the field of view, laid out like phantom grids) and N is the voxel count.
// When every sample lies on the integer k-space grid the sum is evaluated
// with a separable FFT; otherwise the exact non-uniform DFT is evaluated in
// parallel over image rows.
package reco
