// Package sequence describes the pulse sequences driven through the
// simulator. A Sequence is an ordered list of repetitions; every repetition
// starts with one instantaneous RF pulse followed by a list of events. Each
// event lets the magnetisation relax, applies a gradient moment and may take
// one ADC sample at its end.
//
// Gradient moments are expressed in k-space units (cycles per field of
// view), so a moment of 1 along x shifts the sampled spatial frequency by one
// pixel of the reconstructed image.
//
// Sequences are produced by generators in this package or by the scenario
// loader and are consumed read-only by the pre-pass.
package sequence
