// Package pdg defines the Phase Distribution Graph: the time-ordered arena of
// magnetisation states built by the pre-pass and replayed per voxel by the
// main-pass.
//
// # Layout
//
// A Graph is a list of Steps. Every step owns the node table that exists
// after it and the edges that lead into that table from the previous one
// (the Root table for step 0). Edges address nodes by index, so the whole
// graph is a flat set of slices without pointers and can be encoded, stored
// and shared between goroutines without copying.
//
// Node 0 of every table, including the root, is the longitudinal ground
// state Z(0).
//
// # States
//
// Transverse states are stored only as F+(k); the F-(k) state is folded into
// conj(F+(-k)). Longitudinal states satisfy Z(-k) = conj(Z(k)) and are
// stored only for canonical k (see Canonical). Edges that read the folded
// partner set Conj.
//
// When a graph tracks dephasing time, every state also carries Tau, the time
// it spent transverse with its sign flipped by refocusing. Tau folds
// together with k, so the same canonical rule applies to the pair (k, Tau).
//
// # Templates and instances
//
// An Edge carries a voxel-independent template: the rotation coefficient of
// a pulse step, or the diffusion weighting B of a free step. Instantiate turns
// a step into an Operator for one tissue, which yields the per-edge
// multiplier and additive term. A voxel's B1 rescales the pulse angle and
// its T2' attenuates sampled states through Operator.Dephasing. This split is
// what lets one graph serve any number of voxels.
package pdg
