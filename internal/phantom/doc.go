// Package phantom holds the virtual tissue samples that the main-pass
// simulates. Two layouts exist: a regular voxel Grid, which supports
// cropping and resampling, and an arbitrary Points cloud. Both expose the
// same read-only Phantom contract.
//
// Voxel positions are expressed as fractions of the field of view and lie in
// [-0.5, 0.5) for grids, which pairs with gradient moments measured in cycles
// per field of view: a voxel at position r picks up the phase e^{-2πi k·r}
// in a dephasing state of order k.
//
// Phantoms are immutable once constructed and may be shared freely between
// goroutines.
package phantom
