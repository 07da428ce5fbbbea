// Package prepass builds the Phase Distribution Graph for a sequence.
//
// ComputeGraph walks the sequence once with an idealised ensemble (one
// voxel at the origin with nominal relaxation times and no off-resonance).
// Every RF pulse splits each alive state along the extended phase graph
// rotation rules, every event shifts transverse states by its gradient
// moment and relaxes all states. States whose idealised magnitude falls
// below MinMagnitude are pruned and, when more than MaxStates survive, the
// weakest are evicted according to the configured policy. Eviction never
// fails the build; it is reported through pdg.Overflow.
//
// Once the walk is finished the graph is compacted: states that have no
// path to any ADC sample are removed and the tables are re-indexed. The
// result is immutable and can be replayed by any number of main-pass calls.
package prepass
