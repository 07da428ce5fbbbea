// Package mainpass replays a Phase Distribution Graph against a phantom and
// accumulates the complex signal trace.
//
// Every voxel is simulated independently: its magnetisation starts at
// equilibrium on the graph root and is carried through the steps by the
// per-voxel instance of each edge template. ADC edges add the voxel's
// contribution PD·coil·m·e^{-2πi k·r}·e^{-i·ADCPhase} to the sample of their
// step.
//
// Voxels are split into chunks that a fixed pool of workers consumes from a
// channel. Each worker owns its magnetisation buffers and its partial trace;
// partial traces are merged in worker order once every worker has finished.
// The graph is only read, so one graph may serve many concurrent calls.
//
// Any error (an invalid graph, an invalid phantom, a cancelled context)
// discards every partial sum and no trace is returned.
package mainpass
