// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the simulation lifecycle: load a scenario,
// build the pre-pass graph (or fetch it from the graph store), replay it on
// the phantom, reconstruct, and write the outputs. It is decoupled from any
// specific entrypoint like a CLI or server.
package app
