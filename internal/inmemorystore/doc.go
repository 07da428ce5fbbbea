// Package inmemorystore provides a thread-safe, in-memory implementation
// of the graphstore.Store interface. It is suitable for tests, for single
// runs, or any scenario where graphs do not need to outlive the process.
package inmemorystore
