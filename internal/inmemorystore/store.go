// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// implementation of the graphstore.Store interface.
//
// # Purpose
//
// This package caches Phase Distribution Graphs for the lifetime of one
// process, so that several phantoms simulated with the same sequence share a
// single pre-pass.
//
// # Characteristics
//
//   - **Ephemeral:** Created fresh for each process, not persistent
//   - **Thread-Safe:** Uses sync.Map for lock-free concurrent reads
//   - **Zero-Copy:** Stores and returns the *pdg.Graph itself; graphs are
//     immutable after the pre-pass so sharing the pointer is safe
//
// # Concurrency Model
//
// sync.Map fits the access pattern: keys are written once after a pre-pass
// and then read by any number of main-pass runs.
//
// For caching across runs use internal/badgerstore.
package inmemorystore

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/pdgsim/internal/graphstore"
	"github.com/specialistvlad/pdgsim/internal/pdg"
)

// Store is an in-memory implementation of graphstore.Store.
type Store struct {
	graphs sync.Map // Key: graphstore.Key, Value: *pdg.Graph
}

// New creates a new, empty in-memory graph store.
func New() graphstore.Store {
	return &Store{}
}

// Put stores a graph under key.
func (s *Store) Put(ctx context.Context, key graphstore.Key, g *pdg.Graph) error {
	if g == nil {
		return fmt.Errorf("cannot store nil graph under %s", key)
	}
	s.graphs.Store(key, g)
	return nil
}

// Get retrieves the graph stored under key.
func (s *Store) Get(ctx context.Context, key graphstore.Key) (*pdg.Graph, error) {
	g, ok := s.graphs.Load(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", graphstore.ErrNotFound, key)
	}
	return g.(*pdg.Graph), nil
}

// Delete removes the graph stored under key.
func (s *Store) Delete(ctx context.Context, key graphstore.Key) error {
	s.graphs.Delete(key)
	return nil
}

// Keys lists all stored keys.
func (s *Store) Keys(ctx context.Context) ([]graphstore.Key, error) {
	var keys []graphstore.Key
	s.graphs.Range(func(k, _ any) bool {
		keys = append(keys, k.(graphstore.Key))
		return true
	})
	return keys, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
