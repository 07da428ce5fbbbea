// Package graphstore defines the interface for caching Phase Distribution
// Graphs between runs.
//
// # Why a Graph Store Exists
//
// The pre-pass depends only on the sequence and the pre-pass parameters,
// never on the phantom. A graph built once can therefore serve every
// phantom simulated with the same sequence. The store keys graphs by a
// content hash of their inputs (see KeyFor), so a changed sequence or
// parameter set can never hit a stale entry.
//
// # Implementations
//
//   - internal/inmemorystore: process-local cache backed by sync.Map.
//   - internal/badgerstore: persistent cache in a BadgerDB directory.
//
// Graphs returned by a store must be treated as immutable; implementations
// may hand the same *pdg.Graph to several callers.
package graphstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/specialistvlad/pdgsim/internal/pdg"
	"github.com/specialistvlad/pdgsim/internal/prepass"
	"github.com/specialistvlad/pdgsim/internal/sequence"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned by Get when no graph is stored under a key.
var ErrNotFound = errors.New("graph not found")

// Key identifies a cached graph.
type Key string

// KeyFor hashes everything the pre-pass output depends on: the graph format
// version, the sequence and the pre-pass parameters.
func KeyFor(seq *sequence.Sequence, p prepass.Params) (Key, error) {
	data, err := msgpack.Marshal(struct {
		Version  int
		Sequence *sequence.Sequence
		Params   prepass.Params
	}{pdg.FormatVersion, seq, p})
	if err != nil {
		return "", fmt.Errorf("failed to hash graph inputs: %w", err)
	}
	sum := sha256.Sum256(data)
	return Key(hex.EncodeToString(sum[:])), nil
}

// Store caches graphs by key.
//
// Implementations MUST be safe for concurrent use.
type Store interface {
	// Put stores g under key, replacing any previous entry.
	Put(ctx context.Context, key Key, g *pdg.Graph) error

	// Get returns the graph stored under key, or an error wrapping
	// ErrNotFound.
	Get(ctx context.Context, key Key) (*pdg.Graph, error)

	// Delete removes the entry for key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key Key) error

	// Keys lists every stored key in unspecified order.
	Keys(ctx context.Context) ([]Key, error)

	// Close releases the store's resources.
	Close() error
}
