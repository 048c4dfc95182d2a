// Package store defines the persistence interface for the ledger.
// Implementations include PostgreSQL (source of truth), a CBOR snapshot
// file (single-node durability) and in-memory (for testing).
package store

import (
	"context"

	"github.com/atmx/adledger/internal/model"
)

// Hook runs inside a commit after the change is staged and before it becomes
// durable. A hook error aborts the commit. If the store fails after the hook
// succeeded, Commit returns an error and the hook's effect stays; the caller
// reverses it.
type Hook func(ctx context.Context) error

// Store is the persistence interface. The engine owns the live state and
// only reads it back on startup.
type Store interface {
	// Load returns the persisted ledger state. An empty store returns a
	// fresh, uninitialized state.
	Load(ctx context.Context) (*model.State, error)

	// Commit atomically persists one change. If hook is non-nil it runs
	// within the same unit of work; either both take effect or neither.
	Commit(ctx context.Context, change model.Change, hook Hook) error
}
