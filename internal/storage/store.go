// Package storage persists ledger snapshots.
package storage

import (
	"context"
	"errors"

	"github.com/ryanbastic/go-pixelwall/internal/ledger"
)

// ErrClosed is returned by a store used after Close.
var ErrClosed = errors.New("store closed")

// SnapshotStore loads and saves the whole ledger state.
type SnapshotStore interface {
	// Load returns the last saved snapshot, or nil, nil when nothing was
	// ever saved. Entries that cannot be decoded are skipped.
	Load(ctx context.Context) (*ledger.Snapshot, error)

	// Save replaces the stored state with snap.
	Save(ctx context.Context, snap *ledger.Snapshot) error

	// Close releases the store's resources.
	Close() error
}

// Backend names a SnapshotStore implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendBadger   Backend = "badger"
	BackendPostgres Backend = "postgres"
)

func cloneSnapshot(snap *ledger.Snapshot) *ledger.Snapshot {
	out := ledger.NewSnapshot()
	for k, c := range snap.Cells {
		out.Cells[k] = c
	}
	for k, r := range snap.Ownership {
		r.CellCoords = append([]string(nil), r.CellCoords...)
		out.Ownership[k] = r
	}
	return out
}
