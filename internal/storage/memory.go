package storage

import (
	"context"
	"sync"

	"github.com/ryanbastic/go-pixelwall/internal/ledger"
)

// MemoryStore keeps the last saved snapshot in process memory. State is
// lost on restart.
type MemoryStore struct {
	mu     sync.Mutex
	snap   *ledger.Snapshot
	saves  int
	closed bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (*ledger.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.snap == nil {
		return nil, nil
	}
	return cloneSnapshot(s.snap), nil
}

func (s *MemoryStore) Save(_ context.Context, snap *ledger.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.snap = cloneSnapshot(snap)
	s.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
