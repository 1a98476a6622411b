package storage

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

func newBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadger(BadgerConfig{InMemory: true}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_Contract(t *testing.T) {
	testStoreContract(t, newBadgerStore(t))
}

func TestBadgerStore_SkipsUndecodableValues(t *testing.T) {
	s := newBadgerStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		prefix := generationPrefix(1)
		if err := txn.Set([]byte(prefix+cellSegment+"3,3"), []byte("{not json")); err != nil {
			return err
		}
		return txn.Set([]byte(prefix+"junk/1"), []byte("{}"))
	})
	if err != nil {
		t.Fatalf("inject bad values: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSnapshotEqual(t, got, sampleSnapshot())
}

func TestBadgerStore_DropsPreviousGeneration(t *testing.T) {
	s := newBadgerStore(t)
	ctx := context.Background()
	for range 3 {
		if err := s.Save(ctx, sampleSnapshot()); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte("g/")})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	want := len(sampleSnapshot().Cells) + len(sampleSnapshot().Ownership)
	if count != want {
		t.Errorf("keys under g/: got %d, want %d", count, want)
	}
	if err := s.RunGC(0.5); err != nil {
		t.Errorf("RunGC in memory: %v", err)
	}
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	if err := s.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = OpenBadger(BadgerConfig{Path: dir}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSnapshotEqual(t, got, sampleSnapshot())
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	if _, err := OpenBadger(BadgerConfig{}, slog.New(slog.DiscardHandler)); err == nil {
		t.Fatal("expected error without path")
	}
}
