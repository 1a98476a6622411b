package storage

import (
	"context"
	"testing"

	"github.com/ryanbastic/go-pixelwall/internal/ledger"
)

func sampleSnapshot() *ledger.Snapshot {
	snap := ledger.NewSnapshot()
	snap.Cells["0,0"] = ledger.SnapshotCell{Color: "#FF0000", ClaimedAt: 1000, ExpiresAt: 2000, ContactInfo: "a@example.com"}
	snap.Cells["999,12"] = ledger.SnapshotCell{Color: "#00FF00", ClaimedAt: 1000, ExpiresAt: 2000}
	snap.Cells["5,5"] = ledger.SnapshotCell{Color: "#0000FF", ClaimedAt: 1500, ExpiresAt: 2500}
	snap.Ownership["tx-a"] = ledger.SnapshotRecord{
		CellCoords:    []string{"0,0", "999,12"},
		OriginalColor: "#FF0000",
		ClaimedAt:     1000,
		URL:           "https://example.com",
		Username:      "ada",
	}
	snap.Ownership["tx-b"] = ledger.SnapshotRecord{CellCoords: []string{"5,5"}, OriginalColor: "#0000FF", ClaimedAt: 1500}
	return snap
}

func assertSnapshotEqual(t *testing.T, got, want *ledger.Snapshot) {
	t.Helper()
	if got == nil {
		t.Fatal("snapshot is nil")
	}
	if len(got.Cells) != len(want.Cells) {
		t.Errorf("cells: got %d, want %d", len(got.Cells), len(want.Cells))
	}
	for k, w := range want.Cells {
		if g, ok := got.Cells[k]; !ok || g != w {
			t.Errorf("cell %s: got %+v, want %+v", k, g, w)
		}
	}
	if len(got.Ownership) != len(want.Ownership) {
		t.Errorf("records: got %d, want %d", len(got.Ownership), len(want.Ownership))
	}
	for tx, w := range want.Ownership {
		g, ok := got.Ownership[tx]
		if !ok {
			t.Errorf("record %s missing", tx)
			continue
		}
		if g.OriginalColor != w.OriginalColor || g.ClaimedAt != w.ClaimedAt || g.URL != w.URL || g.Username != w.Username {
			t.Errorf("record %s: got %+v, want %+v", tx, g, w)
		}
		if len(g.CellCoords) != len(w.CellCoords) {
			t.Errorf("record %s coords: got %v, want %v", tx, g.CellCoords, w.CellCoords)
			continue
		}
		for i := range w.CellCoords {
			if g.CellCoords[i] != w.CellCoords[i] {
				t.Errorf("record %s coords: got %v, want %v", tx, g.CellCoords, w.CellCoords)
				break
			}
		}
	}
}

// testStoreContract exercises the behaviour every SnapshotStore shares.
func testStoreContract(t *testing.T, store SnapshotStore) {
	t.Helper()
	ctx := context.Background()

	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load before save: %v", err)
	}
	if snap != nil {
		t.Fatalf("Load before save: got %d cells, want nil snapshot", len(snap.Cells))
	}

	want := sampleSnapshot()
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSnapshotEqual(t, got, want)

	// A second save replaces the first entirely.
	next := ledger.NewSnapshot()
	next.Cells["1,1"] = ledger.SnapshotCell{Color: "#123456", ClaimedAt: 3000, ExpiresAt: 4000}
	next.Ownership["tx-c"] = ledger.SnapshotRecord{CellCoords: []string{"1,1"}, OriginalColor: "#123456", ClaimedAt: 3000}
	if err := store.Save(ctx, next); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	got, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	assertSnapshotEqual(t, got, next)

	// Saving an empty snapshot is not the same as never saving.
	if err := store.Save(ctx, ledger.NewSnapshot()); err != nil {
		t.Fatalf("empty Save: %v", err)
	}
	got, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("empty Load: %v", err)
	}
	if got == nil || len(got.Cells) != 0 || len(got.Ownership) != 0 {
		t.Errorf("empty Load: got %+v", got)
	}
}
