package sweep

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ryanbastic/go-pixelwall/internal/ledger"
	"github.com/ryanbastic/go-pixelwall/internal/storage"
	"github.com/ryanbastic/go-pixelwall/internal/trigger"
)

const (
	// DefaultPersistInterval is how often a dirty ledger is flushed.
	DefaultPersistInterval = 2 * time.Second

	// gcEvery runs value log GC on stores that support it every n saves.
	gcEvery = 50
)

// Snapshotter is the part of the ledger the persister reads.
type Snapshotter interface {
	Snapshot() *ledger.Snapshot
}

// Restorer is the part of the ledger Bootstrap writes.
type Restorer interface {
	Restore(snap *ledger.Snapshot) ledger.RestoreReport
}

// PersistObserver is told the outcome of every save.
type PersistObserver interface {
	ObservePersist(elapsed time.Duration, err error)
}

type garbageCollector interface {
	RunGC(discardRatio float64) error
}

// Persister saves the ledger to a SnapshotStore after it changes. Bus
// events only set a dirty flag; the save itself happens on the ticker so
// bursts of claims cost one write.
type Persister struct {
	ledger   Snapshotter
	store    storage.SnapshotStore
	interval time.Duration
	observer PersistObserver
	logger   *slog.Logger

	dirty atomic.Bool
	saves atomic.Int64
}

// NewPersister creates a Persister. observer may be nil.
func NewPersister(l Snapshotter, store storage.SnapshotStore, interval time.Duration, observer PersistObserver, logger *slog.Logger) *Persister {
	if interval <= 0 {
		interval = DefaultPersistInterval
	}
	return &Persister{ledger: l, store: store, interval: interval, observer: observer, logger: logger}
}

// MarkDirty schedules a save on the next tick. It is a trigger.HandlerFunc.
func (p *Persister) MarkDirty(trigger.Event) {
	p.dirty.Store(true)
}

// Dirty reports whether a save is pending.
func (p *Persister) Dirty() bool { return p.dirty.Load() }

// Run subscribes to bus and flushes every interval until ctx is
// cancelled. The final flush runs on its own short-lived context so it
// still happens after ctx is done.
func (p *Persister) Run(ctx context.Context, bus *trigger.Bus) error {
	unsubscribe := bus.Subscribe(p.MarkDirty)
	defer unsubscribe()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("persister started", "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), max(p.interval, 5*time.Second))
			defer cancel()
			err := p.Flush(flushCtx)
			p.logger.Info("persister stopped")
			return err
		case <-ticker.C:
			_ = p.Flush(ctx)
		}
	}
}

// Flush saves the ledger if it is dirty. A failed save leaves the dirty
// flag set so the next tick retries.
func (p *Persister) Flush(ctx context.Context) error {
	if !p.dirty.Swap(false) {
		return nil
	}
	return p.save(ctx)
}

// SaveNow saves unconditionally.
func (p *Persister) SaveNow(ctx context.Context) error {
	p.dirty.Store(false)
	return p.save(ctx)
}

func (p *Persister) save(ctx context.Context) error {
	start := time.Now()
	snap := p.ledger.Snapshot()
	err := p.store.Save(ctx, snap)
	if p.observer != nil {
		p.observer.ObservePersist(time.Since(start), err)
	}
	if err != nil {
		p.dirty.Store(true)
		p.logger.Error("snapshot save failed", "error", err)
		return err
	}
	p.logger.Debug("snapshot saved", "cells", len(snap.Cells), "records", len(snap.Ownership), "elapsed", time.Since(start))

	if gc, ok := p.store.(garbageCollector); ok && p.saves.Add(1)%gcEvery == 0 {
		if err := gc.RunGC(0.5); err != nil {
			p.logger.Warn("store garbage collection failed", "error", err)
		}
	}
	return nil
}

// Bootstrap loads the last snapshot into the ledger. A load failure is
// logged and the ledger starts empty; it is never fatal.
func Bootstrap(ctx context.Context, l Restorer, store storage.SnapshotStore, logger *slog.Logger) ledger.RestoreReport {
	snap, err := store.Load(ctx)
	if err != nil {
		logger.Error("snapshot load failed, starting with an empty grid", "error", err)
		return l.Restore(nil)
	}
	if snap == nil {
		logger.Info("no snapshot found, starting with an empty grid")
		return l.Restore(nil)
	}
	return l.Restore(snap)
}
