package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/ryanbastic/go-pixelwall/internal/ledger"
)

// Key layout. Each save writes a fresh generation and then flips
// generationKey, so a crash mid-save leaves the previous snapshot intact.
//
//	meta/generation          -> uint64 big endian
//	g/<gen>/cell/<x,y>       -> JSON ledger.SnapshotCell
//	g/<gen>/own/<tx_id>      -> JSON ledger.SnapshotRecord
const (
	generationKey = "meta/generation"
	cellSegment   = "cell/"
	ownSegment    = "own/"
)

// BadgerConfig holds configuration for the embedded store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM; used by tests.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// BadgerStore is a SnapshotStore on an embedded BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// OpenBadger opens (or creates) a BadgerStore.
func OpenBadger(cfg BadgerConfig, logger *slog.Logger) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger path is required for a persistent store")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

func generationPrefix(gen uint64) string {
	return fmt.Sprintf("g/%016x/", gen)
}

func (s *BadgerStore) generation(txn *badger.Txn) (uint64, bool, error) {
	item, err := txn.Get([]byte(generationKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var gen uint64
	err = item.Value(func(v []byte) error {
		if len(v) != 8 {
			return fmt.Errorf("generation value has %d bytes", len(v))
		}
		gen = binary.BigEndian.Uint64(v)
		return nil
	})
	return gen, true, err
}

// Load reads the current generation. Values that fail to decode are
// skipped and logged.
func (s *BadgerStore) Load(ctx context.Context) (*ledger.Snapshot, error) {
	var snap *ledger.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		gen, ok, err := s.generation(txn)
		if err != nil || !ok {
			return err
		}
		snap = ledger.NewSnapshot()
		prefix := []byte(generationPrefix(gen))

		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 256, Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			rest := strings.TrimPrefix(string(item.Key()), string(prefix))
			err := item.Value(func(v []byte) error {
				return decodeEntry(snap, rest, v)
			})
			if err != nil {
				s.logger.Warn("skipping undecodable snapshot entry", "key", string(item.Key()), "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load badger snapshot: %w", err)
	}
	return snap, nil
}

func decodeEntry(snap *ledger.Snapshot, key string, v []byte) error {
	switch {
	case strings.HasPrefix(key, cellSegment):
		var c ledger.SnapshotCell
		if err := json.Unmarshal(v, &c); err != nil {
			return err
		}
		snap.Cells[strings.TrimPrefix(key, cellSegment)] = c
	case strings.HasPrefix(key, ownSegment):
		var r ledger.SnapshotRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		snap.Ownership[strings.TrimPrefix(key, ownSegment)] = r
	default:
		return fmt.Errorf("unknown key segment")
	}
	return nil
}

// Save writes snap as a new generation, makes it current and drops the
// previous one.
func (s *BadgerStore) Save(ctx context.Context, snap *ledger.Snapshot) error {
	var prev uint64
	var hadPrev bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		prev, hadPrev, err = s.generation(txn)
		return err
	})
	if err != nil {
		return fmt.Errorf("read generation: %w", err)
	}
	next := prev + 1
	prefix := generationPrefix(next)

	// A failed earlier save may have left a partial generation behind.
	if err := s.db.DropPrefix([]byte(prefix)); err != nil {
		return fmt.Errorf("drop stale generation: %w", err)
	}

	wb := s.db.NewWriteBatch()
	if err := writeGeneration(ctx, wb, prefix, snap); err != nil {
		wb.Cancel()
		return err
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush snapshot batch: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], next)
		return txn.Set([]byte(generationKey), v[:])
	})
	if err != nil {
		return fmt.Errorf("commit generation: %w", err)
	}

	if hadPrev {
		if err := s.db.DropPrefix([]byte(generationPrefix(prev))); err != nil {
			s.logger.Warn("drop previous snapshot generation", "generation", prev, "error", err)
		}
	}
	s.logger.Debug("badger snapshot saved", "generation", next, "cells", len(snap.Cells), "records", len(snap.Ownership))
	return nil
}

func writeGeneration(ctx context.Context, wb *badger.WriteBatch, prefix string, snap *ledger.Snapshot) error {
	for key, c := range snap.Cells {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := setJSON(wb, prefix+cellSegment+key, c); err != nil {
			return err
		}
	}
	for tx, r := range snap.Ownership {
		if err := setJSON(wb, prefix+ownSegment+tx, r); err != nil {
			return err
		}
	}
	return nil
}

func setJSON(wb *badger.WriteBatch, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := wb.Set([]byte(key), data); err != nil {
		return fmt.Errorf("batch set %s: %w", key, err)
	}
	return nil
}

// RunGC runs one round of value log garbage collection. badger reports
// ErrNoRewrite when there is nothing to collect; that is not an error.
func (s *BadgerStore) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if err == nil || errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
