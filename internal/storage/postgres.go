package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
	"github.com/ryanbastic/go-pixelwall/internal/ledger"
	"github.com/ryanbastic/go-pixelwall/internal/shard"
)

var cellColumns = []string{"x", "y", "color", "claimed_at", "expires_at", "contact_info"}

var ownershipColumns = []string{"tx_id", "cell_coords", "original_color", "claimed_at", "url", "username"}

// PostgresStore implements SnapshotStore on PostgreSQL. Cells are spread
// over numShards tables by coordinate; ownership records live in one
// table. Save replaces everything inside a single transaction.
type PostgresStore struct {
	pool         *pgxpool.Pool
	numShards    int
	queryTimeout time.Duration
	logger       *slog.Logger
}

// NewPostgresStore creates a SnapshotStore using the given connection pool.
// queryTimeout sets the per-operation context deadline; zero means no
// timeout. The pool is owned by the caller and not closed by Close.
func NewPostgresStore(pool *pgxpool.Pool, numShards int, queryTimeout time.Duration, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		pool:         pool,
		numShards:    max(numShards, 1),
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// withTimeout derives a child context with the configured query timeout.
// If queryTimeout is zero, the parent context is returned unchanged.
func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return ctx, func() {}
}

// Migrate creates the tables this store needs.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return RunMigrationsForPool(ctx, s.pool, 0, s.numShards-1)
}

// savedShards returns the shard count recorded by the last save, or
// false when nothing was saved.
func savedShards(ctx context.Context, q pgx.Tx) (int, bool, error) {
	var n int
	err := q.QueryRow(ctx, fmt.Sprintf(`SELECT num_shards FROM %s WHERE id = 1`, snapshotTable)).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read snapshot meta: %w", err)
	}
	return n, true, nil
}

func (s *PostgresStore) Load(ctx context.Context) (*ledger.Snapshot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback(ctx)

	n, ok, err := savedShards(ctx, tx)
	if err != nil || !ok {
		return nil, err
	}

	snap := ledger.NewSnapshot()
	for i := range n {
		if err := s.loadShard(ctx, tx, i, snap); err != nil {
			return nil, err
		}
	}

	rows, err := tx.Query(ctx, fmt.Sprintf(`
		SELECT tx_id, cell_coords, original_color, claimed_at, url, username
		FROM %s
	`, ownershipTable))
	if err != nil {
		return nil, fmt.Errorf("load ownership: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var txID string
		var r ledger.SnapshotRecord
		if err := rows.Scan(&txID, &r.CellCoords, &r.OriginalColor, &r.ClaimedAt, &r.URL, &r.Username); err != nil {
			s.logger.Warn("skipping undecodable ownership row", "error", err)
			continue
		}
		snap.Ownership[txID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load ownership: %w", err)
	}
	return snap, nil
}

func (s *PostgresStore) loadShard(ctx context.Context, tx pgx.Tx, shardID int, snap *ledger.Snapshot) error {
	rows, err := tx.Query(ctx, fmt.Sprintf(`
		SELECT x, y, color, claimed_at, expires_at, contact_info
		FROM %s
	`, ShardTable(shardID)))
	if err != nil {
		return fmt.Errorf("load shard %d: %w", shardID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			x, y int
			c    ledger.SnapshotCell
		)
		if err := rows.Scan(&x, &y, &c.Color, &c.ClaimedAt, &c.ExpiresAt, &c.ContactInfo); err != nil {
			s.logger.Warn("skipping undecodable cell row", "shard", shardID, "error", err)
			continue
		}
		snap.Cells[grid.Coord{X: x, Y: y}.Key()] = c
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load shard %d: %w", shardID, err)
	}
	return nil
}

// Save truncates every shard table written by this or the previous save
// and bulk-copies snap back in. Cell keys that do not parse are skipped.
func (s *PostgresStore) Save(ctx context.Context, snap *ledger.Snapshot) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serializes concurrent saves on the meta row.
	if _, err := tx.Exec(ctx, fmt.Sprintf(`LOCK TABLE %s IN EXCLUSIVE MODE`, snapshotTable)); err != nil {
		return fmt.Errorf("lock snapshot meta: %w", err)
	}
	prev, _, err := savedShards(ctx, tx)
	if err != nil {
		return err
	}

	tables := []string{ownershipTable}
	for i := range max(prev, s.numShards) {
		tables = append(tables, ShardTable(i))
	}
	for _, t := range tables {
		if _, err := tx.Exec(ctx, `DELETE FROM `+pgx.Identifier{t}.Sanitize()); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}

	byShard := make(map[shard.ID][][]any)
	for key, c := range snap.Cells {
		coord, err := grid.ParseKey(key)
		if err != nil {
			s.logger.Warn("skipping malformed cell key on save", "key", key)
			continue
		}
		id := shard.ForCoord(coord, s.numShards)
		byShard[id] = append(byShard[id], []any{coord.X, coord.Y, c.Color, c.ClaimedAt, c.ExpiresAt, c.ContactInfo})
	}
	for id, rows := range byShard {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{ShardTable(int(id))}, cellColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy shard %d: %w", id, err)
		}
	}

	owners := make([][]any, 0, len(snap.Ownership))
	for txID, r := range snap.Ownership {
		coords := r.CellCoords
		if coords == nil {
			coords = []string{}
		}
		owners = append(owners, []any{txID, coords, r.OriginalColor, r.ClaimedAt, r.URL, r.Username})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{ownershipTable}, ownershipColumns, pgx.CopyFromRows(owners)); err != nil {
		return fmt.Errorf("copy ownership: %w", err)
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, num_shards, saved_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET num_shards = EXCLUDED.num_shards, saved_at = EXCLUDED.saved_at
	`, snapshotTable), s.numShards)
	if err != nil {
		return fmt.Errorf("write snapshot meta: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	s.logger.Debug("postgres snapshot saved", "cells", len(snap.Cells), "records", len(snap.Ownership), "shards", s.numShards)
	return nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() error { return nil }
