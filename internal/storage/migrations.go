package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Tables outside the shard range.
const (
	ownershipTable = "ownership"
	snapshotTable  = "snapshot_meta"
)

// RunMigrationsForPool creates the cell shard tables in [shardStart,
// shardEnd] plus the ownership, snapshot metadata and plugin tables.
func RunMigrationsForPool(ctx context.Context, pool *pgxpool.Pool, shardStart, shardEnd int) error {
	for i := shardStart; i <= shardEnd; i++ {
		table := ShardTable(i)
		ddl := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				x            INTEGER NOT NULL,
				y            INTEGER NOT NULL,
				color        TEXT NOT NULL,
				claimed_at   BIGINT NOT NULL,
				expires_at   BIGINT NOT NULL,
				contact_info TEXT NOT NULL DEFAULT '',

				PRIMARY KEY (x, y)
			);
		`, table)

		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("migrate shard %d: %w", i, err)
		}
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			tx_id          TEXT PRIMARY KEY,
			cell_coords    TEXT[] NOT NULL,
			original_color TEXT NOT NULL,
			claimed_at     BIGINT NOT NULL,
			url            TEXT NOT NULL DEFAULT '',
			username       TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS %s (
			id         SMALLINT PRIMARY KEY CHECK (id = 1),
			num_shards INTEGER NOT NULL,
			saved_at   TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS plugins (
			id               UUID PRIMARY KEY,
			name             TEXT NOT NULL,
			endpoint         TEXT NOT NULL,
			subscribed_kinds TEXT[] NOT NULL,
			status           TEXT NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL
		);
	`, ownershipTable, snapshotTable)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate ownership tables: %w", err)
	}

	return nil
}

// ShardTable returns the table name for a given shard number.
func ShardTable(shardID int) string {
	return fmt.Sprintf("cells_%04d", shardID)
}
