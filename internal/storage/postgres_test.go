package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testConnStr   string
	schemaCounter atomic.Int32
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16",
		postgres.WithDatabase("pixelwall"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		// The memory and badger tests still run without docker.
		fmt.Fprintf(os.Stderr, "postgres container unavailable, skipping postgres tests: %v\n", err)
		os.Exit(m.Run())
	}

	testConnStr, err = ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(fmt.Sprintf("get connection string: %v", err))
	}

	code := m.Run()
	_ = testcontainers.TerminateContainer(ctr)
	os.Exit(code)
}

// freshPool returns a pool whose search_path is a new, empty schema so
// tests never see each other's tables.
func freshPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testConnStr == "" {
		t.Skip("postgres container not available")
	}
	ctx := context.Background()
	schema := fmt.Sprintf("test_%d", schemaCounter.Add(1))

	admin, err := pgxpool.New(ctx, testConnStr)
	if err != nil {
		t.Fatalf("create admin pool: %v", err)
	}
	defer admin.Close()
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(testConnStr)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func freshStore(t *testing.T, numShards int) *PostgresStore {
	t.Helper()
	s := NewPostgresStore(freshPool(t), numShards, 5*time.Second, slog.New(slog.DiscardHandler))
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestPostgresStore_Contract(t *testing.T) {
	testStoreContract(t, freshStore(t, 4))
}

func TestPostgresStore_SpreadsCellsOverShards(t *testing.T) {
	s := freshStore(t, 4)
	ctx := context.Background()
	if err := s.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	total := 0
	for i := range 4 {
		var n int
		if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+ShardTable(i)).Scan(&n); err != nil {
			t.Fatalf("count shard %d: %v", i, err)
		}
		total += n
	}
	if total != len(sampleSnapshot().Cells) {
		t.Errorf("rows across shards: got %d, want %d", total, len(sampleSnapshot().Cells))
	}
}

func TestPostgresStore_ShrinkingShardCount(t *testing.T) {
	pool := freshPool(t)
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	wide := NewPostgresStore(pool, 8, 5*time.Second, logger)
	if err := wide.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := wide.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	narrow := NewPostgresStore(pool, 2, 5*time.Second, logger)
	got, err := narrow.Load(ctx)
	if err != nil {
		t.Fatalf("Load with fewer shards: %v", err)
	}
	assertSnapshotEqual(t, got, sampleSnapshot())

	if err := narrow.Save(ctx, got); err != nil {
		t.Fatalf("Save with fewer shards: %v", err)
	}
	var stale int
	for i := 2; i < 8; i++ {
		var n int
		if err := pool.QueryRow(ctx, "SELECT count(*) FROM "+ShardTable(i)).Scan(&n); err != nil {
			t.Fatalf("count shard %d: %v", i, err)
		}
		stale += n
	}
	if stale != 0 {
		t.Errorf("rows left in dropped shards: %d", stale)
	}
	got, err = narrow.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	assertSnapshotEqual(t, got, sampleSnapshot())
}

func TestPostgresStore_SkipsMalformedKeysOnSave(t *testing.T) {
	s := freshStore(t, 2)
	ctx := context.Background()
	snap := sampleSnapshot()
	bad := snap.Cells["0,0"]
	snap.Cells["nope"] = bad
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSnapshotEqual(t, got, sampleSnapshot())
}

func TestPostgresStore_QueryTimeout(t *testing.T) {
	pool := freshPool(t)
	s := NewPostgresStore(pool, 1, time.Nanosecond, slog.New(slog.DiscardHandler))
	if _, err := s.Load(context.Background()); err == nil {
		t.Error("expected timeout error")
	}
}
