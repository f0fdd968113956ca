//go:build integration

// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/registry"
	"github.com/adiadia/tracker/internal/trackertime"
	"github.com/adiadia/tracker/internal/tracking"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func newTempDatabase(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	baseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if baseURL == "" {
		t.Skip("set DATABASE_URL to run integration tests")
	}

	adminPool, err := pgxpool.New(ctx, baseURL)
	if err != nil {
		t.Skipf("skip integration test: cannot create admin pool (%v)", err)
	}
	t.Cleanup(adminPool.Close)

	if err := adminPool.Ping(ctx); err != nil {
		t.Skipf("skip integration test: cannot reach database (%v)", err)
	}

	testDBName := "tracker_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := adminPool.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{testDBName}.Sanitize()); err != nil {
		t.Skipf("skip integration test: cannot create database (%v)", err)
	}

	poolCfg, err := pgxpool.ParseConfig(baseURL)
	if err != nil {
		t.Fatalf("parse DATABASE_URL: %v", err)
	}
	poolCfg.ConnConfig.Database = testDBName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		t.Fatalf("create temp database pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()

		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cleanupCancel()

		_, _ = adminPool.Exec(cleanupCtx, `
			SELECT pg_terminate_backend(pid)
			FROM pg_stat_activity
			WHERE datname = $1
			  AND pid <> pg_backend_pid()
		`, testDBName)
		if _, err := adminPool.Exec(cleanupCtx, "DROP DATABASE "+pgx.Identifier{testDBName}.Sanitize()); err != nil {
			t.Logf("cleanup warning: drop temp database failed (%v)", err)
		}
	})

	return pool
}

func TestEnsureSchemaBootstrapsEmptyDatabase(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	pool := newTempDatabase(t, ctx)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := EnsureSchema(ctx, pool, logger); err != nil {
		t.Fatalf("ensure schema first run: %v", err)
	}
	if err := EnsureSchema(ctx, pool, logger); err != nil {
		t.Fatalf("ensure schema second run: %v", err)
	}
	if err := NewSchemaHealthChecker(pool).Check(ctx); err != nil {
		t.Fatalf("schema ready check: %v", err)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	pool := newTempDatabase(t, ctx)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := EnsureSchema(ctx, pool, logger); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	types := registry.EventTypes(map[string]any{"ET_LOGIN": 1, "ET_LOGOUT": 2})
	keys := registry.StateKeys(map[string]any{"SK_MODE": 1, "SK_THEME": 2, "SK_LOCALE": 3})

	store := NewStore(pool, logger)
	if err := store.SyncLookup(ctx, EventTable, types); err != nil {
		t.Fatalf("sync event types: %v", err)
	}
	if err := store.SyncLookup(ctx, StateTable, keys); err != nil {
		t.Fatalf("sync state keys: %v", err)
	}

	tr, err := tracking.New(tracking.Config{
		Store:      store,
		EventTypes: types,
		StateKeys:  keys,
		EventTable: EventTable,
		StateTable: StateTable,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}

	// Wider than int64 on purpose.
	big := trackertime.Must("123456789012345678901234")
	if _, err := tr.LogEvent(ctx, 1, map[string]any{"ip": "10.0.0.1"}, tracking.WithUser(5), tracking.WithTimestamp(big)); err != nil {
		t.Fatalf("log event: %v", err)
	}
	_, err = tr.LogEvent(ctx, 1, nil, tracking.WithUser(5), tracking.WithTimestamp(big))
	if !errors.Is(err, domain.ErrDuplicateInstant) {
		t.Fatalf("expected duplicate instant, got %v", err)
	}
	if _, err := tr.LogEvent(ctx, 2, nil, tracking.WithUser(5), tracking.WithTimestamp(big)); err != nil {
		t.Fatalf("log second type at same instant: %v", err)
	}

	events, err := tracking.Collect(tr.EventsBetween(ctx, trackertime.Zero, big, nil, []int{1}))
	if err != nil {
		t.Fatalf("events between: %v", err)
	}
	if len(events) != 1 || events[0].Timestamp != big || events[0].EventType != 1 {
		t.Fatalf("unexpected events %+v", events)
	}

	for _, step := range []struct {
		ts    string
		key   int
		value any
	}{
		{"10", 1, "a"},
		{"20", 1, "b"},
		{"30", 1, nil},
		{"15", 3, "en"},
	} {
		if _, err := tr.LogState(ctx, step.key, step.value, tracking.WithUser(9), tracking.WithTimestamp(trackertime.Must(step.ts))); err != nil {
			t.Fatalf("log state %s: %v", step.ts, err)
		}
	}

	snap, err := tr.StateAt(ctx, trackertime.Must("25"), nil)
	if err != nil {
		t.Fatalf("state at: %v", err)
	}
	if string(snap[1]) != `"b"` || snap[2] != nil || string(snap[3]) != `"en"` {
		t.Fatalf("unexpected snapshot %v", snap)
	}

	snap, err = tr.StateAt(ctx, trackertime.Must("30"), []int{1})
	if err != nil {
		t.Fatalf("state at: %v", err)
	}
	if len(snap) != 1 || string(snap[1]) != "null" {
		t.Fatalf("unexpected snapshot %v", snap)
	}

	if !json.Valid(events[0].Payload) {
		t.Fatalf("payload is not JSON: %s", events[0].Payload)
	}
}

func TestConcurrentInsertAdmitsOneWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	pool := newTempDatabase(t, ctx)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := EnsureSchema(ctx, pool, logger); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	store := NewStore(pool, logger)
	if err := store.SyncLookup(ctx, EventTable, registry.EventTypes(map[string]any{"ET_LOGIN": 1})); err != nil {
		t.Fatalf("sync event types: %v", err)
	}

	const writers = 16
	ts := trackertime.Must("170000")
	errs := make([]error, writers)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = store.InsertFact(ctx, EventTable, domain.Fact{Timestamp: ts, UserID: 3, Discriminator: 1})
		}(i)
	}
	close(start)
	wg.Wait()

	ok, dup := 0, 0
	for i, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrDuplicateInstant):
			dup++
		default:
			t.Fatalf("writer %d: unexpected error %v", i, err)
		}
	}
	if ok != 1 || dup != writers-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d and %d", writers-1, ok, dup)
	}
}
