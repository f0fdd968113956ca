// SPDX-License-Identifier: Apache-2.0

package tracking

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/adiadia/tracker/internal/persistence/sqlite"
	"github.com/adiadia/tracker/internal/registry"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistries() (*registry.Registry, *registry.Registry) {
	types := registry.EventTypes(map[string]any{
		"ET_LOGIN":  1,
		"ET_LOGOUT": 2,
		"ET_CLICK":  3,
	})
	keys := registry.StateKeys(map[string]any{
		"SK_MODE":   1,
		"SK_THEME":  2,
		"SK_LOCALE": 3,
	})
	return types, keys
}

type fixture struct {
	store   *sqlite.Store
	tracker *Tracker
}

func newFixture(t *testing.T, mutate func(*Config)) fixture {
	t.Helper()

	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "tracker.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	types, keys := testRegistries()
	require.NoError(t, store.SyncLookup(ctx, sqlite.EventTable, types))
	require.NoError(t, store.SyncLookup(ctx, sqlite.StateTable, keys))

	cfg := Config{
		Store:      store,
		EventTypes: types,
		StateKeys:  keys,
		EventTable: sqlite.EventTable,
		StateTable: sqlite.StateTable,
		Clock:      func() time.Time { return time.Unix(1_700_000_000, 0) },
		Logger:     discardLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	tr, err := New(cfg)
	require.NoError(t, err)

	return fixture{store: store, tracker: tr}
}
