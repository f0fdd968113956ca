// SPDX-License-Identifier: Apache-2.0

package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/adiadia/tracker/internal/auth"
	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/persistence/sqlite"
	"github.com/adiadia/tracker/internal/registry"
	"github.com/adiadia/tracker/internal/trackertime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsIncompleteConfig(t *testing.T) {
	types, keys := testRegistries()
	store := &recordingStore{}

	cases := map[string]Config{
		"no store": {
			EventTypes: types, StateKeys: keys,
			EventTable: sqlite.EventTable, StateTable: sqlite.StateTable,
		},
		"no registries": {
			Store:      store,
			EventTable: sqlite.EventTable, StateTable: sqlite.StateTable,
		},
		"non integer event type": {
			Store:      store,
			EventTypes: registry.EventTypes(map[string]any{"ET_A": 1, "ET_B": "string"}),
			StateKeys:  keys,
			EventTable: sqlite.EventTable, StateTable: sqlite.StateTable,
		},
		"missing state table": {
			Store:      store,
			EventTypes: types, StateKeys: keys,
			EventTable: sqlite.EventTable,
		},
	}

	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(cfg)
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		})
	}
}

func TestAvailableRegistries(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, map[string]any{"ET_LOGIN": 1, "ET_LOGOUT": 2, "ET_CLICK": 3}, f.tracker.EventTypesAvailable())
	assert.Equal(t, map[string]any{"SK_MODE": 1, "SK_THEME": 2, "SK_LOCALE": 3}, f.tracker.StateKeysAvailable())
}

func TestLogEventDuplicateInstant(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	ev, err := f.tracker.LogEvent(ctx, 1, map[string]string{"ip": "10.0.0.1"}, WithUser(4))
	require.NoError(t, err)
	assert.Equal(t, trackertime.Must("17000000000000"), ev.Timestamp)
	assert.JSONEq(t, `{"ip":"10.0.0.1"}`, string(ev.Payload))

	_, err = f.tracker.LogEvent(ctx, 1, nil, WithUser(4))
	assert.ErrorIs(t, err, domain.ErrDuplicateInstant)

	_, err = f.tracker.LogEvent(ctx, 2, nil, WithUser(4))
	assert.NoError(t, err, "another type at the same instant")

	_, err = f.tracker.LogEvent(ctx, 1, nil, WithUser(5))
	assert.NoError(t, err, "another user at the same instant")
}

func TestLogEventNullPayloadRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	ev, err := f.tracker.LogEvent(ctx, 1, nil, WithUser(7))
	require.NoError(t, err)

	events, err := Collect(f.tracker.EventsBetween(ctx, ev.Timestamp, ev.Timestamp, []domain.UserID{7}, nil))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Payload)
	assert.Equal(t, domain.UserID(7), events[0].UserID)
	assert.Equal(t, 1, events[0].EventType)
}

func TestEventsBetweenFilters(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	log := func(ts string, user domain.UserID, eventType int) {
		t.Helper()
		_, err := f.tracker.LogEvent(ctx, eventType, nil, WithUser(user), WithTimestamp(trackertime.Must(ts)))
		require.NoError(t, err)
	}
	log("100", 1, 1)
	log("200", 2, 2)
	log("300", 1, 3)
	log("400", 2, 1)
	log("500", 1, 2)

	all, err := Collect(f.tracker.EventsBetween(ctx, trackertime.Must("100"), trackertime.Must("400"), nil, nil))
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].Timestamp.Before(all[i].Timestamp))
	}

	typed, err := Collect(f.tracker.EventsBetween(ctx, trackertime.Zero, trackertime.Must("500"), nil, []int{1, 2}))
	require.NoError(t, err)
	require.Len(t, typed, 4)
	for _, ev := range typed {
		assert.Contains(t, []int{1, 2}, ev.EventType)
	}

	both, err := Collect(f.tracker.EventsBetween(ctx, trackertime.Zero, trackertime.Must("500"), []domain.UserID{2}, []int{1}))
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, trackertime.Must("400"), both[0].Timestamp)
}

func TestEventsBetweenInvalidBounds(t *testing.T) {
	f := newFixture(t, nil)

	_, err := Collect(f.tracker.EventsBetween(context.Background(), "007", trackertime.Must("10"), nil, nil))
	assert.ErrorIs(t, err, domain.ErrInvalidTimestamp)
}

func TestStateAtIsRegistryComplete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.tracker.LogState(ctx, 1, "v1", WithUser(1), WithTimestamp(trackertime.Must("10")))
	require.NoError(t, err)
	_, err = f.tracker.LogState(ctx, 3, "v3", WithUser(2), WithTimestamp(trackertime.Must("20")))
	require.NoError(t, err)

	snap, err := f.tracker.StateAt(ctx, trackertime.Must("30"), nil)
	require.NoError(t, err)
	require.Len(t, snap, 3)
	assert.Equal(t, `"v1"`, string(snap[1]))
	assert.Nil(t, snap[2])
	assert.Equal(t, `"v3"`, string(snap[3]))
}

func TestStateAtTimeline(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.tracker.LogState(ctx, 1, "a", WithUser(1), WithTimestamp(trackertime.Must("10")))
	require.NoError(t, err)
	_, err = f.tracker.LogState(ctx, 1, "b", WithUser(1), WithTimestamp(trackertime.Must("20")))
	require.NoError(t, err)
	_, err = f.tracker.LogState(ctx, 1, nil, WithUser(1), WithTimestamp(trackertime.Must("30")))
	require.NoError(t, err)

	cases := []struct {
		at   string
		want json.RawMessage
	}{
		{"5", nil},
		{"10", json.RawMessage(`"a"`)},
		{"15", json.RawMessage(`"a"`)},
		{"20", json.RawMessage(`"b"`)},
		{"30", json.RawMessage(`null`)},
	}
	for _, tc := range cases {
		snap, err := f.tracker.StateAt(ctx, trackertime.Must(tc.at), []int{1})
		require.NoError(t, err)
		require.Len(t, snap, 1)
		assert.Equal(t, tc.want, snap[1], "as of %s", tc.at)
	}
}

func TestStateAtSpansUsers(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.tracker.LogState(ctx, 2, "dark", WithUser(1), WithTimestamp(trackertime.Must("10")))
	require.NoError(t, err)
	_, err = f.tracker.LogState(ctx, 2, "light", WithUser(2), WithTimestamp(trackertime.Must("20")))
	require.NoError(t, err)

	snap, err := f.tracker.StateAt(ctx, trackertime.Must("25"), []int{2})
	require.NoError(t, err)
	assert.Equal(t, `"light"`, string(snap[2]))
}

func TestStateAtIgnoresUnknownKeys(t *testing.T) {
	f := newFixture(t, nil)

	snap, err := f.tracker.StateAt(context.Background(), trackertime.Must("10"), []int{2, 42})
	require.NoError(t, err)
	assert.Equal(t, domain.Snapshot{2: nil}, snap)
}

func TestLogStateDuplicateInstant(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.tracker.LogState(ctx, 1, 1, WithUser(3))
	require.NoError(t, err)
	_, err = f.tracker.LogState(ctx, 1, 2, WithUser(3))
	assert.ErrorIs(t, err, domain.ErrDuplicateInstant)
}

func TestLogUsesIdentityFromContext(t *testing.T) {
	f := newFixture(t, nil)

	ev, err := f.tracker.LogEvent(auth.WithUserID(context.Background(), 11), 3, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID(11), ev.UserID)

	st, err := f.tracker.LogState(auth.WithUserID(context.Background(), 12), 1, true)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID(12), st.UserID)
	assert.Equal(t, "true", string(st.Value))
}

func TestLogWithoutIdentity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.tracker.LogEvent(ctx, 1, nil)
	assert.ErrorIs(t, err, domain.ErrNoAuthenticatedUser)

	_, err = f.tracker.LogState(ctx, 1, "x")
	assert.ErrorIs(t, err, domain.ErrNoAuthenticatedUser)
}

func TestLogValidationOrder(t *testing.T) {
	store := &recordingStore{}
	types, keys := testRegistries()
	tr, err := New(Config{
		Store:      store,
		EventTypes: types,
		StateKeys:  keys,
		EventTable: sqlite.EventTable,
		StateTable: sqlite.StateTable,
		Logger:     discardLogger(),
	})
	require.NoError(t, err)
	ctx := context.Background()

	// Encoding is checked before the type, the type before the identity.
	_, err = tr.LogEvent(ctx, 99, math.Inf(1))
	assert.ErrorIs(t, err, domain.ErrEncoding)

	_, err = tr.LogEvent(ctx, 99, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidType)

	_, err = tr.LogState(ctx, 99, make(chan int))
	assert.ErrorIs(t, err, domain.ErrEncoding)

	_, err = tr.LogState(ctx, 99, "x")
	assert.ErrorIs(t, err, domain.ErrInvalidKey)

	_, err = tr.LogEvent(ctx, 1, json.RawMessage(`{broken`), WithUser(1))
	assert.ErrorIs(t, err, domain.ErrEncoding)

	_, err = tr.LogEvent(ctx, 1, nil, WithUser(1), WithTimestamp("01"))
	assert.ErrorIs(t, err, domain.ErrInvalidTimestamp)

	assert.Zero(t, store.inserts, "no invalid call reaches the store")
}

func TestLogEventHook(t *testing.T) {
	var seen []domain.Event
	f := newFixture(t, func(cfg *Config) {
		cfg.Hook = HookFunc(func(_ context.Context, ev domain.Event) error {
			seen = append(seen, ev)
			return nil
		})
	})
	ctx := context.Background()

	ev, err := f.tracker.LogEvent(ctx, 1, "first", WithUser(1))
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, ev, seen[0])

	_, err = f.tracker.LogEvent(ctx, 2, "second", WithUser(1), WithoutHook())
	require.NoError(t, err)
	assert.Len(t, seen, 1, "hook suppressed")

	_, err = f.tracker.LogEvent(ctx, 1, nil, WithUser(1))
	require.ErrorIs(t, err, domain.ErrDuplicateInstant)
	assert.Len(t, seen, 1, "hook not run for failed writes")

	_, err = f.tracker.LogState(ctx, 1, "x", WithUser(1))
	require.NoError(t, err)
	assert.Len(t, seen, 1, "states never run the hook")
}

func TestLogEventHookFailure(t *testing.T) {
	hookErr := errors.New("downstream unavailable")
	f := newFixture(t, func(cfg *Config) {
		cfg.Hook = HookFunc(func(context.Context, domain.Event) error { return hookErr })
	})
	ctx := context.Background()

	ev, err := f.tracker.LogEvent(ctx, 1, nil, WithUser(1))
	require.Error(t, err)
	assert.True(t, IsHookError(err))
	assert.ErrorIs(t, err, hookErr)

	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, ev, he.Event)

	events, err := Collect(f.tracker.EventsBetween(ctx, ev.Timestamp, ev.Timestamp, nil, nil))
	require.NoError(t, err)
	assert.Len(t, events, 1, "event persisted despite hook failure")
}

func TestClockRounding(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.Clock = func() time.Time { return time.Unix(10, 123_450_000) }
	})

	ev, err := f.tracker.LogEvent(context.Background(), 1, nil, WithUser(1))
	require.NoError(t, err)
	assert.Equal(t, trackertime.Must("101235"), ev.Timestamp)
}

func TestCollectStopsAtError(t *testing.T) {
	boom := errors.New("boom")
	seq := func(yield func(int, error) bool) {
		if !yield(1, nil) {
			return
		}
		yield(0, boom)
	}

	out, err := Collect(seq)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, out)
}
