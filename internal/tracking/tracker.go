// SPDX-License-Identifier: Apache-2.0

// Package tracking records user-scoped events and state transitions in two
// append-only logs and answers range and as-of queries over them.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/adiadia/tracker/internal/auth"
	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/metrics"
	"github.com/adiadia/tracker/internal/registry"
	"github.com/adiadia/tracker/internal/trackertime"
)

type Config struct {
	Store      Store
	EventTypes *registry.Registry
	StateKeys  *registry.Registry
	EventTable domain.Table
	StateTable domain.Table

	// Hook, when set, runs after every logged event.
	Hook EventHook
	// Identity resolves the user for calls without WithUser. Defaults to
	// the user carried on the context.
	Identity IdentityProvider
	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Tracker wires the registries and logs. It owns no storage state.
type Tracker struct {
	events   *EventLog
	states   *StateLog
	types    *registry.Registry
	keys     *registry.Registry
	hook     EventHook
	identity IdentityProvider
	clock    func() time.Time
	logger   *slog.Logger
}

func New(cfg Config) (*Tracker, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	identity := cfg.Identity
	if identity == nil {
		identity = auth.ContextIdentity{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Tracker{
		events:   NewEventLog(cfg.Store, cfg.EventTable, cfg.EventTypes, logger),
		states:   NewStateLog(cfg.Store, cfg.StateTable, cfg.StateKeys, logger),
		types:    cfg.EventTypes,
		keys:     cfg.StateKeys,
		hook:     cfg.Hook,
		identity: identity,
		clock:    clock,
		logger:   logger,
	}, nil
}

func validateConfig(cfg Config) error {
	if cfg.Store == nil {
		return fmt.Errorf("%w: store is required", domain.ErrInvalidConfiguration)
	}
	if cfg.EventTypes == nil || cfg.StateKeys == nil {
		return fmt.Errorf("%w: both event types and state keys registries are required", domain.ErrInvalidConfiguration)
	}
	for _, r := range []*registry.Registry{cfg.EventTypes, cfg.StateKeys} {
		if _, err := r.IDs(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
		}
	}
	if !cfg.EventTable.Valid() {
		return fmt.Errorf("%w: event table is incomplete", domain.ErrInvalidConfiguration)
	}
	if !cfg.StateTable.Valid() {
		return fmt.Errorf("%w: state table is incomplete", domain.ErrInvalidConfiguration)
	}
	return nil
}

func (t *Tracker) Events() *EventLog { return t.events }
func (t *Tracker) States() *StateLog { return t.states }

// EventTypesAvailable returns the ET_ prefixed declarations.
func (t *Tracker) EventTypesAvailable() map[string]any {
	return t.types.Available()
}

// StateKeysAvailable returns the SK_ prefixed declarations.
func (t *Tracker) StateKeysAvailable() map[string]any {
	return t.keys.Available()
}

// LogEvent records an event for the given or current user at the current
// time. If the hook fails the event is already stored and a *HookError is
// returned together with it.
func (t *Tracker) LogEvent(ctx context.Context, eventType int, payload any, opts ...LogOption) (domain.Event, error) {
	o := collectOptions(opts)

	data, err := t.events.prepare(eventType, payload)
	if err != nil {
		return domain.Event{}, err
	}
	userID, err := t.resolveUser(ctx, o, "event")
	if err != nil {
		return domain.Event{}, err
	}

	ev, err := t.events.insert(ctx, t.timestamp(o), userID, eventType, data)
	if err != nil {
		return domain.Event{}, err
	}

	if t.hook == nil || o.skipHook {
		return ev, nil
	}
	if err := t.hook.AfterLogEvent(ctx, ev); err != nil {
		metrics.IncHookFailure()
		t.logger.Error("post event hook failed",
			"timestamp", ev.Timestamp,
			"user_id", ev.UserID,
			"event_type", ev.EventType,
			"error", err,
		)
		return ev, &HookError{Event: ev, Err: err}
	}
	return ev, nil
}

// LogState records the value of a state key for the given or current user
// at the current time.
func (t *Tracker) LogState(ctx context.Context, stateKey int, value any, opts ...LogOption) (domain.StateTransition, error) {
	o := collectOptions(opts)

	data, err := t.states.prepare(stateKey, value)
	if err != nil {
		return domain.StateTransition{}, err
	}
	userID, err := t.resolveUser(ctx, o, "state")
	if err != nil {
		return domain.StateTransition{}, err
	}

	return t.states.insert(ctx, t.timestamp(o), userID, stateKey, data)
}

// EventsBetween lazily yields the events in [from, until].
func (t *Tracker) EventsBetween(
	ctx context.Context,
	from, until trackertime.Timestamp,
	users []domain.UserID,
	types []int,
) iter.Seq2[domain.Event, error] {
	return t.events.Query(ctx, domain.EventQuery{
		From:  from,
		Until: until,
		Users: users,
		Types: types,
	})
}

// StateAt returns one entry per requested state key as of at.
func (t *Tracker) StateAt(ctx context.Context, at trackertime.Timestamp, keys []int) (domain.Snapshot, error) {
	return t.states.ReconstructAsOf(ctx, at, keys)
}

func (t *Tracker) resolveUser(ctx context.Context, o logOptions, what string) (domain.UserID, error) {
	if o.user != nil {
		return *o.user, nil
	}
	if userID, ok := t.identity.CurrentUser(ctx); ok {
		return userID, nil
	}
	return 0, fmt.Errorf("cannot log %s: %w", what, domain.ErrNoAuthenticatedUser)
}

func (t *Tracker) timestamp(o logOptions) trackertime.Timestamp {
	if o.timestamp != "" {
		return o.timestamp
	}
	return trackertime.FromTime(t.clock())
}

// IsHookError reports whether err came from the post event hook, meaning
// the event itself was stored.
func IsHookError(err error) bool {
	var hookErr *HookError
	return errors.As(err, &hookErr)
}
