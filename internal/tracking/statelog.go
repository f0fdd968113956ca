// SPDX-License-Identifier: Apache-2.0

package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/metrics"
	"github.com/adiadia/tracker/internal/registry"
	"github.com/adiadia/tracker/internal/trackertime"
)

// StateLog is the append-only log of state transitions.
type StateLog struct {
	store  Store
	table  domain.Table
	keys   *registry.Registry
	logger *slog.Logger
}

func NewStateLog(store Store, table domain.Table, keys *registry.Registry, logger *slog.Logger) *StateLog {
	if logger == nil {
		logger = slog.Default()
	}

	return &StateLog{
		store:  store,
		table:  table,
		keys:   keys,
		logger: logger,
	}
}

// Append records that stateKey took value at ts. A nil value is stored as
// the JSON literal null.
func (l *StateLog) Append(
	ctx context.Context,
	ts trackertime.Timestamp,
	userID domain.UserID,
	stateKey int,
	value any,
) (domain.StateTransition, error) {
	data, err := l.prepare(stateKey, value)
	if err != nil {
		return domain.StateTransition{}, err
	}
	return l.insert(ctx, ts, userID, stateKey, data)
}

func (l *StateLog) prepare(stateKey int, value any) (json.RawMessage, error) {
	data, err := encodeValue(value)
	if err != nil {
		return nil, fmt.Errorf("state value: %w", err)
	}
	if data == nil {
		data = json.RawMessage("null")
	}
	if !l.keys.IsValid(stateKey) {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidKey, stateKey)
	}
	return data, nil
}

func (l *StateLog) insert(
	ctx context.Context,
	ts trackertime.Timestamp,
	userID domain.UserID,
	stateKey int,
	data json.RawMessage,
) (domain.StateTransition, error) {
	if !ts.Valid() {
		return domain.StateTransition{}, fmt.Errorf("%w: %q", domain.ErrInvalidTimestamp, ts)
	}

	err := l.store.InsertFact(ctx, l.table, domain.Fact{
		Timestamp:     ts,
		UserID:        userID,
		Discriminator: stateKey,
		Value:         data,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateInstant) {
			metrics.IncDuplicateInstant(metrics.LogStates)
			l.logger.Warn("state instant already taken",
				"timestamp", ts,
				"user_id", userID,
				"state_key", stateKey,
			)
			return domain.StateTransition{}, err
		}
		l.logger.Error("insert state failed",
			"timestamp", ts,
			"user_id", userID,
			"state_key", stateKey,
			"error", err,
		)
		return domain.StateTransition{}, err
	}

	metrics.IncFactLogged(metrics.LogStates, stateKey)
	l.logger.Debug("state logged", "timestamp", ts, "user_id", userID, "state_key", stateKey)

	return domain.StateTransition{
		Timestamp: ts,
		UserID:    userID,
		StateKey:  stateKey,
		Value:     data,
	}, nil
}

// ReconstructAsOf returns the latest value of every requested key at or
// before at, across all users. The requested set is the full registry, or
// its intersection with keys when keys is non-empty. Every requested key
// appears exactly once; keys never written by then map to nil.
func (l *StateLog) ReconstructAsOf(ctx context.Context, at trackertime.Timestamp, keys []int) (domain.Snapshot, error) {
	if !at.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTimestamp, at)
	}

	started := time.Now()
	defer func() {
		metrics.ObserveQueryDuration("state_at", time.Since(started))
	}()

	requested, err := l.requestedKeys(keys)
	if err != nil {
		return nil, err
	}

	snap := make(domain.Snapshot, len(requested))
	for _, k := range requested {
		snap[k] = nil
	}
	if len(requested) == 0 {
		return snap, nil
	}

	latest, err := l.store.LatestFacts(ctx, l.table, at, requested)
	if err != nil {
		l.logger.Error("latest state query failed", "at", at, "error", err)
		return nil, err
	}

	for k := range snap {
		if fact, ok := latest[k]; ok {
			snap[k] = fact.Value
		}
	}
	return snap, nil
}

func (l *StateLog) requestedKeys(filter []int) ([]int, error) {
	ids, err := l.keys.IDs()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if len(filter) == 0 {
		return ids, nil
	}

	out := make([]int, 0, len(filter))
	for _, id := range ids {
		if slices.Contains(filter, id) {
			out = append(out, id)
		}
	}
	return out, nil
}
