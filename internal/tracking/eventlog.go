// SPDX-License-Identifier: Apache-2.0

package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/metrics"
	"github.com/adiadia/tracker/internal/registry"
	"github.com/adiadia/tracker/internal/trackertime"
)

// EventLog is the append-only log of discrete occurrences.
type EventLog struct {
	store  Store
	table  domain.Table
	types  *registry.Registry
	logger *slog.Logger
}

func NewEventLog(store Store, table domain.Table, types *registry.Registry, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = slog.Default()
	}

	return &EventLog{
		store:  store,
		table:  table,
		types:  types,
		logger: logger,
	}
}

// Append records an event. A nil payload is always valid.
func (l *EventLog) Append(
	ctx context.Context,
	ts trackertime.Timestamp,
	userID domain.UserID,
	eventType int,
	payload any,
) (domain.Event, error) {
	data, err := l.prepare(eventType, payload)
	if err != nil {
		return domain.Event{}, err
	}
	return l.insert(ctx, ts, userID, eventType, data)
}

func (l *EventLog) prepare(eventType int, payload any) (json.RawMessage, error) {
	data, err := encodeValue(payload)
	if err != nil {
		return nil, fmt.Errorf("event payload: %w", err)
	}
	if !l.types.IsValid(eventType) {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidType, eventType)
	}
	return data, nil
}

func (l *EventLog) insert(
	ctx context.Context,
	ts trackertime.Timestamp,
	userID domain.UserID,
	eventType int,
	data json.RawMessage,
) (domain.Event, error) {
	if !ts.Valid() {
		return domain.Event{}, fmt.Errorf("%w: %q", domain.ErrInvalidTimestamp, ts)
	}

	err := l.store.InsertFact(ctx, l.table, domain.Fact{
		Timestamp:     ts,
		UserID:        userID,
		Discriminator: eventType,
		Value:         data,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateInstant) {
			metrics.IncDuplicateInstant(metrics.LogEvents)
			l.logger.Warn("event instant already taken",
				"timestamp", ts,
				"user_id", userID,
				"event_type", eventType,
			)
			return domain.Event{}, err
		}
		l.logger.Error("insert event failed",
			"timestamp", ts,
			"user_id", userID,
			"event_type", eventType,
			"error", err,
		)
		return domain.Event{}, err
	}

	metrics.IncFactLogged(metrics.LogEvents, eventType)
	l.logger.Debug("event logged", "timestamp", ts, "user_id", userID, "event_type", eventType)

	return domain.Event{
		Timestamp: ts,
		UserID:    userID,
		EventType: eventType,
		Payload:   data,
	}, nil
}

// Query lazily yields the events in [q.From, q.Until] ordered by timestamp.
// Empty q.Users or q.Types mean no restriction on that column.
func (l *EventLog) Query(ctx context.Context, q domain.EventQuery) iter.Seq2[domain.Event, error] {
	return func(yield func(domain.Event, error) bool) {
		if !q.From.Valid() || !q.Until.Valid() {
			yield(domain.Event{}, fmt.Errorf("%w: range [%q, %q]", domain.ErrInvalidTimestamp, q.From, q.Until))
			return
		}

		started := time.Now()
		defer func() {
			metrics.ObserveQueryDuration("events_between", time.Since(started))
		}()

		facts := l.store.ScanFacts(ctx, l.table, domain.FactFilter{
			From:           q.From,
			Until:          q.Until,
			Users:          q.Users,
			Discriminators: q.Types,
		})
		for fact, err := range facts {
			if err != nil {
				l.logger.Error("scan events failed",
					"from", q.From,
					"until", q.Until,
					"error", err,
				)
				yield(domain.Event{}, err)
				return
			}

			ev := domain.Event{
				Timestamp: fact.Timestamp,
				UserID:    fact.UserID,
				EventType: fact.Discriminator,
				Payload:   fact.Value,
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Collect drains a query into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	out := make([]T, 0, 16)
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
