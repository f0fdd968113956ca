// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"iter"

	"github.com/adiadia/tracker/internal/auth"
	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/trackertime"
	"github.com/adiadia/tracker/internal/tracking"
)

type EventLogger interface {
	LogEvent(ctx context.Context, eventType int, payload any, opts ...tracking.LogOption) (domain.Event, error)
	EventsBetween(ctx context.Context, from, until trackertime.Timestamp, users []domain.UserID, types []int) iter.Seq2[domain.Event, error]
}

type StateLogger interface {
	LogState(ctx context.Context, stateKey int, value any, opts ...tracking.LogOption) (domain.StateTransition, error)
	StateAt(ctx context.Context, at trackertime.Timestamp, keys []int) (domain.Snapshot, error)
}

type RegistryReader interface {
	EventTypesAvailable() map[string]any
	StateKeysAvailable() map[string]any
}

// Tracker is the subset of *tracking.Tracker served over HTTP.
type Tracker interface {
	EventLogger
	StateLogger
	RegistryReader
}

type TokenResolver interface {
	ResolveToken(ctx context.Context, bearerToken string) (auth.Principal, bool, error)
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
