// SPDX-License-Identifier: Apache-2.0

package tracking

import (
	"context"
	"fmt"

	"github.com/adiadia/tracker/internal/domain"
)

// EventHook is invoked synchronously after an event has been persisted.
type EventHook interface {
	AfterLogEvent(ctx context.Context, event domain.Event) error
}

type HookFunc func(ctx context.Context, event domain.Event) error

func (f HookFunc) AfterLogEvent(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}

// HookError reports a failed post event hook. Event has already been
// persisted when this error is returned.
type HookError struct {
	Event domain.Event
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("after log event (type %d, user %d, timestamp %s): %v",
		e.Event.EventType, e.Event.UserID, e.Event.Timestamp, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
