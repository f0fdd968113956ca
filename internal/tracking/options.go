// SPDX-License-Identifier: Apache-2.0

package tracking

import (
	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/trackertime"
)

type logOptions struct {
	user      *domain.UserID
	timestamp trackertime.Timestamp
	skipHook  bool
}

// LogOption adjusts a single LogEvent or LogState call.
type LogOption func(*logOptions)

// WithUser logs for userID instead of the current user.
func WithUser(userID domain.UserID) LogOption {
	return func(o *logOptions) {
		o.user = &userID
	}
}

// WithTimestamp logs at ts instead of the current time.
func WithTimestamp(ts trackertime.Timestamp) LogOption {
	return func(o *logOptions) {
		o.timestamp = ts
	}
}

// WithoutHook suppresses the post event hook for this call.
func WithoutHook() LogOption {
	return func(o *logOptions) {
		o.skipHook = true
	}
}

func collectOptions(opts []LogOption) logOptions {
	var o logOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
