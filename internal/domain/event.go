// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"

	"github.com/adiadia/tracker/internal/trackertime"
)

type UserID int64

// Event is a discrete occurrence. Payload is nil when none was logged.
type Event struct {
	Timestamp trackertime.Timestamp `json:"timestamp"`
	UserID    UserID                `json:"user_id"`
	EventType int                   `json:"event_type"`
	Payload   json.RawMessage       `json:"payload"`
}

// EventQuery selects events in the inclusive range [From, Until]. Empty
// Users or Types place no restriction on that column.
type EventQuery struct {
	From  trackertime.Timestamp
	Until trackertime.Timestamp
	Users []UserID
	Types []int
}
