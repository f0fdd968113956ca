// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"sort"

	"github.com/adiadia/tracker/internal/trackertime"
)

// StateTransition records the value a state key took at an instant.
type StateTransition struct {
	Timestamp trackertime.Timestamp `json:"timestamp"`
	UserID    UserID                `json:"user_id"`
	StateKey  int                   `json:"state_key"`
	Value     json.RawMessage       `json:"state_value"`
}

// Snapshot maps every requested state key to its latest value as of an
// instant. Keys without a qualifying transition map to nil.
type Snapshot map[int]json.RawMessage

type StateValue struct {
	StateKey int             `json:"state_key"`
	Value    json.RawMessage `json:"state_value"`
}

// Rows lists the snapshot ordered by key.
func (s Snapshot) Rows() []StateValue {
	keys := make([]int, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]StateValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, StateValue{StateKey: k, Value: s[k]})
	}
	return out
}
