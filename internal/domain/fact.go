// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"

	"github.com/adiadia/tracker/internal/trackertime"
)

// Fact is the storage row shared by the event and state tables.
// A nil Value is stored as SQL NULL.
type Fact struct {
	Timestamp     trackertime.Timestamp
	UserID        UserID
	Discriminator int
	Value         json.RawMessage
}

// Table identifies a fact table and the columns that differ between the
// event and state layouts.
type Table struct {
	Name          string
	Discriminator string
	Value         string
	Lookup        string
}

// FactFilter selects facts in the inclusive range [From, Until].
type FactFilter struct {
	From           trackertime.Timestamp
	Until          trackertime.Timestamp
	Users          []UserID
	Discriminators []int
}

// EventTable describes an event table named name with lookup table lookup.
func EventTable(name, lookup string) Table {
	return Table{Name: name, Discriminator: "event_type", Value: "event_data", Lookup: lookup}
}

// StateTable describes a state table named name with lookup table lookup.
func StateTable(name, lookup string) Table {
	return Table{Name: name, Discriminator: "state_key", Value: "state_value", Lookup: lookup}
}

func (t Table) Valid() bool {
	return t.Name != "" && t.Discriminator != "" && t.Value != "" && t.Lookup != ""
}
