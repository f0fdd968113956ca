// SPDX-License-Identifier: Apache-2.0

package tracking

import (
	"context"
	"iter"

	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/trackertime"
)

// recordingStore counts calls and stores nothing.
type recordingStore struct {
	inserts int
}

func (s *recordingStore) InsertFact(context.Context, domain.Table, domain.Fact) error {
	s.inserts++
	return nil
}

func (s *recordingStore) ScanFacts(context.Context, domain.Table, domain.FactFilter) iter.Seq2[domain.Fact, error] {
	return func(func(domain.Fact, error) bool) {}
}

func (s *recordingStore) LatestFacts(context.Context, domain.Table, trackertime.Timestamp, []int) (map[int]domain.Fact, error) {
	return map[int]domain.Fact{}, nil
}
