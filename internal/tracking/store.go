// SPDX-License-Identifier: Apache-2.0

package tracking

import (
	"context"
	"iter"

	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/trackertime"
)

// Store is the transactional backend behind both logs.
//
// InsertFact must be atomic and must return an error matching
// domain.ErrDuplicateInstant when (timestamp, user, discriminator) is
// already taken. ScanFacts yields facts in timestamp order. LatestFacts
// returns, per discriminator, the fact with the greatest timestamp <= at
// across all users; an empty discriminator list places no restriction.
type Store interface {
	InsertFact(ctx context.Context, table domain.Table, fact domain.Fact) error
	ScanFacts(ctx context.Context, table domain.Table, filter domain.FactFilter) iter.Seq2[domain.Fact, error]
	LatestFacts(ctx context.Context, table domain.Table, at trackertime.Timestamp, discriminators []int) (map[int]domain.Fact, error)
}

// IdentityProvider resolves the acting user when a call names none.
type IdentityProvider interface {
	CurrentUser(ctx context.Context) (domain.UserID, bool)
}
