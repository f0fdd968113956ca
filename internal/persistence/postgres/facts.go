// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/trackertime"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

var (
	EventTable = domain.EventTable("tracking.event", "tracking.event_type")
	StateTable = domain.StateTable("tracking.state", "tracking.state_key")
)

// Store keeps facts in NUMERIC-timestamped tables. Timestamps cross the
// wire as text so values wider than 64 bits survive.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		pool:   pool,
		logger: logger,
	}
}

func (s *Store) InsertFact(ctx context.Context, table domain.Table, fact domain.Fact) error {
	query := fmt.Sprintf(`
		INSERT INTO %s ("timestamp", user_id, %s, %s)
		VALUES ($1::text::numeric, $2, $3, $4)
	`,
		quoteTable(table.Name),
		pgx.Identifier{table.Discriminator}.Sanitize(),
		pgx.Identifier{table.Value}.Sanitize(),
	)

	var value any
	if fact.Value != nil {
		value = string(fact.Value)
	}

	if _, err := s.pool.Exec(ctx, query,
		fact.Timestamp.String(),
		int64(fact.UserID),
		fact.Discriminator,
		value,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s at %s for user %d", domain.ErrDuplicateInstant, table.Name, fact.Timestamp, fact.UserID)
		}
		return err
	}
	return nil
}

func (s *Store) ScanFacts(ctx context.Context, table domain.Table, filter domain.FactFilter) iter.Seq2[domain.Fact, error] {
	return func(yield func(domain.Fact, error) bool) {
		args := []any{filter.From.String(), filter.Until.String()}
		where := []string{
			`"timestamp" >= $1::text::numeric`,
			`"timestamp" <= $2::text::numeric`,
		}
		if len(filter.Users) > 0 {
			users := make([]int64, 0, len(filter.Users))
			for _, u := range filter.Users {
				users = append(users, int64(u))
			}
			args = append(args, users)
			where = append(where, fmt.Sprintf("user_id = ANY($%d)", len(args)))
		}
		if len(filter.Discriminators) > 0 {
			args = append(args, filter.Discriminators)
			where = append(where, fmt.Sprintf("%s = ANY($%d)", pgx.Identifier{table.Discriminator}.Sanitize(), len(args)))
		}

		query := fmt.Sprintf(`
			SELECT "timestamp"::text, user_id, %s, %s
			FROM %s
			WHERE %s
			ORDER BY "timestamp" ASC, id ASC
		`,
			pgx.Identifier{table.Discriminator}.Sanitize(),
			pgx.Identifier{table.Value}.Sanitize(),
			quoteTable(table.Name),
			strings.Join(where, " AND "),
		)

		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			s.logger.Error("scan facts query failed", "table", table.Name, "error", err)
			yield(domain.Fact{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			fact, err := scanFact(rows)
			if err != nil {
				yield(domain.Fact{}, err)
				return
			}
			if !yield(fact, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			s.logger.Error("facts rows iteration failed", "table", table.Name, "error", err)
			yield(domain.Fact{}, err)
		}
	}
}

func (s *Store) LatestFacts(
	ctx context.Context,
	table domain.Table,
	at trackertime.Timestamp,
	discriminators []int,
) (map[int]domain.Fact, error) {
	disc := pgx.Identifier{table.Discriminator}.Sanitize()
	args := []any{at.String()}
	restrict := ""
	if len(discriminators) > 0 {
		args = append(args, discriminators)
		restrict = fmt.Sprintf("AND %s = ANY($2)", disc)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT DISTINCT ON (%[1]s) "timestamp"::text, user_id, %[1]s, %[2]s
		FROM %[3]s
		WHERE "timestamp" <= $1::text::numeric
		  %[4]s
		ORDER BY %[1]s, "timestamp" DESC, id DESC
	`,
		disc,
		pgx.Identifier{table.Value}.Sanitize(),
		quoteTable(table.Name),
		restrict,
	), args...)
	if err != nil {
		s.logger.Error("latest facts query failed", "table", table.Name, "at", at, "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]domain.Fact, len(discriminators))
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out[fact.Discriminator] = fact
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func scanFact(rows pgx.Rows) (domain.Fact, error) {
	var (
		ts     string
		userID int64
		disc   int
		value  []byte
	)
	if err := rows.Scan(&ts, &userID, &disc, &value); err != nil {
		return domain.Fact{}, err
	}

	parsed, err := trackertime.Parse(ts)
	if err != nil {
		return domain.Fact{}, fmt.Errorf("stored timestamp: %w", err)
	}

	fact := domain.Fact{
		Timestamp:     parsed,
		UserID:        domain.UserID(userID),
		Discriminator: disc,
	}
	if value != nil {
		fact.Value = json.RawMessage(value)
	}
	return fact, nil
}

// quoteTable quotes a possibly schema-qualified table name.
func quoteTable(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
