// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/trackertime"
	"github.com/mattn/go-sqlite3"
)

var (
	EventTable = domain.EventTable("event", "event_type")
	StateTable = domain.StateTable("state", "state_key")
)

func (s *Store) InsertFact(ctx context.Context, table domain.Table, fact domain.Fact) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (timestamp, user_id, %s, %s) VALUES (?, ?, ?, ?)`,
		quoteTable(table.Name),
		quoteIdent(table.Discriminator),
		quoteIdent(table.Value),
	)

	var value any
	if fact.Value != nil {
		value = string(fact.Value)
	}

	if _, err := s.db.ExecContext(ctx, query,
		fact.Timestamp.String(),
		int64(fact.UserID),
		fact.Discriminator,
		value,
	); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: %s at %s for user %d", domain.ErrDuplicateInstant, table.Name, fact.Timestamp, fact.UserID)
		}
		return err
	}
	return nil
}

func (s *Store) ScanFacts(ctx context.Context, table domain.Table, filter domain.FactFilter) iter.Seq2[domain.Fact, error] {
	return func(yield func(domain.Fact, error) bool) {
		query, args := scanQuery(table, filter)
		rows, err := s.db.QueryContext(ctx, query, args...)
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

func scanQuery(table domain.Table, filter domain.FactFilter) (string, []any) {
	var w where
	w.atLeast(filter.From)
	w.atMost(filter.Until)
	if len(filter.Users) > 0 {
		users := make([]any, 0, len(filter.Users))
		for _, u := range filter.Users {
			users = append(users, int64(u))
		}
		w.in("user_id", users)
	}
	if len(filter.Discriminators) > 0 {
		w.in(quoteIdent(table.Discriminator), intArgs(filter.Discriminators))
	}

	query := fmt.Sprintf(`
		SELECT timestamp, user_id, %s, %s
		FROM %s
		WHERE %s
		ORDER BY length(timestamp) ASC, timestamp ASC, id ASC
	`,
		quoteIdent(table.Discriminator),
		quoteIdent(table.Value),
		quoteTable(table.Name),
		w.String(),
	)
	return query, w.args
}

func (s *Store) LatestFacts(
	ctx context.Context,
	table domain.Table,
	at trackertime.Timestamp,
	discriminators []int,
) (map[int]domain.Fact, error) {
	var w where
	w.atMost(at)
	if len(discriminators) > 0 {
		w.in(quoteIdent(table.Discriminator), intArgs(discriminators))
	}

	disc := quoteIdent(table.Discriminator)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT timestamp, user_id, %[1]s, %[2]s
		FROM (
			SELECT timestamp, user_id, %[1]s, %[2]s,
				ROW_NUMBER() OVER (
					PARTITION BY %[1]s
					ORDER BY length(timestamp) DESC, timestamp DESC, id DESC
				) AS rn
			FROM %[3]s
			WHERE %[4]s
		)
		WHERE rn = 1
	`,
		disc,
		quoteIdent(table.Value),
		quoteTable(table.Name),
		w.String(),
	), w.args...)
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

func scanFact(rows *sql.Rows) (domain.Fact, error) {
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

// where accumulates AND-ed predicates with positional arguments.
type where struct {
	clauses []string
	args    []any
}

// atLeast adds timestamp >= ts under (length, text) ordering. The row value
// matches the (length(timestamp), timestamp) index so it drives a range search.
func (w *where) atLeast(ts trackertime.Timestamp) {
	w.clauses = append(w.clauses, "(length(timestamp), timestamp) >= (length(?), ?)")
	w.args = append(w.args, ts.String(), ts.String())
}

// atMost adds timestamp <= ts under (length, text) ordering.
func (w *where) atMost(ts trackertime.Timestamp) {
	w.clauses = append(w.clauses, "(length(timestamp), timestamp) <= (length(?), ?)")
	w.args = append(w.args, ts.String(), ts.String())
}

func (w *where) in(column string, values []any) {
	w.clauses = append(w.clauses,
		fmt.Sprintf("%s IN (%s)", column, strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")))
	w.args = append(w.args, values...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return "1 = 1"
	}
	return strings.Join(w.clauses, " AND ")
}

func intArgs(values []int) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}
