// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"fmt"

	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/registry"
)

// SyncLookup upserts every registry entry into the lookup table of table.
func (s *Store) SyncLookup(ctx context.Context, table domain.Table, reg *registry.Registry) error {
	ids, err := reg.IDs()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, description) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET description = excluded.description
	`, quoteTable(table.Lookup))

	for _, id := range ids {
		name, _ := reg.Name(id)
		if _, err := tx.ExecContext(ctx, query, id, name); err != nil {
			s.logger.Error("sync lookup failed", "table", table.Lookup, "id", id, "error", err)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Debug("lookup table synced", "table", table.Lookup, "entries", len(ids))
	return nil
}
