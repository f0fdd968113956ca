// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"fmt"

	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/registry"
)

// SyncLookup upserts every registry entry into the lookup table of table so
// that foreign keys from the fact table resolve.
func (s *Store) SyncLookup(ctx context.Context, table domain.Table, reg *registry.Registry) error {
	ids, err := reg.IDs()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, description)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET description = EXCLUDED.description
	`, quoteTable(table.Lookup))

	for _, id := range ids {
		name, _ := reg.Name(id)
		if _, err := tx.Exec(ctx, query, id, name); err != nil {
			s.logger.Error("sync lookup failed", "table", table.Lookup, "id", id, "error", err)
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.logger.Info("lookup table synced", "table", table.Lookup, "entries", len(ids))
	return nil
}
