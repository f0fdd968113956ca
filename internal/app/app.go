// SPDX-License-Identifier: Apache-2.0

// Package app assembles a tracker from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adiadia/tracker/internal/config"
	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/persistence/postgres"
	"github.com/adiadia/tracker/internal/persistence/sqlite"
	"github.com/adiadia/tracker/internal/registry"
	"github.com/adiadia/tracker/internal/tracking"
	"github.com/adiadia/tracker/internal/webhook"
)

type lookupSyncer interface {
	SyncLookup(ctx context.Context, table domain.Table, reg *registry.Registry) error
}

type healthChecker interface {
	Check(ctx context.Context) error
}

// App owns the store and the tracker built on top of it.
type App struct {
	Tracker    *tracking.Tracker
	EventTypes *registry.Registry
	StateKeys  *registry.Registry
	// Health is nil for the embedded store.
	Health healthChecker

	closers []func()
}

type Options struct {
	// WithoutHook skips the webhook even when one is configured.
	WithoutHook bool
}

func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	types, keys, err := registry.LoadFile(cfg.RegistryFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	a := &App{EventTypes: types, StateKeys: keys}

	var (
		store      tracking.Store
		syncer     lookupSyncer
		eventTable domain.Table
		stateTable domain.Table
	)

	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		if cfg.AutoMigrate {
			if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
				a.Close()
				return nil, fmt.Errorf("schema bootstrap: %w", err)
			}
		}

		pg := postgres.NewStore(pool, logger)
		store, syncer = pg, pg
		eventTable, stateTable = postgres.EventTable, postgres.StateTable
		a.Health = postgres.NewSchemaHealthChecker(pool)

	case config.DriverSQLite:
		lite, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = lite.Close() })

		store, syncer = lite, lite
		eventTable, stateTable = sqlite.EventTable, sqlite.StateTable

	default:
		return nil, fmt.Errorf("%w: unknown driver %q", domain.ErrInvalidConfiguration, cfg.Driver)
	}

	if err := syncer.SyncLookup(ctx, eventTable, types); err != nil {
		a.Close()
		return nil, fmt.Errorf("sync event types: %w", err)
	}
	if err := syncer.SyncLookup(ctx, stateTable, keys); err != nil {
		a.Close()
		return nil, fmt.Errorf("sync state keys: %w", err)
	}

	var hook tracking.EventHook
	if cfg.WebhookURL != "" && !opts.WithoutHook {
		h, err := webhook.New(webhook.Config{
			URL:      cfg.WebhookURL,
			Secret:   cfg.WebhookSecret,
			Attempts: cfg.WebhookAttempts,
			Logger:   logger,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		hook = h
	}

	a.Tracker, err = tracking.New(tracking.Config{
		Store:      store,
		EventTypes: types,
		StateKeys:  keys,
		EventTable: eventTable,
		StateTable: stateTable,
		Hook:       hook,
		Logger:     logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("tracker ready",
		"driver", cfg.Driver,
		"event_types", len(types.Available()),
		"state_keys", len(keys.Available()),
		"webhook", hook != nil,
	)
	return a, nil
}

// Close releases the store. It is safe to call more than once.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
