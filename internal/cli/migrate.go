// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"

	"github.com/adiadia/tracker/internal/config"
	"github.com/adiadia/tracker/internal/persistence/postgres"
	"github.com/adiadia/tracker/internal/persistence/sqlite"
	"github.com/spf13/cobra"
)

type migrateResult struct {
	Driver        string `json:"driver"`
	Status        string `json:"status"`
	SchemaVersion int    `json:"schema_version,omitempty"`
}

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the tracker schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := rootOpts.Config()
			logger := rootOpts.Logger(cmd, cfg.Env)

			res := migrateResult{Driver: cfg.Driver, Status: "ready"}
			switch cfg.Driver {
			case config.DriverPostgres:
				pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
				if err != nil {
					return WrapExitError(ExitCommandError, "database unreachable", err)
				}
				defer pool.Close()

				if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
					return WrapExitError(ExitFailure, "migration failed", err)
				}
				if err := postgres.SchemaReady(ctx, pool); err != nil {
					return WrapExitError(ExitFailure, "schema incomplete after migration", err)
				}
			case config.DriverSQLite:
				store, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
				if err != nil {
					return WrapExitError(ExitFailure, "migration failed", err)
				}
				defer store.Close()

				version, err := store.SchemaVersion(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "read schema version", err)
				}
				res.SchemaVersion = version
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown driver %q", cfg.Driver))
			}

			return newPrinter(rootOpts, cmd.OutOrStdout()).emit(res, func(w io.Writer) {
				if res.SchemaVersion > 0 {
					fmt.Fprintf(w, "%s schema ready (version %d)\n", res.Driver, res.SchemaVersion)
					return
				}
				fmt.Fprintf(w, "%s schema ready\n", res.Driver)
			})
		},
	}
}
