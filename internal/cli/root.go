// SPDX-License-Identifier: Apache-2.0

// Package cli implements trackerctl.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/adiadia/tracker/internal/app"
	"github.com/adiadia/tracker/internal/config"
	"github.com/adiadia/tracker/internal/logging"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Overrides for the environment configuration.
	Driver       string
	DatabaseURL  string
	SQLitePath   string
	RegistryFile string
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "trackerctl",
		Short: "Inspect and feed the event and state tracker",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Driver, "driver", "", "store driver (postgres|sqlite), overrides TRACKER_DRIVER")
	flags.StringVar(&opts.DatabaseURL, "database-url", "", "postgres URL, overrides DATABASE_URL")
	flags.StringVar(&opts.SQLitePath, "sqlite-path", "", "sqlite file, overrides SQLITE_PATH")
	flags.StringVar(&opts.RegistryFile, "registry", "", "registry YAML, overrides REGISTRY_FILE")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewRegistryCommand(opts))
	cmd.AddCommand(NewLogEventCommand(opts))
	cmd.AddCommand(NewLogStateCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// Config merges flag overrides into the environment configuration.
func (o *RootOptions) Config() config.Config {
	cfg := config.Load()
	if o.Driver != "" {
		cfg.Driver = o.Driver
	}
	if o.DatabaseURL != "" {
		cfg.DatabaseURL = o.DatabaseURL
	}
	if o.SQLitePath != "" {
		cfg.SQLitePath = o.SQLitePath
	}
	if o.RegistryFile != "" {
		cfg.RegistryFile = o.RegistryFile
	}
	return cfg
}

// Logger writes to the command's stderr so stdout stays parseable.
func (o *RootOptions) Logger(cmd *cobra.Command, env string) *slog.Logger {
	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	return logging.NewWriterLogger(cmd.ErrOrStderr(), env, level)
}

func (o *RootOptions) openApp(ctx context.Context, cmd *cobra.Command, appOpts app.Options) (*app.App, error) {
	cfg := o.Config()
	a, err := app.Open(ctx, cfg, o.Logger(cmd, cfg.Env), appOpts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open tracker", err)
	}
	return a, nil
}
