// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adiadia/tracker/internal/logging"
	"github.com/spf13/cobra"
)

// integrationPackages need a live Postgres reachable through DATABASE_URL.
var integrationPackages = []string{
	"./internal/persistence/postgres",
}

type commandRunner func(ctx context.Context, step string, name string, args ...string) error

type validator struct {
	dir         string
	databaseURL string
	logger      *slog.Logger
	stdout      io.Writer
	stderr      io.Writer
	run         commandRunner
}

func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run gofmt, go vet and the test suites",
		Long: `Check formatting, vet, and run unit tests for the module in --dir.
Integration tests run as well when DATABASE_URL is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := &validator{
				dir:         dir,
				databaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
				logger:      logging.NewWriterLogger(cmd.ErrOrStderr(), "dev", "info"),
				stdout:      cmd.OutOrStdout(),
				stderr:      cmd.ErrOrStderr(),
			}
			v.run = v.runCommand

			if err := v.validate(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "validation failed", err)
			}
			v.logger.Info("validation passed")
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "module root")
	return cmd
}

func (v *validator) validate(ctx context.Context) error {
	started := time.Now()

	if err := v.gofmtCheck(ctx); err != nil {
		return err
	}
	if err := v.run(ctx, "go vet", "go", "vet", "./..."); err != nil {
		return err
	}
	if err := v.run(ctx, "go test unit", "go", "test", "./..."); err != nil {
		return err
	}

	if v.databaseURL == "" {
		v.logger.Info("skipping integration tests", "reason", "DATABASE_URL is not set")
	} else {
		args := append([]string{"test", "-count=1", "-tags=integration"}, integrationPackages...)
		if err := v.run(ctx, "go test integration", "go", args...); err != nil {
			return err
		}
	}

	v.logger.Info("validation complete", "duration_ms", time.Since(started).Milliseconds())
	return nil
}

func (v *validator) gofmtCheck(ctx context.Context) error {
	files, err := listGoFiles(v.dir)
	if err != nil {
		return fmt.Errorf("list go files: %w", err)
	}
	if len(files) == 0 {
		v.logger.Info("skipping gofmt check", "reason", "no go files found")
		return nil
	}

	v.logger.Info("running step", "step", "gofmt check", "files", len(files))
	started := time.Now()

	cmd := exec.CommandContext(ctx, "gofmt", append([]string{"-l"}, files...)...)
	cmd.Stderr = v.stderr
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("gofmt check failed: %w", err)
	}
	if unformatted := strings.TrimSpace(string(out)); unformatted != "" {
		return fmt.Errorf("gofmt would change files:\n%s", unformatted)
	}

	v.logger.Info("step completed", "step", "gofmt check", "duration_ms", time.Since(started).Milliseconds())
	return nil
}

func (v *validator) runCommand(ctx context.Context, step string, name string, args ...string) error {
	v.logger.Info("running step", "step", step, "command", strings.Join(append([]string{name}, args...), " "))
	started := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = v.dir
	cmd.Stdout = v.stdout
	cmd.Stderr = v.stderr
	cmd.Env = os.Environ()

	err := cmd.Run()
	duration := time.Since(started)
	if err != nil {
		exitCode := 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		v.logger.Error("step failed", "step", step, "duration_ms", duration.Milliseconds(), "exit_code", exitCode)
		return fmt.Errorf("%s: %w", step, err)
	}

	v.logger.Info("step completed", "step", step, "duration_ms", duration.Milliseconds())
	return nil
}

func listGoFiles(root string) ([]string, error) {
	files := make([]string, 0, 64)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Same directories the go tool ignores.
			name := d.Name()
			if path != root && (name == "vendor" || name == "testdata" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".go" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
