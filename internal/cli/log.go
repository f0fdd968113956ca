// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"

	"github.com/adiadia/tracker/internal/app"
	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/trackertime"
	"github.com/adiadia/tracker/internal/tracking"
	"github.com/spf13/cobra"
)

type logFlags struct {
	user      int64
	timestamp string
	value     string
}

func (f *logFlags) options(cmd *cobra.Command) ([]tracking.LogOption, error) {
	if !cmd.Flags().Changed("user") {
		return nil, NewExitError(ExitCommandError, "--user is required")
	}
	opts := []tracking.LogOption{tracking.WithUser(domain.UserID(f.user))}
	if f.timestamp != "" {
		ts, err := trackertime.Parse(f.timestamp)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "bad --timestamp", err)
		}
		opts = append(opts, tracking.WithTimestamp(ts))
	}
	return opts, nil
}

func NewLogEventCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		flags  logFlags
		noHook bool
	)

	cmd := &cobra.Command{
		Use:   "log-event <event-type>",
		Short: "Append an event for a user",
		Long: `Append an event. The event type is a declared id or name (ET_...).
The payload is any JSON document; omit it to log an event without one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logOpts, err := flags.options(cmd)
			if err != nil {
				return err
			}
			payload, err := jsonValue(flags.value)
			if err != nil {
				return WrapExitError(ExitCommandError, "bad --payload", err)
			}

			a, err := rootOpts.openApp(cmd.Context(), cmd, app.Options{WithoutHook: noHook})
			if err != nil {
				return err
			}
			defer a.Close()

			eventType, err := resolveID(a.EventTypes, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "bad event type", err)
			}

			ev, err := a.Tracker.LogEvent(cmd.Context(), eventType, payload, logOpts...)
			if err != nil && !tracking.IsHookError(err) {
				return WrapExitError(ExitFailure, "log event failed", err)
			}
			if printErr := printEvent(rootOpts, cmd.OutOrStdout(), ev); printErr != nil {
				return printErr
			}
			if err != nil {
				return WrapExitError(ExitFailure, "event stored but hook failed", err)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&flags.user, "user", 0, "user id (required)")
	cmd.Flags().StringVar(&flags.timestamp, "timestamp", "", "encoded tracker timestamp, defaults to now")
	cmd.Flags().StringVar(&flags.value, "payload", "", "JSON payload")
	cmd.Flags().BoolVar(&noHook, "no-hook", false, "skip the post event webhook")
	return cmd
}

func NewLogStateCommand(rootOpts *RootOptions) *cobra.Command {
	var flags logFlags

	cmd := &cobra.Command{
		Use:   "log-state <state-key>",
		Short: "Record the value of a state key for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logOpts, err := flags.options(cmd)
			if err != nil {
				return err
			}
			value, err := jsonValue(flags.value)
			if err != nil {
				return WrapExitError(ExitCommandError, "bad --value", err)
			}

			a, err := rootOpts.openApp(cmd.Context(), cmd, app.Options{WithoutHook: true})
			if err != nil {
				return err
			}
			defer a.Close()

			stateKey, err := resolveID(a.StateKeys, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "bad state key", err)
			}

			tr, err := a.Tracker.LogState(cmd.Context(), stateKey, value, logOpts...)
			if err != nil {
				return WrapExitError(ExitFailure, "log state failed", err)
			}
			return newPrinter(rootOpts, cmd.OutOrStdout()).emit(tr, func(w io.Writer) {
				fmt.Fprintf(w, "%s user=%d key=%d value=%s\n", tr.Timestamp, tr.UserID, tr.StateKey, compactJSON(tr.Value))
			})
		},
	}

	cmd.Flags().Int64Var(&flags.user, "user", 0, "user id (required)")
	cmd.Flags().StringVar(&flags.timestamp, "timestamp", "", "encoded tracker timestamp, defaults to now")
	cmd.Flags().StringVar(&flags.value, "value", "", "JSON value, omit for null")
	return cmd
}

func printEvent(rootOpts *RootOptions, w io.Writer, ev domain.Event) error {
	return newPrinter(rootOpts, w).emit(ev, func(w io.Writer) {
		fmt.Fprintf(w, "%s user=%d type=%d payload=%s\n", ev.Timestamp, ev.UserID, ev.EventType, compactJSON(ev.Payload))
	})
}
