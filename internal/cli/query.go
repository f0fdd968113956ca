// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"

	"github.com/adiadia/tracker/internal/app"
	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/trackertime"
	"github.com/spf13/cobra"
)

type rangeFlags struct {
	from, fromTS   string
	until, untilTS string
	users          []int64
	types          []string
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "range start in unix seconds (default epoch)")
	cmd.Flags().StringVar(&f.fromTS, "from-ts", "", "range start as an encoded tracker timestamp")
	cmd.Flags().StringVar(&f.until, "until", "", "range end in unix seconds (default now)")
	cmd.Flags().StringVar(&f.untilTS, "until-ts", "", "range end as an encoded tracker timestamp")
	cmd.Flags().Int64SliceVar(&f.users, "user", nil, "restrict to these user ids")
	cmd.Flags().StringSliceVar(&f.types, "type", nil, "restrict to these event types (ids or names)")
}

func (f *rangeFlags) bounds() (trackertime.Timestamp, trackertime.Timestamp, error) {
	from, err := bound("from", f.from, f.fromTS, trackertime.Zero)
	if err != nil {
		return "", "", WrapExitError(ExitCommandError, "bad range start", err)
	}
	until, err := bound("until", f.until, f.untilTS, trackertime.Now())
	if err != nil {
		return "", "", WrapExitError(ExitCommandError, "bad range end", err)
	}
	return from, until, nil
}

func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	var flags rangeFlags

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream events in a time range",
		Long: `Stream the events logged in the inclusive range [from, until], oldest
first. With --format json the output is one JSON object per line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, until, err := flags.bounds()
			if err != nil {
				return err
			}

			a, err := rootOpts.openApp(cmd.Context(), cmd, app.Options{WithoutHook: true})
			if err != nil {
				return err
			}
			defer a.Close()

			types, err := resolveIDs(a.EventTypes, flags.types)
			if err != nil {
				return WrapExitError(ExitCommandError, "bad --type", err)
			}

			out := cmd.OutOrStdout()
			n := 0
			for ev, err := range a.Tracker.EventsBetween(cmd.Context(), from, until, userIDs(flags.users), types) {
				if err != nil {
					return WrapExitError(ExitFailure, fmt.Sprintf("query failed after %d events", n), err)
				}
				if err := printEvent(rootOpts, out, ev); err != nil {
					return err
				}
				n++
			}
			if rootOpts.Verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d events in [%s, %s]\n", n, from, until)
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

type stateListing struct {
	At     trackertime.Timestamp `json:"at"`
	States []domain.StateValue   `json:"states"`
}

func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		at, atTS string
		keyArgs  []string
	)

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the value of every state key as of an instant",
		Long: `Show the latest value of each state key at or before the instant,
across all users. Keys never logged show null.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := bound("at", at, atTS, trackertime.Now())
			if err != nil {
				return WrapExitError(ExitCommandError, "bad instant", err)
			}

			a, err := rootOpts.openApp(cmd.Context(), cmd, app.Options{WithoutHook: true})
			if err != nil {
				return err
			}
			defer a.Close()

			keys, err := resolveIDs(a.StateKeys, keyArgs)
			if err != nil {
				return WrapExitError(ExitCommandError, "bad --key", err)
			}

			snap, err := a.Tracker.StateAt(cmd.Context(), ts, keys)
			if err != nil {
				return WrapExitError(ExitFailure, "state query failed", err)
			}

			listing := stateListing{At: ts, States: snap.Rows()}
			return newPrinter(rootOpts, cmd.OutOrStdout()).emit(listing, func(w io.Writer) {
				for _, row := range listing.States {
					name, _ := a.StateKeys.Name(row.StateKey)
					fmt.Fprintf(w, "%-24s %-4d %s\n", name, row.StateKey, compactJSON(row.Value))
				}
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "instant in unix seconds (default now)")
	cmd.Flags().StringVar(&atTS, "at-ts", "", "instant as an encoded tracker timestamp")
	cmd.Flags().StringSliceVar(&keyArgs, "key", nil, "restrict to these state keys (ids or names)")
	return cmd
}
