// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"

	"github.com/adiadia/tracker/internal/app"
	"github.com/adiadia/tracker/internal/registry"
	"github.com/spf13/cobra"
)

type registryEntry struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

type registryListing struct {
	EventTypes []registryEntry `json:"event_types"`
	StateKeys  []registryEntry `json:"state_keys"`
}

// NewRegistryCommand lists the declarations the tracker was opened with.
// It opens the store too, so a mismatch between file and lookup tables
// surfaces here.
func NewRegistryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "registry",
		Short: "List declared event types and state keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.openApp(cmd.Context(), cmd, app.Options{WithoutHook: true})
			if err != nil {
				return err
			}
			defer a.Close()

			listing := registryListing{
				EventTypes: entries(a.EventTypes),
				StateKeys:  entries(a.StateKeys),
			}
			return newPrinter(rootOpts, cmd.OutOrStdout()).emit(listing, func(w io.Writer) {
				fmt.Fprintln(w, "event types:")
				for _, e := range listing.EventTypes {
					fmt.Fprintf(w, "  %-24s %d\n", e.Name, e.ID)
				}
				fmt.Fprintln(w, "state keys:")
				for _, e := range listing.StateKeys {
					fmt.Fprintf(w, "  %-24s %d\n", e.Name, e.ID)
				}
			})
		},
	}
}

func entries(reg *registry.Registry) []registryEntry {
	// app.Open already rejected non-integer ids.
	ids, _ := reg.IDs()
	out := make([]registryEntry, 0, len(ids))
	for _, id := range ids {
		name, _ := reg.Name(id)
		out = append(out, registryEntry{Name: name, ID: id})
	}
	return out
}
