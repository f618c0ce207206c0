// Package cli wires configuration, storage and the HTTP server into the
// statefacts command tree.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Output     string // "text" | "json"
}

// ValidOutputs defines the allowed report formats.
var ValidOutputs = []string{"text", "json"}

// NewRootCommand creates the statefacts command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "statefacts",
		Short: "US state reference data with per-state fun facts",
		Long: `statefacts serves reference data about the 50 US states merged with
mutable fun-fact lists kept in a document store.

Settings come from built-in defaults, an optional YAML file (--config) and
STATEFACTS_* environment variables, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidOutputs, opts.Output) {
				return fmt.Errorf("invalid output %q: must be one of %v", opts.Output, ValidOutputs)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "text", "report format (text|json)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))

	return cmd
}
