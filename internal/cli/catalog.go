package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"statefacts/pkg/domain"
)

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate and print the reference catalog",
		Long: `Catalog loads the configured reference catalog (the embedded dataset, or the
blob named by catalog.key), validates it and prints its records.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(cmd, rootOpts, domain.Filter(filter))
		},
	}
	cmd.Flags().StringVar(&filter, "filter", string(domain.FilterAll), "all|contiguous|noncontiguous")
	return cmd
}

func runCatalog(cmd *cobra.Command, opts *RootOptions, filter domain.Filter) error {
	if !filter.Valid() {
		return fmt.Errorf("unknown filter %q", filter)
	}
	rt, err := bootstrap(cmd.Context(), opts, cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}
	records := rt.catalog.Records(filter)

	out := cmd.OutOrStdout()
	if opts.Output == "json" {
		return writeJSON(out, records)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tSTATE\tCAPITAL\tNICKNAME\tPOPULATION\tADMITTED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", r.Code, r.Name, r.Capital, r.Nickname, r.Population, r.AdmissionDate)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%d of %d states\n", len(records), rt.catalog.Len())
	return err
}
