package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"statefacts/internal/adapters/snapshot"
	"statefacts/internal/core"
)

type exportOptions struct {
	key       string
	format    string
	overwrite bool
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	eo := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot of every fact document to the blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, rootOpts, eo)
		},
	}
	cmd.Flags().StringVar(&eo.key, "key", "", "blob key (default exports/facts-<timestamp>.<format>)")
	cmd.Flags().StringVar(&eo.format, "format", "json", "artifact format (json|csv)")
	cmd.Flags().BoolVar(&eo.overwrite, "overwrite", false, "replace an existing blob at --key")
	return cmd
}

func runExport(cmd *cobra.Command, opts *RootOptions, eo *exportOptions) (err error) {
	format, err := snapshot.ParseFormat(eo.format)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rt, err := bootstrap(ctx, opts, cmd.ErrOrStderr(), true)
	if err != nil {
		return err
	}
	defer func() { err = rt.closeWith(err) }()

	svc := core.NewService(rt.catalog, rt.store, rt.serviceOptions()...)
	art, err := snapshot.NewExporter(svc, rt.blobs).Export(ctx, snapshot.ExportInput{
		Key:       eo.key,
		Format:    format,
		Overwrite: eo.overwrite,
	})
	if err != nil {
		return err
	}
	rt.logger.Info("export stored", "key", art.Key, "documents", art.Documents, "driver", rt.blobs.Driver())

	w := cmd.OutOrStdout()
	if opts.Output == "json" {
		return writeJSON(w, art)
	}
	_, err = fmt.Fprintf(w, "exported %d documents (%d facts) to %s\n", art.Documents, art.Facts, art.Key)
	return err
}
