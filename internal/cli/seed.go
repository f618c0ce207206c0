package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"statefacts/internal/adapters/snapshot"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "seed [file]",
		Short: "Append fun facts from a JSON file or blob",
		Long: `Seed reads a JSON array of {"stateCode": "..", "funfacts": [..]} documents,
either from a local file or from a blob key (--key), and appends each list to
the fact store. Exported snapshots can be seeded directly. The disabled-state
policy applies to API callers only and is not enforced here.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			return runSeed(cmd, rootOpts, file, key)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "blob key holding the seed documents")
	return cmd
}

func runSeed(cmd *cobra.Command, opts *RootOptions, file, key string) (err error) {
	if (file == "") == (key == "") {
		return errors.New("seed needs exactly one of a file argument or --key")
	}
	ctx := cmd.Context()
	rt, err := bootstrap(ctx, opts, cmd.ErrOrStderr(), true)
	if err != nil {
		return err
	}
	defer func() { err = rt.closeWith(err) }()

	var docs []snapshot.SeedDocument
	if key != "" {
		docs, err = snapshot.ReadSeed(ctx, rt.blobs, key)
	} else {
		var data []byte
		data, err = os.ReadFile(file) // #nosec G304 -- operator supplied path
		if err == nil {
			docs, err = snapshot.ParseSeed(data)
		}
	}
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}

	report, err := snapshot.NewSeeder(rt.catalog, rt.store).Seed(ctx, docs)
	if err != nil {
		return err
	}
	rt.logger.Info("seed finished", "documents", len(report.Results), "failed", report.Failed())
	if err := printSeedReport(cmd.OutOrStdout(), opts.Output, report); err != nil {
		return err
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d seed documents failed", n, len(report.Results))
	}
	return nil
}

func printSeedReport(w io.Writer, output string, report snapshot.SeedReport) error {
	if output == "json" {
		return writeJSON(w, report)
	}
	for _, r := range report.Results {
		if r.Error != "" {
			if _, err := fmt.Fprintf(w, "%s\tFAILED\t%s\n", r.StateCode, r.Error); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%s\tok\t%d submitted, %d stored\n", r.StateCode, r.Submitted, r.Stored); err != nil {
			return err
		}
	}
	return nil
}
