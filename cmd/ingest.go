package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/pipeline"
	"github.com/thomaspryor/broadwayscore/internal/report"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Merge raw review records into the corpus",
	Long:  "Reads raw review records (a JSON array or JSON lines, - for stdin), resolves outlet and critic identities, merges duplicates with stored reviews and writes the accepted ones in one atomic batch.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		asJSON, _ := cmd.Flags().GetBool("json")

		in, err := openInput(args[0])
		if err != nil {
			return err
		}
		defer in.Close() //nolint:errcheck

		return runIngest(cmd.Context(), cfg, in, os.Stdout, dryRun, asJSON)
	},
}

func runIngest(ctx context.Context, c *config.Config, in io.Reader, out io.Writer, dryRun, asJSON bool) error {
	raw, err := pipeline.LoadRaw(in)
	if err != nil {
		return err
	}

	unlock, err := acquireLock(c.Batch.LockPath)
	if err != nil {
		return err
	}
	defer unlock()

	st, err := openStore(ctx, c, "ingest")
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	norm, err := loadNormalizer(c)
	if err != nil {
		return err
	}

	rep, err := pipeline.NewIngester(st, norm).Ingest(ctx, raw, dryRun)
	if err != nil {
		return eris.Wrap(err, "ingest")
	}

	if asJSON {
		return printJSON(out, rep)
	}
	report.FormatIngest(out, rep)
	return nil
}

func init() {
	ingestCmd.Flags().Bool("dry-run", false, "resolve and validate without writing")
	ingestCmd.Flags().Bool("json", false, "print the report as JSON")
	rootCmd.AddCommand(ingestCmd)
}
