package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/corroborate"
	"github.com/thomaspryor/broadwayscore/internal/pipeline"
	"github.com/thomaspryor/broadwayscore/internal/report"
)

var changesCmd = &cobra.Command{
	Use:   "changes <file>",
	Short: "Apply proposed changes to numeric show fields",
	Long:  "Evaluates a YAML or JSON list of proposed field changes against stored values and independent observations. Corroborated changes are applied; large edits to manually verified fields are blocked.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		asJSON, _ := cmd.Flags().GetBool("json")

		in, err := openInput(args[0])
		if err != nil {
			return err
		}
		defer in.Close() //nolint:errcheck

		return runChanges(cmd.Context(), cfg, in, os.Stdout, dryRun, asJSON)
	},
}

func runChanges(ctx context.Context, c *config.Config, in io.Reader, out io.Writer, dryRun, asJSON bool) error {
	changes, err := pipeline.LoadChanges(in)
	if err != nil {
		return err
	}

	unlock, err := acquireLock(c.Batch.LockPath)
	if err != nil {
		return err
	}
	defer unlock()

	st, err := openStore(ctx, c, "changes")
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	proc := pipeline.NewChangeProcessor(st, corroborate.NewValidator(c.Corroboration))
	rep, err := proc.Run(ctx, changes, dryRun)
	if err != nil {
		return eris.Wrap(err, "changes")
	}

	if asJSON {
		return printJSON(out, rep)
	}
	report.FormatChanges(out, rep)
	return nil
}

func init() {
	changesCmd.Flags().Bool("dry-run", false, "evaluate without writing")
	changesCmd.Flags().Bool("json", false, "print the report as JSON")
	rootCmd.AddCommand(changesCmd)
}
