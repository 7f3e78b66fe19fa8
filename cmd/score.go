package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/judge"
	"github.com/thomaspryor/broadwayscore/internal/pipeline"
	"github.com/thomaspryor/broadwayscore/internal/report"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score reviews with the model panel and pick final scores",
	Long:  "Runs every selected review through the judge panel, combines the judgments and assigns the final score by source priority. Without --force only reviews not yet scored under the configured scoring version are touched, so an interrupted run resumes where it stopped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		show, _ := cmd.Flags().GetString("show")
		force, _ := cmd.Flags().GetBool("force")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		asJSON, _ := cmd.Flags().GetBool("json")

		if err := cfg.Validate("score"); err != nil {
			return err
		}
		panel, err := judge.FromConfig(cfg)
		if err != nil {
			return err
		}

		return runScore(ctx, cfg, panel, os.Stdout, pipeline.Selection{ShowID: show, Force: force}, dryRun, asJSON)
	},
}

func runScore(ctx context.Context, c *config.Config, judges pipeline.Judges, out io.Writer, sel pipeline.Selection, dryRun, asJSON bool) error {
	unlock, err := acquireLock(c.Batch.LockPath)
	if err != nil {
		return err
	}
	defer unlock()

	// Scoring settings were validated before the panel was built.
	st, err := openStore(ctx, c, "ingest")
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	rep, err := pipeline.NewScorer(st, judges, c).Run(ctx, sel, dryRun)
	if err != nil {
		return eris.Wrap(err, "score")
	}

	if asJSON {
		return printJSON(out, rep)
	}
	report.FormatScore(out, rep)
	return nil
}

func init() {
	scoreCmd.Flags().String("show", "", "only score reviews of this show")
	scoreCmd.Flags().Bool("force", false, "rescore reviews already scored under the current scoring version")
	scoreCmd.Flags().Bool("dry-run", false, "score without writing results or checkpoints")
	scoreCmd.Flags().Bool("json", false, "print the report as JSON")
	rootCmd.AddCommand(scoreCmd)
}
