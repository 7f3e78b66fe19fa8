package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/report"
	"github.com/thomaspryor/broadwayscore/internal/store"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Export reviews flagged for human review",
	Long:  "Lists every review flagged for a human decision, most severe model disagreement first, as a table, CSV, XLSX or JSON.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		show, _ := cmd.Flags().GetString("show")
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		out := io.Writer(os.Stdout)
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return eris.Wrapf(err, "create %s", output)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		return runQueue(cmd.Context(), cfg, show, format, out)
	},
}

func runQueue(ctx context.Context, c *config.Config, show, format string, out io.Writer) error {
	st, err := openStore(ctx, c, "queue")
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	reviews, err := st.ListReviews(ctx, store.ReviewFilter{ShowID: show, NeedsReview: true})
	if err != nil {
		return eris.Wrap(err, "queue: list reviews")
	}
	items := report.Queue(reviews)

	switch format {
	case "", "table":
		report.FormatQueue(out, items)
		return nil
	case "csv":
		return report.WriteCSV(out, items)
	case "xlsx":
		return report.WriteXLSX(out, items)
	case "json":
		if items == nil {
			items = []report.QueueItem{}
		}
		return printJSON(out, items)
	default:
		return eris.Errorf("queue: unknown format %q (table, csv, xlsx, json)", format)
	}
}

func init() {
	queueCmd.Flags().String("show", "", "only export reviews of this show")
	queueCmd.Flags().String("format", "table", "output format: table, csv, xlsx or json")
	queueCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	rootCmd.AddCommand(queueCmd)
}
