package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/internal/pipeline"
)

// FormatQueue writes the queue as an aligned table.
func FormatQueue(out io.Writer, items []QueueItem) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEVERITY\tSHOW\tOUTLET\tCRITIC\tSCORE\tSOURCE\tREASON")
	_, _ = fmt.Fprintln(w, "--------\t----\t------\t------\t-----\t------\t------")

	for i := range items {
		it := &items[i]
		score := "-"
		if it.Score != nil {
			score = fmt.Sprint(*it.Score)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.Severity,
			it.Key.ShowID,
			truncate(it.Outlet, 24),
			truncate(it.Critic, 20),
			score,
			it.Source,
			truncate(it.Reason, 60),
		)
	}
	_ = w.Flush()
}

// FormatIngest writes an ingest summary.
func FormatIngest(out io.Writer, rep *pipeline.IngestReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", rep.RunID)
	if rep.DryRun {
		_, _ = fmt.Fprintln(w, "Mode:\tdry run")
	}
	_, _ = fmt.Fprintf(w, "Received:\t%d\n", rep.Received)
	_, _ = fmt.Fprintf(w, "Canonical:\t%d\n", rep.Canonical)
	_, _ = fmt.Fprintf(w, "Inserted:\t%d\n", rep.Inserted)
	_, _ = fmt.Fprintf(w, "Updated:\t%d\n", rep.Updated)
	_, _ = fmt.Fprintf(w, "Unchanged:\t%d\n", rep.Unchanged)
	_, _ = fmt.Fprintf(w, "Merge candidates:\t%d\n", len(rep.Candidates))
	for _, note := range rep.Notes {
		_, _ = fmt.Fprintf(w, "  note\t%s\n", note)
	}
	_, _ = fmt.Fprintf(w, "Warnings:\t%d\n", len(rep.Warnings))
	_, _ = fmt.Fprintf(w, "Rejected:\t%d\n", len(rep.Validation.Rejected))
	for _, is := range rep.Validation.Rejected {
		_, _ = fmt.Fprintf(w, "  %s\t%s\n", is.Key, is.Problem)
	}
	_ = w.Flush()
}

// FormatScore writes a scoring summary.
func FormatScore(out io.Writer, rep *pipeline.ScoreReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", rep.RunID)
	_, _ = fmt.Fprintf(w, "Scoring version:\t%s\n", rep.ScoringVersion)
	if rep.DryRun {
		_, _ = fmt.Fprintln(w, "Mode:\tdry run")
	}
	_, _ = fmt.Fprintf(w, "Selected:\t%d\n", rep.Selected)
	_, _ = fmt.Fprintf(w, "Scored:\t%d\n", rep.Scored)
	_, _ = fmt.Fprintf(w, "Unchanged:\t%d\n", rep.Kept)
	_, _ = fmt.Fprintf(w, "Flagged:\t%d\n", rep.Flagged)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", rep.Failed)

	sources := make([]string, 0, len(rep.BySource))
	for s := range rep.BySource {
		sources = append(sources, string(s))
	}
	sort.Strings(sources)
	for _, s := range sources {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", s, rep.BySource[model.ScoreSource(s)])
	}
	for _, f := range rep.Failures {
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%s (%d attempts)\n", f.Item, f.Stage, f.Error, f.Attempts)
	}
	_ = w.Flush()
}

// FormatChanges writes one line per evaluated change.
func FormatChanges(out io.Writer, rep *pipeline.ChangeReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "OUTCOME\tCHANGE\tSEVERITY\tCONFIDENCE\tSUPPORT\tNOTES")
	_, _ = fmt.Fprintln(w, "-------\t------\t--------\t----------\t-------\t-----")
	for i := range rep.Verdicts {
		v := &rep.Verdicts[i]
		outcome := "applied"
		switch {
		case !v.Guard.Allowed:
			outcome = "blocked"
		case !v.Apply:
			outcome = "held"
		}
		notes := ""
		if len(v.Notes) > 0 {
			notes = v.Notes[len(v.Notes)-1]
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			outcome,
			v.Change,
			v.Guard.Severity,
			v.Confidence,
			len(v.Corroboration.Supporting),
			len(v.Corroboration.Contradicting),
			truncate(notes, 60),
		)
	}
	_, _ = fmt.Fprintf(w, "\nApplied: %d  Held: %d  Blocked: %d\n", rep.Applied, rep.Held, rep.Blocked)
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
