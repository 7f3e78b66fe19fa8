package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/normalize"
	"github.com/thomaspryor/broadwayscore/internal/store"
)

// ErrAuditChanges is returned by aliases audit when the candidate table
// would re-key or merge stored reviews.
var ErrAuditChanges = eris.New("candidate alias table changes stored identities")

var aliasesCmd = &cobra.Command{
	Use:   "aliases",
	Short: "Inspect and audit outlet and critic alias tables",
}

var aliasesAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report how a candidate alias table would change stored identities",
	Long:  "Re-resolves every stored review under a candidate alias table without writing anything. Exits non-zero when any review would be re-keyed or two reviews would collapse into one.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		candidate, _ := cmd.Flags().GetString("candidate")
		asJSON, _ := cmd.Flags().GetBool("json")
		return runAliasesAudit(cmd.Context(), cfg, candidate, os.Stdout, asJSON)
	},
}

var aliasesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List canonical outlets and critics of the active alias table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		norm, err := loadNormalizer(cfg)
		if err != nil {
			return err
		}
		formatAliases(os.Stdout, norm.Aliases())
		return nil
	},
}

func runAliasesAudit(ctx context.Context, c *config.Config, candidatePath string, out io.Writer, asJSON bool) error {
	if candidatePath == "" {
		return eris.New("--candidate is required")
	}
	current, err := loadNormalizer(c)
	if err != nil {
		return err
	}
	table, err := normalize.LoadAliases(candidatePath)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, c, "aliases")
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	reviews, err := st.ListReviews(ctx, store.ReviewFilter{})
	if err != nil {
		return eris.Wrap(err, "aliases audit: list reviews")
	}

	rep := normalize.Audit(current, normalize.New(table), reviews)
	if asJSON {
		if err := printJSON(out, rep); err != nil {
			return err
		}
	} else {
		formatAudit(out, rep)
	}
	if !rep.Clean() {
		return ErrAuditChanges
	}
	return nil
}

func formatAudit(out io.Writer, rep *normalize.AuditReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Current:\t%s\n", rep.CurrentVersion)
	_, _ = fmt.Fprintf(w, "Candidate:\t%s\n", rep.CandidateVersion)
	_, _ = fmt.Fprintf(w, "Reviews checked:\t%d\n", rep.Reviews)
	_, _ = fmt.Fprintf(w, "Re-keyed:\t%d\n", len(rep.Rekeys))
	for _, rk := range rep.Rekeys {
		_, _ = fmt.Fprintf(w, "  %s\t-> %s\n", rk.From, rk.To)
	}
	_, _ = fmt.Fprintf(w, "Collapses:\t%d\n", len(rep.Collapses))
	for _, c := range rep.Collapses {
		for _, from := range c.From {
			_, _ = fmt.Fprintf(w, "  %s\t=> %s\n", from, c.Into)
		}
	}
	_ = w.Flush()
}

func formatAliases(out io.Writer, t *normalize.AliasTable) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Version:\t%s\n\n", t.Version())
	_, _ = fmt.Fprintln(w, "OUTLET\tNAME\tTIER")
	for _, o := range t.Outlets() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", o.ID, o.Name, o.Tier)
	}
	_, _ = fmt.Fprintln(w, "\nCRITIC\tNAME\t")
	for _, c := range t.Critics() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t\n", c.ID, c.Name)
	}
	_ = w.Flush()
}

func init() {
	aliasesAuditCmd.Flags().String("candidate", "", "path to the candidate alias table (YAML)")
	aliasesAuditCmd.Flags().Bool("json", false, "print the report as JSON")
	aliasesCmd.AddCommand(aliasesAuditCmd)
	aliasesCmd.AddCommand(aliasesListCmd)
	rootCmd.AddCommand(aliasesCmd)
}
