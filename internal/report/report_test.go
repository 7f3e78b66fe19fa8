package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/thomaspryor/broadwayscore/internal/corroborate"
	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/internal/pipeline"
	"github.com/thomaspryor/broadwayscore/internal/resilience"
)

func intPtr(v int) *int { return &v }

func flagged(show, outlet, critic string, sev model.Severity, dist, delta int) model.Review {
	return model.Review{
		ShowID:       show,
		OutletID:     outlet,
		CriticID:     critic,
		Score:        intPtr(60),
		ScoreSource:  model.SourceEnsembleFallback,
		Confidence:   model.ConfidenceLow,
		NeedsReview:  true,
		ReviewReason: "no consensus",
		Ensemble: &model.EnsembleResult{
			Models: []model.ModelScore{
				{Model: "claude-sonnet", Bucket: model.BucketRave, Score: 90},
				{Model: "gpt", Error: "timeout"},
			},
			Disagreement: &model.Disagreement{
				Kind:           model.DisagreeNoConsensus,
				Severity:       sev,
				BucketDistance: dist,
				ScoreDelta:     delta,
			},
		},
	}
}

func sampleQueue() []QueueItem {
	ok := model.Review{ShowID: "wicked", OutletID: "variety", CriticID: "frank-rizzo", Score: intPtr(80)}
	noEnsemble := model.Review{ShowID: "wicked", OutletID: "vulture", CriticID: "sara-holdren", NeedsReview: true, ReviewReason: "manual check"}
	return Queue([]model.Review{
		ok,
		flagged("wicked", "new-york-times", "jesse-green", model.SeverityHigh, 2, 30),
		noEnsemble,
		flagged("hamilton", "new-yorker", "vinson-cunningham", model.SeverityCritical, 4, 70),
		flagged("hamilton", "deadline", "greg-evans", model.SeverityHigh, 2, 45),
	})
}

func TestQueue_OrdersBySeverity(t *testing.T) {
	t.Parallel()

	items := sampleQueue()
	require.Len(t, items, 4)
	assert.Equal(t, "vinson-cunningham", items[0].Key.CriticID)
	assert.Equal(t, "greg-evans", items[1].Key.CriticID)
	assert.Equal(t, "jesse-green", items[2].Key.CriticID)
	assert.Equal(t, "sara-holdren", items[3].Key.CriticID)
	assert.Equal(t, model.SeverityLow, items[3].Severity)

	assert.Equal(t, "claude-sonnet=rave gpt=error", items[0].Models)
	assert.Equal(t, "new-yorker", items[0].Outlet)
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleQueue()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, queueHeader, rows[0])
	assert.Equal(t, []string{"hamilton", "new-yorker", "vinson-cunningham", "critical", "no-consensus", "4", "70"}, rows[1][:7])
	assert.Equal(t, "", rows[4][7])
}

func TestWriteXLSX(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleQueue()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Equal(t, "Review Queue", sheet.Name)
	require.Len(t, sheet.Rows, 5)
	assert.Equal(t, "show", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "vinson-cunningham", sheet.Rows[1].Cells[2].String())
	n, err := sheet.Rows[1].Cells[5].Int()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestFormatQueue(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	FormatQueue(&buf, sampleQueue())
	out := buf.String()
	assert.Contains(t, out, "SEVERITY")
	assert.Contains(t, out, "critical")
	assert.Contains(t, out, "manual check")
}

func TestFormatReports(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	FormatIngest(&buf, &pipeline.IngestReport{
		RunID: "run-1", Received: 3, Canonical: 2, Inserted: 2,
		Notes: []string{"wicked/new-york-times|jesse-green: override 30 replaced by 45"},
		Validation: pipeline.ValidationSummary{Rejected: []pipeline.Issue{{
			Key: model.ReviewKey{ShowID: "wicked", OutletID: "vulture", CriticID: "unknown"}, Problem: "critic did not resolve to an identity",
		}}},
	})
	assert.Contains(t, buf.String(), "critic did not resolve")
	assert.Contains(t, buf.String(), "override 30 replaced by 45")

	var fails resilience.FailureLog
	fails.Add("wicked/vulture|sara-holdren", "cascade", 1, errors.New("no signal"))
	buf.Reset()
	FormatScore(&buf, &pipeline.ScoreReport{
		RunID: "run-2", ScoringVersion: "2026.10", Selected: 2, Scored: 1, Failed: 1,
		BySource: map[model.ScoreSource]int{model.SourceEnsemble: 1},
		Failures: fails.Items(),
	})
	assert.Contains(t, buf.String(), "ensemble:")
	assert.Contains(t, buf.String(), "no signal")

	buf.Reset()
	FormatChanges(&buf, &pipeline.ChangeReport{
		Verdicts: []corroborate.Verdict{{
			Change: model.Change{ShowID: "wicked", Field: "capacity", NewValue: model.NumberValue(40), Source: "x"},
			Guard:  corroborate.GuardDecision{Allowed: false, Severity: model.SeverityCritical},
			Notes:  []string{"blocked: critical change"},
		}},
		Blocked: 1,
	})
	assert.Contains(t, buf.String(), "blocked")
	assert.Contains(t, buf.String(), "Blocked: 1")
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
