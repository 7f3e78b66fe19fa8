package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomaspryor/broadwayscore/internal/cascade"
	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/corroborate"
	"github.com/thomaspryor/broadwayscore/internal/ensemble"
	"github.com/thomaspryor/broadwayscore/internal/judge"
	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/internal/pipeline"
	"github.com/thomaspryor/broadwayscore/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Store:         config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(dir, "corpus.db")},
		Ensemble:      ensemble.DefaultConfig(),
		Cascade:       cascade.DefaultConfig(),
		Corroboration: corroborate.DefaultConfig(),
		Batch: config.BatchConfig{
			Concurrency:        2,
			CheckpointInterval: 10,
			ScoringVersion:     "2026.10",
			LockPath:           filepath.Join(dir, "corpus.lock"),
		},
		Server: config.ServerConfig{Port: 8080},
	}
}

// splitJudges disagrees on every review so that each lands in the queue.
type splitJudges struct{}

func (splitJudges) Score(context.Context, judge.Request) (judge.Verdict, error) {
	return judge.Verdict{Scores: []*model.ModelScore{
		{Model: "claude-sonnet", Bucket: model.BucketRave, Score: 92, Confidence: model.ConfidenceHigh},
		{Model: "claude-haiku", Bucket: model.BucketMixed, Score: 62, Confidence: model.ConfidenceMedium},
		{Model: "gpt", Bucket: model.BucketPan, Score: 25, Confidence: model.ConfidenceMedium},
	}}, nil
}

const rawJSONL = `{"show_id":"wicked","outlet":"NYT","critic":"Jesse Green","source":"dtli","text":"Elphaba soars and the staging dazzles."}
{"show_id":"wicked","outlet":"Variety","critic":"Frank Rizzo","source":"dtli","explicit_rating":"B+"}
`

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"ingest", "score", "changes", "aliases", "queue", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
	assert.Equal(t, "broadwayscore", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestBatchCommands_HaveDryRun(t *testing.T) {
	for _, name := range []string{"ingest", "score", "changes"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		f := cmd.Flags().Lookup("dry-run")
		require.NotNil(t, f, "%s should have --dry-run", name)
		assert.Equal(t, "false", f.DefValue)
	}

	sub, _, err := rootCmd.Find([]string{"aliases", "audit"})
	require.NoError(t, err)
	assert.NotNil(t, sub.Flags().Lookup("candidate"))
	assert.Equal(t, "table", queueCmd.Flags().Lookup("format").DefValue)
	assert.Equal(t, "0", serveCmd.Flags().Lookup("port").DefValue)
}

func TestAcquireLock_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.lock")

	unlock, err := acquireLock(path)
	require.NoError(t, err)

	_, err = acquireLock(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)

	unlock()
	again, err := acquireLock(path)
	require.NoError(t, err)
	again()
}

func TestIngestScoreQueue(t *testing.T) {
	c := testConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runIngest(ctx, c, strings.NewReader(rawJSONL), &out, false, false))
	assert.Contains(t, out.String(), "Inserted:")

	out.Reset()
	require.NoError(t, runScore(ctx, c, splitJudges{}, &out, pipeline.Selection{}, false, false))
	assert.Contains(t, out.String(), "explicit-rating:")
	assert.Contains(t, out.String(), "ensemble-fallback:")

	st, err := store.Open(ctx, c.Store)
	require.NoError(t, err)
	r, err := st.GetReview(ctx, model.ReviewKey{ShowID: "wicked", OutletID: "variety", CriticID: "frank-rizzo"})
	require.NoError(t, err)
	require.NotNil(t, r.Score)
	assert.Equal(t, model.SourceExplicitRating, r.ScoreSource)
	require.NoError(t, st.Close())

	out.Reset()
	require.NoError(t, runQueue(ctx, c, "wicked", "csv", &out))
	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "jesse-green", rows[1][2])

	out.Reset()
	require.NoError(t, runQueue(ctx, c, "", "json", &out))
	assert.Contains(t, out.String(), "no-consensus")

	require.Error(t, runQueue(ctx, c, "", "pdf", &out))
}

func TestIngest_DryRun(t *testing.T) {
	c := testConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runIngest(ctx, c, strings.NewReader(rawJSONL), &out, true, true))
	assert.Contains(t, out.String(), `"dry_run": true`)

	st, err := store.Open(ctx, c.Store)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	all, err := st.ListReviews(ctx, store.ReviewFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRunChanges(t *testing.T) {
	c := testConfig(t)

	in := `- show_id: wicked
  field: weekly_gross
  kind: monetary
  new_value: {number: 2450000}
  source: broadway-league
  source_type: official
`
	var out bytes.Buffer
	require.NoError(t, runChanges(context.Background(), c, strings.NewReader(in), &out, false, false))
	assert.Contains(t, out.String(), "applied")
	assert.Contains(t, out.String(), "Applied: 1")
}

func TestRunAliasesAudit(t *testing.T) {
	c := testConfig(t)
	ctx := context.Background()
	require.NoError(t, runIngest(ctx, c, strings.NewReader(rawJSONL), &bytes.Buffer{}, false, false))

	candidate := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(candidate, []byte(`version: "candidate"
outlets:
  - id: the-times
    name: The New York Times
    tier: 1
    aliases: ["NYT"]
critics:
  - id: j-green
    name: Jesse Green
`), 0o644))

	var out bytes.Buffer
	err := runAliasesAudit(ctx, c, candidate, &out, false)
	require.ErrorIs(t, err, ErrAuditChanges)
	assert.Contains(t, out.String(), "wicked/the-times|j-green")

	same := filepath.Join(t.TempDir(), "same.yaml")
	data, err := os.ReadFile(filepath.Join("..", "internal", "normalize", "aliases.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(same, data, 0o644))
	out.Reset()
	require.NoError(t, runAliasesAudit(ctx, c, same, &out, true))
	assert.Contains(t, out.String(), `"reviews": 2`)

	require.Error(t, runAliasesAudit(ctx, c, "", &out, false))
}
