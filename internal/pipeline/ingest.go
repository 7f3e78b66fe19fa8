package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/thomaspryor/broadwayscore/internal/dedup"
	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/internal/normalize"
	"github.com/thomaspryor/broadwayscore/internal/rating"
	"github.com/thomaspryor/broadwayscore/internal/store"
)

// RawReview is one source's record of a review, before identity resolution.
type RawReview struct {
	ShowID         string          `json:"show_id"`
	Outlet         string          `json:"outlet"`
	Critic         string          `json:"critic"`
	URL            string          `json:"url,omitempty"`
	Text           string          `json:"text,omitempty"`
	Excerpts       []string        `json:"excerpts,omitempty"`
	ContentTier    string          `json:"content_tier,omitempty"`
	Source         string          `json:"source"`
	Signal         string          `json:"signal,omitempty"`
	ExplicitRating string          `json:"explicit_rating,omitempty"`
	Override       *model.Override `json:"override,omitempty"`
	PublishedAt    *time.Time      `json:"published_at,omitempty"`
}

// LoadRaw reads raw reviews as a JSON array or as JSON lines.
func LoadRaw(r io.Reader) ([]RawReview, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read raw reviews")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var out []RawReview
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, eris.Wrap(err, "pipeline: parse raw reviews")
		}
		return out, nil
	}

	var out []RawReview
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var rr RawReview
		if err := json.Unmarshal(text, &rr); err != nil {
			return nil, eris.Wrapf(err, "pipeline: parse raw review on line %d", line)
		}
		out = append(out, rr)
	}
	return out, eris.Wrap(sc.Err(), "pipeline: scan raw reviews")
}

// IngestReport summarizes one ingest run.
type IngestReport struct {
	RunID      string                 `json:"run_id"`
	DryRun     bool                   `json:"dry_run"`
	Received   int                    `json:"received"`
	Canonical  int                    `json:"canonical"`
	Inserted   int                    `json:"inserted"`
	Updated    int                    `json:"updated"`
	Unchanged  int                    `json:"unchanged"`
	Warnings   []string               `json:"warnings,omitempty"`
	Candidates []dedup.MergeCandidate `json:"candidates,omitempty"`
	Notes      []string               `json:"notes,omitempty"`
	Validation ValidationSummary      `json:"validation"`
}

// Ingester resolves raw records into canonical reviews and merges them into
// the corpus.
type Ingester struct {
	store store.Store
	norm  *normalize.Normalizer
	now   func() time.Time
}

// NewIngester creates an Ingester.
func NewIngester(st store.Store, n *normalize.Normalizer) *Ingester {
	return &Ingester{store: st, norm: n, now: func() time.Time { return time.Now().UTC() }}
}

// Ingest normalizes, deduplicates and validates raw, merges each review with
// its stored version and writes the result in one atomic batch. With dryRun
// nothing is written.
func (in *Ingester) Ingest(ctx context.Context, raw []RawReview, dryRun bool) (*IngestReport, error) {
	rep := &IngestReport{RunID: uuid.NewString(), DryRun: dryRun, Received: len(raw)}
	log := zap.L().With(zap.String("run_id", rep.RunID))
	now := in.now()

	records := make([]model.Review, 0, len(raw))
	for i := range raw {
		r, warn := toReview(&raw[i], now)
		if warn != "" {
			rep.Warnings = append(rep.Warnings, warn)
			log.Warn("pipeline: degraded raw record", zap.String("show", r.ShowID), zap.String("problem", warn))
		}
		records = append(records, r)
	}

	known, err := in.knownReviews(ctx, records)
	if err != nil {
		return nil, err
	}
	knownList := make([]model.Review, 0, len(known))
	for _, r := range known {
		knownList = append(knownList, r)
	}

	res := dedup.New(in.norm, knownList).Resolve(records)
	rep.Canonical = len(res.Reviews)
	rep.Candidates = res.Candidates
	rep.Notes = res.Notes

	merged := make([]model.Review, 0, len(res.Reviews))
	status := make(map[model.ReviewKey]string, len(res.Reviews))
	for _, r := range res.Reviews {
		existing, ok := known[r.Key()]
		if !ok {
			r.CreatedAt = now
			r.UpdatedAt = now
			merged = append(merged, r)
			status[r.Key()] = "inserted"
			continue
		}
		m, notes := dedup.Merge(existing, r)
		rep.Notes = append(rep.Notes, notes...)
		m.UpdatedAt = existing.UpdatedAt
		m.CreatedAt = existing.CreatedAt
		if reflect.DeepEqual(m, existing) {
			status[r.Key()] = "unchanged"
			continue
		}
		m.UpdatedAt = now
		merged = append(merged, m)
		status[r.Key()] = "updated"
	}

	for _, note := range rep.Notes {
		log.Info("pipeline: merge replaced a stored value", zap.String("note", note))
	}

	accepted, summary := ValidateAll(merged)
	rep.Validation = summary
	for _, r := range accepted {
		switch status[r.Key()] {
		case "inserted":
			rep.Inserted++
		case "updated":
			rep.Updated++
		}
	}
	for _, s := range status {
		if s == "unchanged" {
			rep.Unchanged++
		}
	}
	for _, is := range summary.Rejected {
		log.Warn("pipeline: rejected review", zap.String("review", is.Key.String()), zap.String("problem", is.Problem))
	}

	if dryRun || len(accepted) == 0 {
		log.Info("pipeline: ingest complete",
			zap.Bool("dry_run", dryRun),
			zap.Int("received", rep.Received),
			zap.Int("canonical", rep.Canonical),
		)
		return rep, nil
	}

	if err := in.store.ApplyBatch(ctx, store.Batch{Put: accepted}); err != nil {
		return nil, eris.Wrap(err, "pipeline: write ingested reviews")
	}
	log.Info("pipeline: ingest complete",
		zap.Int("received", rep.Received),
		zap.Int("inserted", rep.Inserted),
		zap.Int("updated", rep.Updated),
		zap.Int("rejected", len(summary.Rejected)),
	)
	return rep, nil
}

// knownReviews loads the stored reviews of every show in records, keyed by
// their canonical triple.
func (in *Ingester) knownReviews(ctx context.Context, records []model.Review) (map[model.ReviewKey]model.Review, error) {
	shows := make(map[string]bool)
	for i := range records {
		if records[i].ShowID != "" {
			shows[records[i].ShowID] = true
		}
	}
	out := make(map[model.ReviewKey]model.Review)
	for show := range shows {
		reviews, err := in.store.ListReviews(ctx, store.ReviewFilter{ShowID: show})
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: load show %s", show)
		}
		for _, r := range reviews {
			out[r.Key()] = r
		}
	}
	return out, nil
}

// toReview converts a raw record. A malformed signal field degrades only
// that field and is reported as a warning.
func toReview(rr *RawReview, now time.Time) (model.Review, string) {
	r := model.Review{
		ShowID:         strings.TrimSpace(rr.ShowID),
		OutletName:     strings.TrimSpace(rr.Outlet),
		CriticName:     strings.TrimSpace(rr.Critic),
		URL:            strings.TrimSpace(rr.URL),
		Text:           strings.TrimSpace(rr.Text),
		Excerpts:       rr.Excerpts,
		ContentTier:    contentTier(rr),
		ExplicitRating: strings.TrimSpace(rr.ExplicitRating),
		Override:       rr.Override,
		PublishedAt:    rr.PublishedAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if rr.Source != "" {
		r.Sources = []string{rr.Source}
	}
	if r.Override != nil && r.Override.At.IsZero() {
		r.Override.At = now
	}

	if raw, _, ok := rating.Resolve(r.ExplicitRating, r.Text); ok {
		r.ExplicitRating = raw
	}

	var warn string
	if s := strings.ToLower(strings.TrimSpace(rr.Signal)); s != "" {
		if d, ok := model.ParseDirection(s); ok {
			r.AggregatorSignal = &model.Signal{Direction: d, Source: rr.Source}
		} else {
			warn = "unrecognized aggregator signal " + rr.Signal + " from " + rr.Source
		}
	}
	return r, warn
}

func contentTier(rr *RawReview) model.ContentTier {
	switch t := model.ContentTier(strings.ToLower(rr.ContentTier)); t {
	case model.ContentFull, model.ContentPartial, model.ContentExcerpt, model.ContentNone:
		return t
	}
	switch {
	case strings.TrimSpace(rr.Text) != "":
		return model.ContentPartial
	case len(rr.Excerpts) > 0:
		return model.ContentExcerpt
	default:
		return model.ContentNone
	}
}
