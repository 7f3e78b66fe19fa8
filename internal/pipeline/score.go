package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thomaspryor/broadwayscore/internal/cascade"
	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/ensemble"
	"github.com/thomaspryor/broadwayscore/internal/judge"
	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/internal/rating"
	"github.com/thomaspryor/broadwayscore/internal/resilience"
	"github.com/thomaspryor/broadwayscore/internal/store"
)

// CheckpointName is the checkpoint written by the scoring batch.
const CheckpointName = "score"

// Judges scores one review's text with every configured model.
type Judges interface {
	Score(ctx context.Context, req judge.Request) (judge.Verdict, error)
}

// Selection chooses which reviews a scoring run touches. The zero value
// selects every review not yet scored under the current scoring version.
type Selection struct {
	ShowID string
	// Force rescored reviews already carrying the current scoring version.
	Force bool
}

// ScoreReport summarizes one scoring run.
type ScoreReport struct {
	RunID          string                    `json:"run_id"`
	ScoringVersion string                    `json:"scoring_version"`
	DryRun         bool                      `json:"dry_run"`
	Selected       int                       `json:"selected"`
	Scored         int                       `json:"scored"`
	Kept           int                       `json:"kept"`
	Failed         int                       `json:"failed"`
	Flagged        int                       `json:"flagged"`
	Checkpoints    int                       `json:"checkpoints"`
	BySource       map[model.ScoreSource]int `json:"by_source"`
	Failures       []resilience.Failure      `json:"failures,omitempty"`
	Reviews        []model.Review            `json:"-"`
}

// Scorer runs the ensemble and cascade over stored reviews.
type Scorer struct {
	store   store.Store
	judges  Judges
	voter   *ensemble.Voter
	cascade *cascade.Cascade
	cfg     config.BatchConfig
	now     func() time.Time
}

// NewScorer creates a Scorer. judges may be nil when every selected review
// can be decided without model scores.
func NewScorer(st store.Store, judges Judges, cfg *config.Config) *Scorer {
	return &Scorer{
		store:   st,
		judges:  judges,
		voter:   ensemble.New(cfg.Ensemble),
		cascade: cascade.New(cfg.Cascade),
		cfg:     cfg.Batch,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run scores every selected review. Reviews already stamped with the current
// scoring version are skipped unless sel.Force is set, so re-running after an
// interruption only touches what the earlier run did not finish. Per-review
// failures are collected in the report and never stop the batch. Results are
// written, and a checkpoint saved, every CheckpointInterval reviews.
func (s *Scorer) Run(ctx context.Context, sel Selection, dryRun bool) (*ScoreReport, error) {
	version := s.cfg.ScoringVersion
	rep := &ScoreReport{
		RunID:          uuid.NewString(),
		ScoringVersion: version,
		DryRun:         dryRun,
		BySource:       make(map[model.ScoreSource]int),
	}
	log := zap.L().With(zap.String("run_id", rep.RunID), zap.String("scoring_version", version))

	filter := store.ReviewFilter{ShowID: sel.ShowID}
	if !sel.Force {
		filter.StaleVersion = version
	}
	reviews, err := s.store.ListReviews(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: select reviews")
	}
	rep.Selected = len(reviews)

	if cp, err := s.store.GetCheckpoint(ctx, CheckpointName); err != nil {
		log.Warn("pipeline: read checkpoint", zap.Error(err))
	} else if cp != nil && cp.ScoringVersion == version {
		log.Info("pipeline: resuming after checkpoint",
			zap.String("previous_run", cp.RunID),
			zap.Int("previous_processed", cp.Processed),
			zap.Int("remaining", len(reviews)),
		)
	}

	interval := s.cfg.CheckpointInterval
	if interval <= 0 {
		interval = 25
	}
	concurrency := s.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		failures resilience.FailureLog
		mu       sync.Mutex
		pending  []model.Review
		done     int
		lastKey  string
	)

	flush := func(ctx context.Context) error {
		if len(pending) == 0 {
			return nil
		}
		if !dryRun {
			if err := s.store.ApplyBatch(ctx, store.Batch{Put: pending}); err != nil {
				return eris.Wrap(err, "pipeline: write scored reviews")
			}
			if err := s.store.SaveCheckpoint(ctx, store.Checkpoint{
				Name:           CheckpointName,
				RunID:          rep.RunID,
				ScoringVersion: version,
				Processed:      done,
				Failed:         rep.Failed,
				LastKey:        lastKey,
				UpdatedAt:      s.now(),
			}); err != nil {
				return eris.Wrap(err, "pipeline: save checkpoint")
			}
		}
		rep.Checkpoints++
		log.Info("pipeline: checkpoint", zap.Int("processed", done), zap.Int("of", rep.Selected))
		pending = pending[:0]
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range reviews {
		r := reviews[i]
		g.Go(func() error {
			scored, changed, err := s.scoreOne(gctx, &r, &failures)
			if gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			lastKey = r.Key().String()
			switch {
			case err != nil:
				rep.Failed++
			case !changed:
				rep.Kept++
			default:
				rep.Scored++
				rep.BySource[scored.ScoreSource]++
				if scored.NeedsReview {
					rep.Flagged++
				}
				pending = append(pending, *scored)
				rep.Reviews = append(rep.Reviews, *scored)
			}
			if len(pending) >= interval {
				return flush(gctx)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: score batch")
	}

	mu.Lock()
	err = flush(ctx)
	mu.Unlock()
	if err != nil {
		return nil, err
	}

	rep.Failures = failures.Items()
	log.Info("pipeline: scoring complete",
		zap.Bool("dry_run", dryRun),
		zap.Int("selected", rep.Selected),
		zap.Int("scored", rep.Scored),
		zap.Int("flagged", rep.Flagged),
		zap.Int("failed", rep.Failed),
	)
	return rep, nil
}

// scoreOne runs one review through the panel, the voter and the cascade. It
// returns the updated review and whether anything about it changed; err is
// set when the review could not be decided.
func (s *Scorer) scoreOne(ctx context.Context, r *model.Review, failures *resilience.FailureLog) (*model.Review, bool, error) {
	key := r.Key().String()

	if s.needsJudges(r) {
		if s.judges == nil {
			err := eris.New("pipeline: no judges configured")
			failures.Add(key, "judge", 0, err)
			return nil, false, err
		}
		v, err := s.judges.Score(ctx, judge.Request{
			Key:    r.Key(),
			Outlet: r.OutletName,
			Critic: r.CriticName,
			Text:   r.ScoredText(),
		})
		if err != nil {
			return nil, false, err
		}
		for _, f := range v.Failures {
			failures.Add(key, "judge:"+f.Judge, f.Attempts, f.Err)
		}
		res := s.voter.Combine(v.Scores...)
		r.Ensemble = &res
	}

	d, err := s.cascade.Decide(r)
	if err != nil {
		failures.Add(key, "cascade", 1, err)
		zap.L().Warn("pipeline: review not decided", zap.String("review", key), zap.Error(err))
		return nil, false, err
	}

	before := r.Score
	if _, err := cascade.Apply(r, d); err != nil {
		failures.Add(key, "cascade", 1, err)
		return nil, false, err
	}
	changed := r.ScoringVersion != s.cfg.ScoringVersion || before == nil || *before != *r.Score
	r.ScoringVersion = s.cfg.ScoringVersion
	r.UpdatedAt = s.now()
	return r, changed, nil
}

// needsJudges reports whether model scores could influence the decision: not
// when an explicit rating or override already settles it, and not when
// there is no text to read.
func (s *Scorer) needsJudges(r *model.Review) bool {
	if _, ok := rating.Parse(r.ExplicitRating); ok {
		return false
	}
	if r.Override != nil {
		return false
	}
	return r.ScoredText() != ""
}
