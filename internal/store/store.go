// Package store persists the review corpus, numeric show fields, their
// independent observations and batch checkpoints. Reviews are keyed by the
// canonical show/outlet/critic triple and every batch write is atomic.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/model"
)

// ErrNotFound is returned when a keyed review does not exist.
var ErrNotFound = eris.New("store: not found")

// ReviewFilter specifies criteria for listing reviews. Empty fields match
// everything.
type ReviewFilter struct {
	ShowID string `json:"show_id,omitempty"`
	// StaleVersion selects reviews not yet scored under this scoring version.
	StaleVersion string `json:"stale_version,omitempty"`
	NeedsReview  bool   `json:"needs_review,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// Batch is a set of writes applied in one transaction: either all of them
// land or none do.
type Batch struct {
	Put          []model.Review
	Delete       []model.ReviewKey
	Fields       []model.FieldRecord
	Observations []model.Observation
}

// Empty reports whether the batch carries no writes.
func (b Batch) Empty() bool {
	return len(b.Put) == 0 && len(b.Delete) == 0 && len(b.Fields) == 0 && len(b.Observations) == 0
}

// Checkpoint records how far a named batch job got.
type Checkpoint struct {
	Name           string    `json:"name"`
	RunID          string    `json:"run_id"`
	ScoringVersion string    `json:"scoring_version"`
	Processed      int       `json:"processed"`
	Failed         int       `json:"failed"`
	LastKey        string    `json:"last_key,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store defines the persistence interface for the review corpus.
type Store interface {
	// Reviews
	GetReview(ctx context.Context, key model.ReviewKey) (*model.Review, error)
	ListReviews(ctx context.Context, filter ReviewFilter) ([]model.Review, error)
	ApplyBatch(ctx context.Context, b Batch) error

	// Show fields. GetField returns nil, nil when the field has no record.
	GetField(ctx context.Context, showID, field string) (*model.FieldRecord, error)
	PutField(ctx context.Context, rec model.FieldRecord) error
	ListObservations(ctx context.Context, showID, field string) ([]model.Observation, error)
	AddObservation(ctx context.Context, obs model.Observation) error

	// Checkpoints. GetCheckpoint returns nil, nil when none was saved.
	GetCheckpoint(ctx context.Context, name string) (*Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the backend named by cfg.Driver and runs migrations.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		s, err = NewSQLite(cfg.SQLitePath)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
