package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/thomaspryor/broadwayscore/internal/model"
)

// Pool is the subset of pgxpool.Pool used by the store, narrow enough for
// pgxmock to stand in for it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS reviews (
	show_id         TEXT NOT NULL,
	outlet_id       TEXT NOT NULL,
	critic_id       TEXT NOT NULL,
	data            JSONB NOT NULL,
	score           INTEGER,
	score_source    TEXT NOT NULL DEFAULT '',
	needs_review    BOOLEAN NOT NULL DEFAULT false,
	scoring_version TEXT NOT NULL DEFAULT '',
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (show_id, outlet_id, critic_id)
);

CREATE TABLE IF NOT EXISTS field_records (
	show_id    TEXT NOT NULL,
	field      TEXT NOT NULL,
	kind       TEXT NOT NULL,
	value      JSONB NOT NULL,
	verified   BOOLEAN NOT NULL DEFAULT false,
	source     TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (show_id, field)
);

CREATE TABLE IF NOT EXISTS observations (
	id          BIGSERIAL PRIMARY KEY,
	show_id     TEXT NOT NULL,
	field       TEXT NOT NULL,
	value       JSONB NOT NULL,
	source      TEXT NOT NULL,
	source_type TEXT NOT NULL DEFAULT '',
	observed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS checkpoints (
	name       TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reviews_version ON reviews(scoring_version);
CREATE INDEX IF NOT EXISTS idx_reviews_needs_review ON reviews(needs_review) WHERE needs_review;
CREATE INDEX IF NOT EXISTS idx_observations_show_field ON observations(show_id, field);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetReview(ctx context.Context, key model.ReviewKey) (*model.Review, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM reviews WHERE show_id = $1 AND outlet_id = $2 AND critic_id = $3`,
		key.ShowID, key.OutletID, key.CriticID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "review %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get review %s", key)
	}
	return decodeReview(data)
}

func (s *PostgresStore) ListReviews(ctx context.Context, filter ReviewFilter) ([]model.Review, error) {
	query := `SELECT data FROM reviews WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ShowID != "" {
		query += fmt.Sprintf(` AND show_id = $%d`, argIdx)
		args = append(args, filter.ShowID)
		argIdx++
	}
	if filter.StaleVersion != "" {
		query += fmt.Sprintf(` AND scoring_version <> $%d`, argIdx)
		args = append(args, filter.StaleVersion)
		argIdx++
	}
	if filter.NeedsReview {
		query += ` AND needs_review`
	}
	query += ` ORDER BY show_id, outlet_id, critic_id`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reviews")
	}
	defer rows.Close()

	var out []model.Review
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan review")
		}
		r, err := decodeReview(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate reviews")
}

const upsertReviewSQL = `INSERT INTO reviews (show_id, outlet_id, critic_id, data, score, score_source, needs_review, scoring_version, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (show_id, outlet_id, critic_id) DO UPDATE SET
  data = EXCLUDED.data, score = EXCLUDED.score, score_source = EXCLUDED.score_source,
  needs_review = EXCLUDED.needs_review, scoring_version = EXCLUDED.scoring_version,
  updated_at = EXCLUDED.updated_at`

func (s *PostgresStore) ApplyBatch(ctx context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin batch")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for i := range b.Put {
		r := &b.Put[i]
		data, err := encodeReview(r)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, upsertReviewSQL,
			r.ShowID, r.OutletID, r.CriticID, data, r.Score, string(r.ScoreSource),
			r.NeedsReview, r.ScoringVersion, r.UpdatedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "postgres: put review %s", r.Key())
		}
	}

	for _, k := range b.Delete {
		if _, err := tx.Exec(ctx,
			`DELETE FROM reviews WHERE show_id = $1 AND outlet_id = $2 AND critic_id = $3`,
			k.ShowID, k.OutletID, k.CriticID,
		); err != nil {
			return eris.Wrapf(err, "postgres: delete review %s", k)
		}
	}

	for _, rec := range b.Fields {
		if err := putFieldPostgres(ctx, tx, rec); err != nil {
			return err
		}
	}

	for _, obs := range b.Observations {
		if err := addObservationPostgres(ctx, tx, obs); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit batch")
}

func (s *PostgresStore) GetField(ctx context.Context, showID, field string) (*model.FieldRecord, error) {
	rec := model.FieldRecord{ShowID: showID, Field: field}
	var kind string
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT kind, value, verified, source, updated_at FROM field_records WHERE show_id = $1 AND field = $2`,
		showID, field,
	).Scan(&kind, &value, &rec.Verified, &rec.Source, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get field %s.%s", showID, field)
	}
	rec.Kind = model.FieldKind(kind)
	if err := json.Unmarshal(value, &rec.Value); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal field value")
	}
	return &rec, nil
}

func (s *PostgresStore) PutField(ctx context.Context, rec model.FieldRecord) error {
	return putFieldPostgres(ctx, s.pool, rec)
}

func (s *PostgresStore) ListObservations(ctx context.Context, showID, field string) ([]model.Observation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT value, source, source_type, observed_at FROM observations
		 WHERE show_id = $1 AND field = $2 ORDER BY observed_at, id`,
		showID, field,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list observations")
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		o := model.Observation{ShowID: showID, Field: field}
		var value []byte
		var sourceType string
		if err := rows.Scan(&value, &o.Source, &sourceType, &o.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		if err := json.Unmarshal(value, &o.Value); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal observation value")
		}
		o.SourceType = model.SourceType(sourceType)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate observations")
}

func (s *PostgresStore) AddObservation(ctx context.Context, obs model.Observation) error {
	return addObservationPostgres(ctx, s.pool, obs)
}

func (s *PostgresStore) GetCheckpoint(ctx context.Context, name string) (*Checkpoint, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM checkpoints WHERE name = $1`, name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get checkpoint %s", name)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal checkpoint")
	}
	return &cp, nil
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal checkpoint")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO checkpoints (name, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		cp.Name, data, cp.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save checkpoint %s", cp.Name)
}

// pgExecer is satisfied by both Pool and pgx.Tx.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func putFieldPostgres(ctx context.Context, ex pgExecer, rec model.FieldRecord) error {
	value, err := json.Marshal(rec.Value)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal field value")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err = ex.Exec(ctx,
		`INSERT INTO field_records (show_id, field, kind, value, verified, source, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (show_id, field) DO UPDATE SET
		   kind = EXCLUDED.kind, value = EXCLUDED.value, verified = EXCLUDED.verified,
		   source = EXCLUDED.source, updated_at = EXCLUDED.updated_at`,
		rec.ShowID, rec.Field, string(rec.Kind), value, rec.Verified, rec.Source, rec.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: put field %s.%s", rec.ShowID, rec.Field)
}

func addObservationPostgres(ctx context.Context, ex pgExecer, obs model.Observation) error {
	value, err := json.Marshal(obs.Value)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal observation value")
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now().UTC()
	}
	_, err = ex.Exec(ctx,
		`INSERT INTO observations (show_id, field, value, source, source_type, observed_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		obs.ShowID, obs.Field, value, obs.Source, string(obs.SourceType), obs.ObservedAt,
	)
	return eris.Wrapf(err, "postgres: add observation %s.%s", obs.ShowID, obs.Field)
}
