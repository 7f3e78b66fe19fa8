package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/thomaspryor/broadwayscore/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reviews (
	show_id         TEXT NOT NULL,
	outlet_id       TEXT NOT NULL,
	critic_id       TEXT NOT NULL,
	data            TEXT NOT NULL,
	score           INTEGER,
	score_source    TEXT NOT NULL DEFAULT '',
	needs_review    INTEGER NOT NULL DEFAULT 0,
	scoring_version TEXT NOT NULL DEFAULT '',
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (show_id, outlet_id, critic_id)
);

CREATE TABLE IF NOT EXISTS field_records (
	show_id    TEXT NOT NULL,
	field      TEXT NOT NULL,
	kind       TEXT NOT NULL,
	value      TEXT NOT NULL,
	verified   INTEGER NOT NULL DEFAULT 0,
	source     TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (show_id, field)
);

CREATE TABLE IF NOT EXISTS observations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	show_id     TEXT NOT NULL,
	field       TEXT NOT NULL,
	value       TEXT NOT NULL,
	source      TEXT NOT NULL,
	source_type TEXT NOT NULL DEFAULT '',
	observed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS checkpoints (
	name       TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_reviews_version ON reviews(scoring_version);
CREATE INDEX IF NOT EXISTS idx_reviews_needs_review ON reviews(needs_review);
CREATE INDEX IF NOT EXISTS idx_observations_show_field ON observations(show_id, field);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetReview(ctx context.Context, key model.ReviewKey) (*model.Review, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM reviews WHERE show_id = ? AND outlet_id = ? AND critic_id = ?`,
		key.ShowID, key.OutletID, key.CriticID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "review %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get review %s", key)
	}
	return decodeReview([]byte(data))
}

func (s *SQLiteStore) ListReviews(ctx context.Context, filter ReviewFilter) ([]model.Review, error) {
	query := `SELECT data FROM reviews WHERE 1=1`
	var args []any

	if filter.ShowID != "" {
		query += ` AND show_id = ?`
		args = append(args, filter.ShowID)
	}
	if filter.StaleVersion != "" {
		query += ` AND scoring_version <> ?`
		args = append(args, filter.StaleVersion)
	}
	if filter.NeedsReview {
		query += ` AND needs_review = 1`
	}
	query += ` ORDER BY show_id, outlet_id, critic_id`

	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reviews")
	}
	defer rows.Close()

	var out []model.Review
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan review")
		}
		r, err := decodeReview([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate reviews")
}

func (s *SQLiteStore) ApplyBatch(ctx context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin batch")
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range b.Put {
		r := &b.Put[i]
		data, err := encodeReview(r)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO reviews (show_id, outlet_id, critic_id, data, score, score_source, needs_review, scoring_version, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (show_id, outlet_id, critic_id) DO UPDATE SET
			   data = excluded.data, score = excluded.score, score_source = excluded.score_source,
			   needs_review = excluded.needs_review, scoring_version = excluded.scoring_version,
			   updated_at = excluded.updated_at`,
			r.ShowID, r.OutletID, r.CriticID, string(data), r.Score, string(r.ScoreSource),
			r.NeedsReview, r.ScoringVersion, r.UpdatedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: put review %s", r.Key())
		}
	}

	for _, k := range b.Delete {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM reviews WHERE show_id = ? AND outlet_id = ? AND critic_id = ?`,
			k.ShowID, k.OutletID, k.CriticID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: delete review %s", k)
		}
	}

	for _, rec := range b.Fields {
		if err := putFieldSQLite(ctx, tx, rec); err != nil {
			return err
		}
	}

	for _, obs := range b.Observations {
		if err := addObservationSQLite(ctx, tx, obs); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit batch")
}

func (s *SQLiteStore) GetField(ctx context.Context, showID, field string) (*model.FieldRecord, error) {
	rec := model.FieldRecord{ShowID: showID, Field: field}
	var kind, value string
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, value, verified, source, updated_at FROM field_records WHERE show_id = ? AND field = ?`,
		showID, field,
	).Scan(&kind, &value, &rec.Verified, &rec.Source, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get field %s.%s", showID, field)
	}
	rec.Kind = model.FieldKind(kind)
	if err := json.Unmarshal([]byte(value), &rec.Value); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal field value")
	}
	return &rec, nil
}

func (s *SQLiteStore) PutField(ctx context.Context, rec model.FieldRecord) error {
	return putFieldSQLite(ctx, s.db, rec)
}

func (s *SQLiteStore) ListObservations(ctx context.Context, showID, field string) ([]model.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value, source, source_type, observed_at FROM observations
		 WHERE show_id = ? AND field = ? ORDER BY observed_at, id`,
		showID, field,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list observations")
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		o := model.Observation{ShowID: showID, Field: field}
		var value, sourceType string
		if err := rows.Scan(&value, &o.Source, &sourceType, &o.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		if err := json.Unmarshal([]byte(value), &o.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal observation value")
		}
		o.SourceType = model.SourceType(sourceType)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate observations")
}

func (s *SQLiteStore) AddObservation(ctx context.Context, obs model.Observation) error {
	return addObservationSQLite(ctx, s.db, obs)
}

func (s *SQLiteStore) GetCheckpoint(ctx context.Context, name string) (*Checkpoint, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM checkpoints WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get checkpoint %s", name)
	}
	var cp Checkpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal checkpoint")
	}
	return &cp, nil
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal checkpoint")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		cp.Name, string(data), cp.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save checkpoint %s", cp.Name)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putFieldSQLite(ctx context.Context, ex execer, rec model.FieldRecord) error {
	value, err := json.Marshal(rec.Value)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal field value")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO field_records (show_id, field, kind, value, verified, source, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (show_id, field) DO UPDATE SET
		   kind = excluded.kind, value = excluded.value, verified = excluded.verified,
		   source = excluded.source, updated_at = excluded.updated_at`,
		rec.ShowID, rec.Field, string(rec.Kind), string(value), rec.Verified, rec.Source, rec.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: put field %s.%s", rec.ShowID, rec.Field)
}

func addObservationSQLite(ctx context.Context, ex execer, obs model.Observation) error {
	value, err := json.Marshal(obs.Value)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal observation value")
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now().UTC()
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO observations (show_id, field, value, source, source_type, observed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		obs.ShowID, obs.Field, string(value), obs.Source, string(obs.SourceType), obs.ObservedAt,
	)
	return eris.Wrapf(err, "sqlite: add observation %s.%s", obs.ShowID, obs.Field)
}
