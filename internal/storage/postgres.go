package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createAssessmentsTable = `
CREATE TABLE IF NOT EXISTS assessments (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	risk_score    DOUBLE PRECISION NOT NULL,
	risk_level    TEXT NOT NULL,
	override_band TEXT NOT NULL,
	decision_code TEXT NOT NULL,
	model_version TEXT NOT NULL,
	payload       JSONB
);
CREATE INDEX IF NOT EXISTS assessments_created_at_idx ON assessments (created_at DESC);
`

const upsertAssessment = `
INSERT INTO assessments
	(id, name, created_at, risk_score, risk_level, override_band, decision_code, model_version, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	created_at = EXCLUDED.created_at,
	risk_score = EXCLUDED.risk_score,
	risk_level = EXCLUDED.risk_level,
	override_band = EXCLUDED.override_band,
	decision_code = EXCLUDED.decision_code,
	model_version = EXCLUDED.model_version,
	payload = EXCLUDED.payload`

const selectColumns = `id, name, created_at, risk_score, risk_level, override_band, decision_code, model_version, payload`

// PostgresStore keeps assessment history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres connects to url, verifies the connection and ensures the
// assessments table exists.
func NewPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := pool.Exec(ctx, createAssessmentsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	var payload []byte
	if len(rec.Payload) > 0 {
		payload = rec.Payload
	}
	_, err := s.pool.Exec(ctx, upsertAssessment,
		rec.ID, rec.Name, rec.CreatedAt.UTC(), rec.RiskScore, rec.RiskLevel,
		rec.OverrideBand, rec.DecisionCode, rec.ModelVersion, payload)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM assessments WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("select assessment: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM assessments ORDER BY created_at DESC, id DESC LIMIT $1`,
		ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec     Record
		payload []byte
	)
	err := row.Scan(&rec.ID, &rec.Name, &rec.CreatedAt, &rec.RiskScore, &rec.RiskLevel,
		&rec.OverrideBand, &rec.DecisionCode, &rec.ModelVersion, &payload)
	if err != nil {
		return Record{}, err
	}
	if len(payload) > 0 {
		rec.Payload = payload
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
