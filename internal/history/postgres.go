package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"veritas/internal/provider"
)

// ErrNotFound is returned when no record exists for the requested hash.
var ErrNotFound = errors.New("analysis not found")

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepository{db: db}, nil
}

// EnsureSchema creates the analyses table and its indexes when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS analyses (
			id BIGSERIAL PRIMARY KEY,
			content_hash TEXT UNIQUE NOT NULL,
			original_text TEXT NOT NULL,
			source_type TEXT NOT NULL,
			analysis_result JSONB NOT NULL,
			attitude_mode TEXT NOT NULL,
			provider TEXT NOT NULL,
			confidence_score REAL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_attitude_mode ON analyses (attitude_mode)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) Save(ctx context.Context, rec *Record) error {
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	query := `
		INSERT INTO analyses (
			content_hash, original_text, source_type, analysis_result,
			attitude_mode, provider, confidence_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (content_hash) DO UPDATE SET
			analysis_result = EXCLUDED.analysis_result,
			provider = EXCLUDED.provider,
			confidence_score = EXCLUDED.confidence_score,
			updated_at = NOW()
	`

	_, err = r.db.ExecContext(ctx, query,
		rec.ContentHash, rec.OriginalText, rec.SourceType, result,
		rec.AttitudeMode, rec.Provider, rec.ConfidenceScore,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByHash(ctx context.Context, hash string) (*Record, error) {
	query := `
		SELECT id, content_hash, original_text, source_type, analysis_result,
			attitude_mode, provider, confidence_score, created_at
		FROM analyses
		WHERE content_hash = $1
	`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]Record, error) {
	query := `
		SELECT id, content_hash, original_text, source_type, analysis_result,
			attitude_mode, provider, confidence_score, created_at
		FROM analyses
		ORDER BY created_at DESC
		LIMIT $1
	`
	return r.queryRecords(ctx, query, limit)
}

func (r *PostgresRepository) Search(ctx context.Context, text string, limit int) ([]Record, error) {
	query := `
		SELECT id, content_hash, original_text, source_type, analysis_result,
			attitude_mode, provider, confidence_score, created_at
		FROM analyses
		WHERE original_text ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.queryRecords(ctx, query, text, limit)
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRepository) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var rawResult []byte
	var confidence sql.NullFloat64
	err := row.Scan(
		&rec.ID, &rec.ContentHash, &rec.OriginalText, &rec.SourceType,
		&rawResult, &rec.AttitudeMode, &rec.Provider, &confidence, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if confidence.Valid {
		rec.ConfidenceScore = confidence.Float64
	}
	var a provider.Analysis
	if err := json.Unmarshal(rawResult, &a); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	rec.Result = &a
	return &rec, nil
}
