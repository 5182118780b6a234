// Package history persists finished analyses to PostgreSQL so past reports
// can be listed and searched.
package history

import (
	"context"
	"time"

	"veritas/internal/provider"
)

// Record is one stored analysis.
type Record struct {
	ID              int64              `json:"id"`
	ContentHash     string             `json:"content_hash"`
	OriginalText    string             `json:"original_text"`
	SourceType      string             `json:"source_type"`
	Result          *provider.Analysis `json:"result"`
	AttitudeMode    string             `json:"attitude_mode"`
	Provider        string             `json:"provider"`
	ConfidenceScore float64            `json:"confidence_score"`
	CreatedAt       time.Time          `json:"created_at"`
}

type Repository interface {
	Save(ctx context.Context, rec *Record) error
	GetByHash(ctx context.Context, hash string) (*Record, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	Search(ctx context.Context, query string, limit int) ([]Record, error)
	Close() error
}
