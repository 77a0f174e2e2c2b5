// Package storage persists completed risk assessments so clinicians can look
// back at earlier results. Two backends are provided: an embedded BoltDB file
// for single-node deployments and PostgreSQL for shared deployments.
//
// History is an optional side channel. The analysis pipeline never fails an
// assessment because a write here failed.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for an unknown assessment id.
var ErrNotFound = errors.New("assessment not found")

// DefaultRecentLimit and MaxRecentLimit bound Recent queries.
const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 500
)

// Record is one stored assessment. Payload holds the full serialized result;
// the other fields are denormalised for listing.
type Record struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	CreatedAt    time.Time       `json:"created_at"`
	RiskScore    float64         `json:"risk_score"`
	RiskLevel    string          `json:"risk_level"`
	OverrideBand string          `json:"override_band"`
	DecisionCode string          `json:"decision_code"`
	ModelVersion string          `json:"model_version"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Store is an assessment history backend.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// ClampLimit maps a caller-supplied limit into [1, MaxRecentLimit].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}

func validateRecord(rec Record) error {
	if rec.ID == "" {
		return errors.New("record id is required")
	}
	if rec.CreatedAt.IsZero() {
		return errors.New("record created_at is required")
	}
	return nil
}
