package reportstore

import (
	"context"
	"time"

	"github.com/jihoonkang/malhagi/internal/report"
)

// Record is one persisted assessment outcome.
type Record struct {
	ID            string        `json:"id"`
	SessionID     string        `json:"session_id"`
	TriggerReason string        `json:"trigger_reason"`
	Report        report.Report `json:"report"`
	VerbalSummary string        `json:"verbal_summary"`
	TurnCount     int           `json:"turn_count"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Store persists completed assessment reports. Save failures are logged by
// callers and never fail the session.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
