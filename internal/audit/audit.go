// Package audit persists one record per answered question so operators
// can reconstruct what was asked, what SQL was attempted and what the
// final outcome was. Statements in records are always the sanitized
// form.
package audit

import (
	"context"
	"time"

	"github.com/payme/payme/internal/agent"
)

// Record is the durable trail of one question.
type Record struct {
	ID         string          `json:"id"`
	TraceID    string          `json:"trace_id,omitempty"`
	TenantID   string          `json:"tenant_id"`
	ContactID  string          `json:"contact_id"`
	Question   string          `json:"question"`
	Status     string          `json:"status"`
	SQL        string          `json:"sql,omitempty"`
	Confidence int             `json:"confidence,omitempty"`
	RowCount   int             `json:"row_count"`
	Attempts   []agent.Attempt `json:"attempts"`
	AskedAt    time.Time       `json:"asked_at"`
	Elapsed    time.Duration   `json:"elapsed_ms"`
}

// Recorder persists audit records. Recording failures must never fail
// the question that produced them; callers log and move on.
type Recorder interface {
	Record(ctx context.Context, record Record) error
}

// NopRecorder drops records. Used when auditing is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Record) error { return nil }
