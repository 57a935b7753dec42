// Package audit persists finished pipeline runs to Postgres and serves them
// back per session.
package audit

import (
	"time"

	"github.com/google/uuid"

	inats "github.com/aiox-platform/gloser/internal/nats"
)

// Execution matches the query_executions table schema.
type Execution struct {
	ID           uuid.UUID `json:"id"`
	RequestID    string    `json:"request_id"`
	SessionID    string    `json:"session_id"`
	Query        string    `json:"query"`
	ShortCircuit bool      `json:"short_circuit"`
	Category     string    `json:"category"`
	Sources      []string  `json:"sources"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for execution queries.
type ListParams struct {
	Status   string
	Page     int
	PageSize int
}

func DefaultListParams() ListParams {
	return ListParams{Page: 1, PageSize: 20}
}

func (p ListParams) normalized() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > 100 {
		p.PageSize = 20
	}
	return p
}

func (p ListParams) offset() int {
	return (p.Page - 1) * p.PageSize
}

// FromEvent converts an execution event into a row.
func FromEvent(ev inats.ExecutionEvent) *Execution {
	e := &Execution{
		ID:           ev.ID,
		RequestID:    ev.RequestID,
		SessionID:    ev.SessionID,
		Query:        ev.Query,
		ShortCircuit: ev.ShortCircuit,
		Category:     ev.Category,
		Sources:      ev.Sources,
		Status:       ev.Status,
		Error:        ev.Error,
		DurationMS:   ev.DurationMS,
		CreatedAt:    ev.Timestamp,
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Sources == nil {
		e.Sources = []string{}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return e
}
