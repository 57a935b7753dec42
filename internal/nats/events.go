package nats

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FetchTimeout bounds one batch fetch from a pull consumer.
const FetchTimeout = 2 * time.Second

const (
	StreamQueries = "GLOSER_QUERIES"
	StreamEvents  = "GLOSER_EVENTS"
)

const (
	SubjectQueryInbound  = "gloser.queries.inbound"
	SubjectQueryOutbound = "gloser.queries.outbound"
	SubjectPipelineEvent = "gloser.events.pipeline"
	SubjectAuditEvent    = "gloser.events.audit"
)

// QueryRequest is an asynchronous query submitted on the inbound subject.
type QueryRequest struct {
	ID         string    `json:"id" validate:"required"`
	Query      string    `json:"query" validate:"required,max=4000"`
	SessionID  string    `json:"session_id,omitempty" validate:"omitempty,max=128"`
	PlanOnly   bool      `json:"plan_only,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// QueryReply answers a QueryRequest. Response carries the same body the HTTP
// endpoint returns; Error is set instead when the run failed.
type QueryReply struct {
	ID        string          `json:"id"`
	InReplyTo string          `json:"in_reply_to"`
	SessionID string          `json:"session_id,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// PipelineEvent records one stage transition of a pipeline run.
type PipelineEvent struct {
	RequestID  string    `json:"request_id"`
	SessionID  string    `json:"session_id"`
	From       string    `json:"from"`
	Outcome    string    `json:"outcome"`
	To         string    `json:"to"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// ExecutionEvent summarises a finished pipeline run for the audit log.
type ExecutionEvent struct {
	ID           uuid.UUID `json:"id"`
	RequestID    string    `json:"request_id"`
	SessionID    string    `json:"session_id"`
	Query        string    `json:"query"`
	ShortCircuit bool      `json:"short_circuit"`
	Category     string    `json:"category"`
	Sources      []string  `json:"sources"`
	Status       string    `json:"status"` // ok, failed
	Error        string    `json:"error,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}
