package memory

import (
	"sync"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one stored message of a conversation.
type Turn struct {
	Role       Role      `json:"role"`
	Text       string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	HadVisuals bool      `json:"had_visuals"`
}

// session is the mutable state behind one session key. Every field is
// guarded by mu.
type session struct {
	mu sync.Mutex

	turns     []Turn
	summary   string
	topics    []string
	exchanges int
	lastSeen  time.Time
	removed   bool
}

// Stats is a snapshot of a session for the stats endpoint.
type Stats struct {
	SessionID      string   `json:"session_id"`
	TotalMessages  int      `json:"total_messages"`
	TotalExchanges int      `json:"total_exchanges"`
	HasSummary     bool     `json:"has_summary"`
	KeyTopicsCount int      `json:"key_entities_count"`
	KeyTopics      []string `json:"key_entities"`
}
