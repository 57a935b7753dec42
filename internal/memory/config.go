package memory

import "time"

const (
	// SummaryTrigger is the message count above which older turns are folded.
	SummaryTrigger = 6
	// KeepRecent turns always survive compression verbatim.
	KeepRecent = 8
	// MaxSummary bounds the rolling summary, including the trailing "...".
	MaxSummary = 500
	// MaxTopics is the size of the topic window.
	MaxTopics = 10
	// MaxStoredText bounds every stored turn.
	MaxStoredText = 500

	maxNewTopics   = 5
	renderedTurns  = 4
	renderedLength = 200
	userFoldLen    = 100
	replyFoldLen   = 150
)

// Config controls session housekeeping.
type Config struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		IdleTTL:       2 * time.Hour,
		SweepInterval: 5 * time.Minute,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.IdleTTL <= 0 {
		c.IdleTTL = def.IdleTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	return c
}
