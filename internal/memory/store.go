package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/aiox-platform/gloser/internal/metrics"
)

// Store keeps conversation state per session key in process memory. A short
// global lock guards the session map; every read-modify-write on a session
// runs under that session's own mutex.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	cfg      Config
	now      func() time.Time
}

func NewStore(cfg Config) *Store {
	return &Store{
		sessions: make(map[string]*session),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// acquire returns the locked session for id, creating it when missing.
func (s *Store) acquire(id string) *session {
	for {
		s.mu.Lock()
		sess, ok := s.sessions[id]
		if !ok {
			sess = &session{lastSeen: s.now()}
			s.sessions[id] = sess
			metrics.MemorySessions.Set(float64(len(s.sessions)))
		}
		s.mu.Unlock()

		sess.mu.Lock()
		if !sess.removed {
			return sess
		}
		// Cleared or evicted between lookup and lock.
		sess.mu.Unlock()
	}
}

// lookup returns the locked session for id, or nil.
func (s *Store) lookup(id string) *session {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	sess.mu.Lock()
	if sess.removed {
		sess.mu.Unlock()
		return nil
	}
	return sess
}

// Append records a turn. User turns feed the topic window. Older turns are
// folded into the rolling summary once the history grows past SummaryTrigger.
func (s *Store) Append(id string, role Role, text string, hadVisuals bool) {
	sess := s.acquire(id)
	defer sess.mu.Unlock()

	now := s.now()
	sess.turns = append(sess.turns, Turn{
		Role:       role,
		Text:       truncate(text, MaxStoredText),
		Timestamp:  now,
		HadVisuals: hadVisuals,
	})
	sess.lastSeen = now

	if role == RoleUser {
		sess.exchanges++
		sess.topics = mergeTopics(sess.topics, extractEntities(text))
	}

	if len(sess.turns) > SummaryTrigger {
		compress(sess)
	}
}

// ContextFor returns the memory view used to build prompts for query.
func (s *Store) ContextFor(id, query string) Context {
	sess := s.lookup(id)
	if sess == nil {
		return Context{IsFollowUp: isFollowUp(query, nil)}
	}
	defer sess.mu.Unlock()

	sess.lastSeen = s.now()

	recent := sess.turns
	if len(recent) > KeepRecent {
		recent = recent[len(recent)-KeepRecent:]
	}
	return Context{
		HasHistory: len(sess.turns) > 0,
		Summary:    sess.summary,
		Topics:     append([]string(nil), sess.topics...),
		Recent:     append([]Turn(nil), recent...),
		Exchanges:  sess.exchanges,
		IsFollowUp: isFollowUp(query, sess.topics),
	}
}

// Clear drops a session. It reports whether the session existed.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
		metrics.MemorySessions.Set(float64(len(s.sessions)))
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	sess.mu.Lock()
	sess.removed = true
	sess.mu.Unlock()
	return true
}

// Stats reports a snapshot of a session without creating it.
func (s *Store) Stats(id string) (Stats, bool) {
	sess := s.lookup(id)
	if sess == nil {
		return Stats{SessionID: id, KeyTopics: []string{}}, false
	}
	defer sess.mu.Unlock()

	return Stats{
		SessionID:      id,
		TotalMessages:  len(sess.turns),
		TotalExchanges: sess.exchanges,
		HasSummary:     sess.summary != "",
		KeyTopicsCount: len(sess.topics),
		KeyTopics:      append([]string{}, sess.topics...),
	}, true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts sessions that have been idle for longer than idle and returns
// how many were removed.
func (s *Store) Sweep(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		if sess.lastSeen.Before(cutoff) {
			sess.removed = true
			delete(s.sessions, id)
			removed++
		}
		sess.mu.Unlock()
	}
	metrics.MemorySessions.Set(float64(len(s.sessions)))
	return removed
}

// Run sweeps idle sessions every SweepInterval until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.cfg.IdleTTL); n > 0 {
				slog.Info("memory: evicted idle sessions", "count", n, "live", s.Len(), "idle_ttl", s.cfg.IdleTTL)
			}
		}
	}
}

// compress folds every turn except the most recent KeepRecent into the
// rolling summary.
func compress(sess *session) {
	if len(sess.turns) <= KeepRecent {
		return
	}
	old := sess.turns[:len(sess.turns)-KeepRecent]

	parts := make([]string, 0, len(old)+1)
	if sess.summary != "" {
		parts = append(parts, sess.summary)
	}
	for _, t := range old {
		if t.Role == RoleUser {
			parts = append(parts, "User asked about: "+prefix(t.Text, userFoldLen))
		} else {
			parts = append(parts, "Assistant provided: "+prefix(t.Text, replyFoldLen)+"...")
		}
	}

	sess.summary = truncate(strings.Join(parts, " | "), MaxSummary)
	sess.turns = append([]Turn(nil), sess.turns[len(sess.turns)-KeepRecent:]...)
	metrics.MemoryCompactionsTotal.Inc()
}

var stopWords = map[string]bool{
	"I": true, "The": true, "What": true, "How": true, "Why": true,
	"When": true, "Where": true, "Can": true, "Could": true, "Would": true,
	"Should": true, "Is": true, "Are": true, "Do": true, "Does": true,
}

// extractEntities picks capitalised words longer than two characters, the
// usual shape of drug, company and country names.
func extractEntities(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, word := range strings.Fields(text) {
		r := []rune(word)
		if len(r) <= 2 || !unicode.IsUpper(r[0]) || stopWords[word] {
			continue
		}
		clean := strings.Map(func(c rune) rune {
			if unicode.IsLetter(c) || unicode.IsDigit(c) {
				return c
			}
			return -1
		}, word)
		key := strings.ToLower(clean)
		if clean == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, clean)
	}
	return out
}

// mergeTopics appends up to maxNewTopics unseen entities and keeps the most
// recent MaxTopics. Topics compare case-insensitively; the first spelling stays.
func mergeTopics(topics, entities []string) []string {
	added := 0
	for _, e := range entities {
		if added == maxNewTopics {
			break
		}
		if containsFold(topics, e) {
			continue
		}
		topics = append(topics, e)
		added++
	}
	if len(topics) > MaxTopics {
		topics = append([]string(nil), topics[len(topics)-MaxTopics:]...)
	}
	return topics
}

var followUpIndicators = []string{
	"more", "also", "what about", "how about", "and", "additionally",
	"tell me more", "expand", "detail", "specifically", "same",
	"that", "this", "it", "they", "those", "these", "previous",
	"earlier", "mentioned", "you said", "compare", "versus", "vs",
}

// isFollowUp is a plain substring test, so "it" also matches "with".
func isFollowUp(query string, topics []string) bool {
	q := strings.ToLower(query)
	for _, ind := range followUpIndicators {
		if strings.Contains(q, ind) {
			return true
		}
	}
	for _, t := range topics {
		if strings.Contains(q, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// truncate limits s to n runes, the last three being "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
