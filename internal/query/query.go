// Package query holds the values passed between pipeline stages for a single
// request.
package query

import "github.com/aiox-platform/gloser/internal/source"

// Request is built when a query enters the pipeline and dropped once the
// response is produced.
type Request struct {
	Query         string
	SessionID     string
	MemoryContext string
	IsFollowUp    bool
	Topics        []string
}

// Step is one planned lookup.
type Step struct {
	Source source.Kind `json:"agent"`
	Query  string      `json:"query"`
}

// Sources returns the distinct sources of steps in first-seen order.
func Sources(steps []Step) []source.Kind {
	seen := make(map[source.Kind]bool, len(steps))
	var out []source.Kind
	for _, s := range steps {
		if !seen[s.Source] {
			seen[s.Source] = true
			out = append(out, s.Source)
		}
	}
	return out
}
