// Package synthesizer produces the final answer and its visuals.
package synthesizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/aiox-platform/gloser/internal/intent"
	"github.com/aiox-platform/gloser/internal/llm"
	"github.com/aiox-platform/gloser/internal/query"
	"github.com/aiox-platform/gloser/internal/source"
	"github.com/aiox-platform/gloser/internal/visual"
)

// ErrSynthesis is returned when the final completion fails. It is the only
// pipeline failure that reaches the caller.
var ErrSynthesis = errors.New("answer synthesis failed")

// Answer is the user-facing output of a pipeline run.
type Answer struct {
	Text    string              `json:"final_answer"`
	Visuals []visual.Descriptor `json:"visuals"`
}

type Synthesizer struct {
	llm       llm.Completer
	visualize func([]source.Result) []visual.Descriptor
}

func New(c llm.Completer) *Synthesizer {
	return &Synthesizer{llm: c, visualize: visual.Visualize}
}

// Synthesize answers req from results. A short-circuit decision returns its
// canned text untouched and skips the model entirely.
func (s *Synthesizer) Synthesize(ctx context.Context, req query.Request, d intent.Decision, results []source.Result) (Answer, error) {
	if d.ShortCircuit {
		return Answer{Text: d.Canned, Visuals: []visual.Descriptor{}}, nil
	}

	text, err := s.llm.Complete(ctx, s.Prompt(req, results), false)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}

	return Answer{Text: text, Visuals: s.safeVisualize(results)}, nil
}

// safeVisualize degrades to no visuals if a transform panics.
func (s *Synthesizer) safeVisualize(results []source.Result) (out []visual.Descriptor) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("synthesizer: visualization panicked", "panic", p, "stack", string(debug.Stack()))
			out = []visual.Descriptor{}
		}
	}()
	out = s.visualize(results)
	if out == nil {
		out = []visual.Descriptor{}
	}
	return out
}

// Prompt renders the answer prompt.
func (s *Synthesizer) Prompt(req query.Request, results []source.Result) string {
	var b strings.Builder
	if req.MemoryContext != "" {
		b.WriteString("CONVERSATION HISTORY (for context continuity):\n")
		b.WriteString(req.MemoryContext)
		b.WriteString("\n---\n\n")
	}
	if req.IsFollowUp {
		b.WriteString("NOTE: This is a follow-up question. Reference the previous conversation naturally.\n")
		b.WriteString("Use phrases like \"Continuing from our previous discussion...\" or \"As mentioned earlier...\" when appropriate.\n\n")
	}

	fmt.Fprintf(&b, "User Query: %s\n", req.Query)
	b.WriteString(`Answer the user query based ONLY on the provided context.
Use provided context from various agents.
You must synthesize the information into a concise answer.
Also give more relevant insights if possible.
If this is a follow-up question, ensure your response builds upon the previous conversation naturally.
Context from Agents:
`)
	b.WriteString(BuildContext(results))
	b.WriteString("\n\nProvide a detailed answer and properly mention stats every time.\n")
	return b.String()
}

// BuildContext renders one "<SOURCE> Data:" block per result in catalog
// order. The summary is used when present, otherwise the records as JSON.
func BuildContext(results []source.Result) string {
	ordered := make([]source.Result, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Source.Order() < ordered[j].Source.Order()
	})

	parts := make([]string, 0, len(ordered))
	for _, r := range ordered {
		body := r.Summary
		if body == "" {
			raw := make([]source.Fields, 0, len(r.Records))
			for _, rec := range r.Records {
				raw = append(raw, rec.Raw())
			}
			data, err := json.Marshal(raw)
			if err != nil {
				data = []byte("[]")
			}
			body = string(data)
		}
		parts = append(parts, r.Source.Label()+" Data:\n"+body)
	}
	return strings.Join(parts, "\n\n")
}
