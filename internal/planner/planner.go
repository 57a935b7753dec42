// Package planner asks the language model which sources to consult for a
// request and with which query.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aiox-platform/gloser/internal/llm"
	"github.com/aiox-platform/gloser/internal/metrics"
	"github.com/aiox-platform/gloser/internal/query"
	"github.com/aiox-platform/gloser/internal/source"
)

var errMalformedPlan = errors.New("malformed plan")

// Planner turns a request into lookup steps.
type Planner struct {
	llm     llm.Completer
	catalog *source.Catalog
}

// New creates a Planner offering the enabled sources of catalog.
func New(c llm.Completer, catalog *source.Catalog) *Planner {
	if catalog == nil {
		catalog = source.DefaultCatalog()
	}
	return &Planner{llm: c, catalog: catalog}
}

// Plan never fails. A model error or an unparseable reply yields an empty
// plan, which the pipeline treats as "no lookups performed".
func (p *Planner) Plan(ctx context.Context, req query.Request) []query.Step {
	raw, err := p.llm.Complete(ctx, p.Prompt(req), true)
	if err != nil {
		slog.Warn("planner: completion failed, using empty plan", "error", err)
		metrics.PlannerFallbacksTotal.Inc()
		return []query.Step{}
	}

	steps, err := Parse(raw, p.enabled)
	if err != nil {
		slog.Warn("planner: could not parse plan, using empty plan", "error", err, "raw", truncate(raw, 200))
		metrics.PlannerFallbacksTotal.Inc()
		return []query.Step{}
	}

	slog.Debug("planner: plan generated", "steps", len(steps), "session_id", req.SessionID)
	return steps
}

func (p *Planner) enabled(k source.Kind) bool {
	e, ok := p.catalog.Entry(k)
	return ok && e.IsEnabled()
}

// Prompt renders the planning prompt for req.
func (p *Planner) Prompt(req query.Request) string {
	var b strings.Builder
	b.WriteString("You are a Master Orchestrator for pharmaceutical intelligence.\n\n")

	if req.MemoryContext != "" {
		b.WriteString("CONVERSATION CONTEXT (use this to understand follow-up queries):\n")
		b.WriteString(req.MemoryContext)
		b.WriteString("\n---\n\n")
	}
	if req.IsFollowUp {
		b.WriteString("NOTE: This appears to be a follow-up question. Consider the previous conversation context when planning.\n")
		b.WriteString("If the user refers to \"it\", \"that\", \"same\", etc., infer from the conversation history what they mean.\n\n")
	}
	if len(req.Topics) > 0 {
		fmt.Fprintf(&b, "Key topics from conversation: %s\n\n", strings.Join(req.Topics, ", "))
	}

	fmt.Fprintf(&b, "User Query: %q\n\n", req.Query)

	b.WriteString("Available Agents:\n")
	entries := p.catalog.Enabled()
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, e.Kind, e.Hint)
	}

	b.WriteString(`
IMPORTANT GUIDELINES:
- For vague/broad queries (like just "patent" or "market"), use multiple relevant agents including web for latest context
- ALWAYS include web agent when user asks about "latest", "recent", "news", "updates", or "more data"
- ALWAYS include web agent when user wants comprehensive/additional information beyond our databases
- When user says "more data" or "anything else", add web agent to search for supplementary information

Return a JSON object with a key "steps" containing a list of agents to call and the specific query for them.
Format:
{
  "steps": [
`)
	for i, e := range entries {
		sep := ","
		if i == len(entries)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "    {\"agent\": %q, \"query\": \"specific keyword\"}%s\n", e.Kind, sep)
	}
	b.WriteString(`  ]
}
Return only agents that are relevant to the user query. When in doubt, include web agent for additional context.
If this is a follow-up query, use context from previous conversation to determine the right agents and keywords.
`)
	return b.String()
}

type planJSON struct {
	Steps []struct {
		Agent string `json:"agent"`
		Query string `json:"query"`
	} `json:"steps"`
}

// Parse decodes a model reply of the form {"steps":[{"agent","query"}]}.
// Markdown code fences and text around the object are tolerated. Steps for
// unknown sources, or sources rejected by allow, are dropped.
func Parse(raw string, allow func(source.Kind) bool) ([]query.Step, error) {
	body := stripFences(raw)

	var plan planJSON
	if err := json.Unmarshal([]byte(body), &plan); err != nil {
		start, end := strings.Index(body, "{"), strings.LastIndex(body, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: %v", errMalformedPlan, err)
		}
		if err := json.Unmarshal([]byte(body[start:end+1]), &plan); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedPlan, err)
		}
	}

	steps := make([]query.Step, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		kind, err := source.ParseKind(s.Agent)
		if err != nil {
			slog.Debug("planner: dropping step", "agent", s.Agent, "error", err)
			continue
		}
		if allow != nil && !allow(kind) {
			slog.Debug("planner: dropping step for disabled source", "agent", kind)
			continue
		}
		steps = append(steps, query.Step{Source: kind, Query: strings.TrimSpace(s.Query)})
	}
	return steps, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
