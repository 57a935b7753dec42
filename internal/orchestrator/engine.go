// Package orchestrator drives a query through the gate, plan, dispatch and
// synthesize stages and exposes the pipeline over HTTP, WebSocket and NATS.
package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aiox-platform/gloser/internal/intent"
	"github.com/aiox-platform/gloser/internal/memory"
	"github.com/aiox-platform/gloser/internal/metrics"
	inats "github.com/aiox-platform/gloser/internal/nats"
	"github.com/aiox-platform/gloser/internal/query"
	"github.com/aiox-platform/gloser/internal/source"
	"github.com/aiox-platform/gloser/internal/synthesizer"
	"github.com/aiox-platform/gloser/internal/visual"
)

type Planner interface {
	Plan(ctx context.Context, req query.Request) []query.Step
}

type Dispatcher interface {
	Dispatch(ctx context.Context, steps []query.Step, fallback string) []source.Result
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req query.Request, d intent.Decision, results []source.Result) (synthesizer.Answer, error)
}

// EventSink receives pipeline and execution events. Publishing is best
// effort; failures are logged and never affect the run.
type EventSink interface {
	PublishPipelineEvent(ctx context.Context, event inats.PipelineEvent) error
	PublishExecution(ctx context.Context, event inats.ExecutionEvent) error
}

// Input is one query entering the pipeline.
type Input struct {
	Query     string
	SessionID string
	// SessionKey is the memory key; it defaults to SessionID.
	SessionKey string
	RequestID  string
	PlanOnly   bool
}

type Result struct {
	FinalAnswer string              `json:"final_answer"`
	Visuals     []visual.Descriptor `json:"visuals"`
}

// SourceSummary describes one consulted source.
type SourceSummary struct {
	Source  source.Kind `json:"source"`
	Records int         `json:"records"`
	Summary string      `json:"summary"`
	Failed  bool        `json:"failed"`
}

type MemoryStats struct {
	TotalExchanges int      `json:"total_exchanges"`
	KeyTopics      []string `json:"key_topics"`
}

// Response is the body returned to callers of every front door.
type Response struct {
	Query       string          `json:"query"`
	SessionID   string          `json:"session_id"`
	Result      *Result         `json:"result,omitempty"`
	Plan        []query.Step    `json:"plan,omitempty"`
	Sources     []SourceSummary `json:"sources,omitempty"`
	MemoryStats *MemoryStats    `json:"memory_stats,omitempty"`
}

type Engine struct {
	memory      *memory.Store
	planner     Planner
	dispatcher  Dispatcher
	synthesizer Synthesizer
	events      EventSink
	now         func() time.Time
}

func NewEngine(mem *memory.Store, p Planner, d Dispatcher, s Synthesizer) *Engine {
	return &Engine{
		memory:      mem,
		planner:     p,
		dispatcher:  d,
		synthesizer: s,
		now:         time.Now,
	}
}

// WithEvents makes the engine publish pipeline and execution events.
func (e *Engine) WithEvents(sink EventSink) *Engine {
	e.events = sink
	return e
}

// Plan returns the plan for a query without running it or touching memory.
func (e *Engine) Plan(ctx context.Context, in Input) Response {
	in = e.normalize(in)
	req := e.request(in)
	return Response{Query: in.Query, SessionID: in.SessionID, Plan: nonNil(e.planner.Plan(ctx, req))}
}

// Handle runs the pipeline for one query. Each stage reports an outcome and
// the transition table picks the next stage. The only error it returns wraps
// synthesizer.ErrSynthesis.
func (e *Engine) Handle(ctx context.Context, in Input, obs Observer) (Response, error) {
	in = e.normalize(in)
	req := e.request(in)
	e.memory.Append(in.SessionKey, memory.RoleUser, in.Query, false)

	r := &run{engine: e, ctx: ctx, in: in, obs: obs, state: StateGate, started: e.now(), stageAt: e.now()}
	if in.PlanOnly {
		// Plan-only runs skip the gate.
		r.state = StatePlan
	}
	resp := Response{Query: in.Query, SessionID: in.SessionID}

	var (
		steps   []query.Step
		results []source.Result
		answer  synthesizer.Answer
		runErr  error
	)
	for r.state != StateDone {
		var outcome Outcome
		switch r.state {
		case StateGate:
			r.decision = intent.Classify(in.Query)
			outcome = OutcomeProceed
			if r.decision.ShortCircuit {
				outcome = OutcomeShortCircuit
			}
		case StatePlan:
			steps = e.planner.Plan(ctx, req)
			r.planned = query.Sources(steps)
			switch {
			case in.PlanOnly:
				resp.Plan = nonNil(steps)
				outcome = OutcomePlanOnly
			case len(steps) == 0:
				outcome = OutcomeEmptyPlan
			default:
				outcome = OutcomePlanned
			}
		case StateDispatch:
			results = e.dispatcher.Dispatch(ctx, steps, in.Query)
			outcome = OutcomeDispatched
		case StateSynthesize:
			answer, runErr = e.synthesizer.Synthesize(ctx, req, r.decision, results)
			outcome = OutcomeAnswered
			if runErr != nil {
				outcome = OutcomeFailed
			}
		}
		if err := r.advance(outcome); err != nil {
			return Response{}, err
		}
	}

	if runErr != nil {
		r.finish(runErr)
		return Response{}, runErr
	}
	if in.PlanOnly {
		r.finish(nil)
		return resp, nil
	}

	e.memory.Append(in.SessionKey, memory.RoleAssistant, answer.Text, len(answer.Visuals) > 0)
	r.finish(nil)

	stats, _ := e.memory.Stats(in.SessionKey)
	resp.Result = &Result{FinalAnswer: answer.Text, Visuals: answer.Visuals}
	resp.Sources = summarize(results)
	resp.MemoryStats = &MemoryStats{TotalExchanges: stats.TotalExchanges, KeyTopics: stats.KeyTopics}
	return resp, nil
}

func (e *Engine) normalize(in Input) Input {
	if in.SessionID == "" {
		in.SessionID = uuid.NewString()
	}
	if in.SessionKey == "" {
		in.SessionKey = in.SessionID
	}
	if in.RequestID == "" {
		in.RequestID = uuid.NewString()
	}
	return in
}

// request loads memory for the session. It must run before the user turn is
// appended so the query is not its own history.
func (e *Engine) request(in Input) query.Request {
	mctx := e.memory.ContextFor(in.SessionKey, in.Query)
	return query.Request{
		Query:         in.Query,
		SessionID:     in.SessionID,
		MemoryContext: mctx.Render(),
		IsFollowUp:    mctx.IsFollowUp,
		Topics:        mctx.Topics,
	}
}

func summarize(results []source.Result) []SourceSummary {
	out := make([]SourceSummary, 0, len(results))
	for _, r := range results {
		out = append(out, SourceSummary{
			Source:  r.Source,
			Records: len(r.Records),
			Summary: r.Summary,
			Failed:  r.Failed(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source.Order() < out[j].Source.Order() })
	return out
}

func nonNil(steps []query.Step) []query.Step {
	if steps == nil {
		return []query.Step{}
	}
	return steps
}

// run tracks the state of one pipeline execution.
type run struct {
	engine   *Engine
	ctx      context.Context
	in       Input
	obs      Observer
	state    State
	started  time.Time
	stageAt  time.Time
	decision intent.Decision
	planned  []source.Kind
}

func (r *run) advance(outcome Outcome) error {
	to, err := Transition(r.state, outcome)
	if err != nil {
		slog.Error("orchestrator: illegal transition", "error", err, "request_id", r.in.RequestID)
		return err
	}

	now := r.engine.now()
	step := Step{From: r.state, Outcome: outcome, To: to, Elapsed: now.Sub(r.stageAt)}
	metrics.PipelineStageDuration.WithLabelValues(string(r.state)).Observe(step.Elapsed.Seconds())

	slog.Debug("orchestrator: transition",
		"request_id", r.in.RequestID,
		"from", step.From,
		"outcome", step.Outcome,
		"to", step.To,
	)
	if r.obs != nil {
		r.obs(step)
	}
	if r.engine.events != nil {
		ev := inats.PipelineEvent{
			RequestID:  r.in.RequestID,
			SessionID:  r.in.SessionID,
			From:       string(step.From),
			Outcome:    string(step.Outcome),
			To:         string(step.To),
			DurationMS: step.Elapsed.Milliseconds(),
			Timestamp:  now.UTC(),
		}
		if err := r.engine.events.PublishPipelineEvent(r.ctx, ev); err != nil {
			slog.Warn("orchestrator: publishing pipeline event", "error", err)
		}
	}

	r.state = to
	r.stageAt = now
	return nil
}

// finish records the run outcome and emits the execution event.
func (r *run) finish(runErr error) {
	outcome := "answered"
	switch {
	case runErr != nil:
		outcome = "failed"
	case r.in.PlanOnly:
		outcome = "plan_only"
	case r.decision.ShortCircuit:
		outcome = "short_circuit"
	}
	metrics.PipelineRunsTotal.WithLabelValues(outcome).Inc()

	elapsed := r.engine.now().Sub(r.started)
	slog.Info("orchestrator: run finished",
		"request_id", r.in.RequestID,
		"session_id", r.in.SessionID,
		"outcome", outcome,
		"sources", len(r.planned),
		"duration", elapsed,
	)

	if r.engine.events == nil {
		return
	}
	sources := make([]string, len(r.planned))
	for i, k := range r.planned {
		sources[i] = string(k)
	}
	// The audit log is listed per memory key so callers only see their own runs.
	ev := inats.ExecutionEvent{
		ID:           uuid.New(),
		RequestID:    r.in.RequestID,
		SessionID:    r.in.SessionKey,
		Query:        r.in.Query,
		ShortCircuit: r.decision.ShortCircuit,
		Category:     string(r.decision.Category),
		Sources:      sources,
		Status:       "ok",
		DurationMS:   elapsed.Milliseconds(),
		Timestamp:    r.engine.now().UTC(),
	}
	if runErr != nil {
		ev.Status = "failed"
		ev.Error = runErr.Error()
	}
	if err := r.engine.events.PublishExecution(r.ctx, ev); err != nil {
		slog.Warn("orchestrator: publishing execution event", "error", err)
	}
}
