package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/gloser/internal/intent"
	"github.com/aiox-platform/gloser/internal/llm"
	"github.com/aiox-platform/gloser/internal/memory"
	inats "github.com/aiox-platform/gloser/internal/nats"
	"github.com/aiox-platform/gloser/internal/planner"
	"github.com/aiox-platform/gloser/internal/source"
	"github.com/aiox-platform/gloser/internal/synthesizer"
	"github.com/aiox-platform/gloser/internal/visual"
	"github.com/aiox-platform/gloser/internal/worker"
)

// fakeLLM answers planning calls (JSON mode) with plan and answer calls with
// answer, recording every prompt.
type fakeLLM struct {
	mu        sync.Mutex
	plan      string
	answer    string
	answerErr error
	prompts   []string
	jsonCalls int
	textCalls int
}

func (f *fakeLLM) Complete(_ context.Context, prompt string, jsonMode bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if jsonMode {
		f.jsonCalls++
		return f.plan, nil
	}
	f.textCalls++
	return f.answer, f.answerErr
}

func (f *fakeLLM) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[len(f.prompts)-1]
}

type fakeSink struct {
	mu         sync.Mutex
	stages     []inats.PipelineEvent
	executions []inats.ExecutionEvent
	err        error
}

func (s *fakeSink) PublishPipelineEvent(_ context.Context, ev inats.PipelineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = append(s.stages, ev)
	return s.err
}

func (s *fakeSink) PublishExecution(_ context.Context, ev inats.ExecutionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = append(s.executions, ev)
	return s.err
}

type lookupCounter struct {
	mu    sync.Mutex
	calls map[source.Kind]int
}

func (c *lookupCounter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

var diabetesTrials = []source.Fields{
	{"NCTId": "NCT0001", "BriefTitle": "Metformin in Type 2 Diabetes", "Phase": "PHASE3", "OverallStatus": "RECRUITING", "LeadSponsorName": "Acme", "LocationCountry": "India"},
	{"NCTId": "NCT0002", "BriefTitle": "Insulin Pump Study", "Phase": "PHASE2", "OverallStatus": "COMPLETED", "LeadSponsorName": "Beta", "LocationCountry": "Brazil"},
}

type harness struct {
	engine  *Engine
	llm     *fakeLLM
	memory  *memory.Store
	lookups *lookupCounter
	sink    *fakeSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	f := &fakeLLM{
		plan:   `{"steps":[{"agent":"clinical","query":"diabetes"}]}`,
		answer: "Two diabetes trials were found; one is recruiting.",
	}
	counter := &lookupCounter{calls: make(map[source.Kind]int)}

	pool := worker.NewPool()
	for _, k := range source.Kinds {
		kind := k
		pool.Register(worker.NewSourceWorker(kind, source.LookupFunc(func(_ context.Context, q string) (source.Result, error) {
			counter.mu.Lock()
			counter.calls[kind]++
			counter.mu.Unlock()
			if kind == source.Clinical {
				return source.NewResult(kind, diabetesTrials, "Clinical Agent (local) found 2 trials for '"+q+"'"), nil
			}
			return source.NewResult(kind, nil, "nothing"), nil
		}), time.Second))
	}

	mem := memory.NewStore(memory.Config{})
	sink := &fakeSink{}
	engine := NewEngine(
		mem,
		planner.New(f, nil),
		worker.NewDispatcher(pool, worker.DedupFirst),
		synthesizer.New(f),
	).WithEvents(sink)

	return &harness{engine: engine, llm: f, memory: mem, lookups: counter, sink: sink}
}

func collect(steps *[]Step) Observer {
	return func(s Step) { *steps = append(*steps, s) }
}

func outcomes(steps []Step) []Outcome {
	out := make([]Outcome, len(steps))
	for i, s := range steps {
		out[i] = s.Outcome
	}
	return out
}

func TestEngine_Greeting(t *testing.T) {
	h := newHarness(t)
	var steps []Step

	resp, err := h.engine.Handle(context.Background(), Input{Query: "hi", SessionID: "s1"}, collect(&steps))
	require.NoError(t, err)

	require.NotNil(t, resp.Result)
	assert.Equal(t, intent.GreetingText, resp.Result.FinalAnswer)
	assert.NotNil(t, resp.Result.Visuals)
	assert.Empty(t, resp.Result.Visuals)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, "s1", resp.SessionID)

	assert.Equal(t, 0, h.llm.jsonCalls+h.llm.textCalls, "small talk never reaches the model")
	assert.Equal(t, 0, h.lookups.total())
	assert.Equal(t, []Outcome{OutcomeShortCircuit, OutcomeAnswered}, outcomes(steps))
	assert.Equal(t, StateDone, steps[len(steps)-1].To)

	require.NotNil(t, resp.MemoryStats)
	assert.Equal(t, 1, resp.MemoryStats.TotalExchanges)
	stats, _ := h.memory.Stats("s1")
	assert.Equal(t, 2, stats.TotalMessages)

	require.Len(t, h.sink.executions, 1)
	exec := h.sink.executions[0]
	assert.True(t, exec.ShortCircuit)
	assert.Equal(t, "greeting", exec.Category)
	assert.Equal(t, "ok", exec.Status)
	assert.Empty(t, exec.Sources)
}

func TestEngine_ClinicalTrials(t *testing.T) {
	h := newHarness(t)
	var steps []Step

	resp, err := h.engine.Handle(context.Background(), Input{Query: "Show me clinical trials for diabetes", SessionID: "s1"}, collect(&steps))
	require.NoError(t, err)

	assert.Equal(t, []Outcome{OutcomeProceed, OutcomePlanned, OutcomeDispatched, OutcomeAnswered}, outcomes(steps))
	assert.Equal(t, 1, h.llm.jsonCalls)
	assert.Equal(t, 1, h.llm.textCalls)
	assert.Equal(t, 1, h.lookups.total())
	assert.Equal(t, 1, h.lookups.calls[source.Clinical])

	require.NotNil(t, resp.Result)
	assert.Equal(t, "Two diabetes trials were found; one is recruiting.", resp.Result.FinalAnswer)
	require.Len(t, resp.Result.Visuals, 3)
	assert.Equal(t, visual.Table, resp.Result.Visuals[0].Type)
	assert.Equal(t, "Clinical Trials by Phase", resp.Result.Visuals[1].Title)

	require.Len(t, resp.Sources, 1)
	assert.Equal(t, SourceSummary{Source: source.Clinical, Records: 2, Summary: "Clinical Agent (local) found 2 trials for 'diabetes'"}, resp.Sources[0])

	assert.Contains(t, h.llm.lastPrompt(), "CLINICAL Data:\nClinical Agent (local) found 2 trials")
	assert.Contains(t, resp.MemoryStats.KeyTopics, "Show")

	stats, _ := h.memory.Stats("s1")
	assert.Equal(t, 2, stats.TotalMessages)

	require.Len(t, h.sink.stages, 4)
	assert.Equal(t, "gate", h.sink.stages[0].From)
	require.Len(t, h.sink.executions, 1)
	assert.Equal(t, []string{"clinical"}, h.sink.executions[0].Sources)
}

func TestEngine_EmptyPlan(t *testing.T) {
	h := newHarness(t)
	h.llm.plan = "I cannot help with that"
	var steps []Step

	resp, err := h.engine.Handle(context.Background(), Input{Query: "pharma outlook", SessionID: "s1"}, collect(&steps))
	require.NoError(t, err)

	assert.Equal(t, []Outcome{OutcomeProceed, OutcomeEmptyPlan, OutcomeDispatched, OutcomeAnswered}, outcomes(steps))
	assert.Equal(t, 0, h.lookups.total())
	assert.Empty(t, resp.Result.Visuals)
	assert.NotContains(t, h.llm.lastPrompt(), "Data:\n")
}

func TestEngine_SynthesisFailure(t *testing.T) {
	h := newHarness(t)
	h.llm.answerErr = errors.New("upstream 500")
	var steps []Step

	_, err := h.engine.Handle(context.Background(), Input{Query: "diabetes market", SessionID: "s1"}, collect(&steps))
	require.Error(t, err)
	assert.ErrorIs(t, err, synthesizer.ErrSynthesis)
	assert.Equal(t, OutcomeFailed, steps[len(steps)-1].Outcome)

	require.Len(t, h.sink.executions, 1)
	assert.Equal(t, "failed", h.sink.executions[0].Status)
	assert.Contains(t, h.sink.executions[0].Error, "upstream 500")

	stats, _ := h.memory.Stats("s1")
	assert.Equal(t, 1, stats.TotalMessages, "the user turn stays, no assistant turn is stored")
}

func TestEngine_PlanOnly(t *testing.T) {
	h := newHarness(t)
	var steps []Step

	resp, err := h.engine.Handle(context.Background(), Input{Query: "diabetes trials", SessionID: "s1", PlanOnly: true}, collect(&steps))
	require.NoError(t, err)

	assert.Nil(t, resp.Result)
	require.Len(t, resp.Plan, 1)
	assert.Equal(t, source.Clinical, resp.Plan[0].Source)
	assert.Equal(t, []Outcome{OutcomePlanOnly}, outcomes(steps))
	assert.Equal(t, 0, h.lookups.total())
	assert.Equal(t, 0, h.llm.textCalls)
}

func TestEngine_StepsFollowTransitionTable(t *testing.T) {
	tests := []struct {
		name  string
		in    Input
		start State
	}{
		{"short circuit", Input{Query: "thanks"}, StateGate},
		{"full run", Input{Query: "Show me clinical trials for diabetes"}, StateGate},
		{"plan only", Input{Query: "diabetes trials", PlanOnly: true}, StatePlan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			var steps []Step

			_, err := h.engine.Handle(context.Background(), tt.in, collect(&steps))
			require.NoError(t, err)
			require.NotEmpty(t, steps)

			assert.Equal(t, tt.start, steps[0].From)
			for i, step := range steps {
				to, err := Transition(step.From, step.Outcome)
				require.NoError(t, err)
				assert.Equal(t, to, step.To)
				if i > 0 {
					assert.Equal(t, steps[i-1].To, step.From, "steps chain")
				}
			}
			assert.Equal(t, StateDone, steps[len(steps)-1].To)
		})
	}
}

func TestEngine_Plan(t *testing.T) {
	h := newHarness(t)

	resp := h.engine.Plan(context.Background(), Input{Query: "diabetes trials"})
	assert.NotEmpty(t, resp.SessionID)
	require.Len(t, resp.Plan, 1)
	assert.Equal(t, "diabetes", resp.Plan[0].Query)

	_, found := h.memory.Stats(resp.SessionID)
	assert.False(t, found, "planning alone does not touch memory")

	h.llm.plan = "garbage"
	resp = h.engine.Plan(context.Background(), Input{Query: "diabetes trials"})
	assert.NotNil(t, resp.Plan)
	assert.Empty(t, resp.Plan)
}

func TestEngine_FollowUpUsesMemory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Handle(ctx, Input{Query: "Give me Metformin patents", SessionID: "s1"}, nil)
	require.NoError(t, err)

	_, err = h.engine.Handle(ctx, Input{Query: "metformin export volumes", SessionID: "s1"}, nil)
	require.NoError(t, err)

	var planPrompt string
	for _, p := range h.llm.prompts {
		if strings.Contains(p, `User Query: "metformin export volumes"`) {
			planPrompt = p
		}
	}
	require.NotEmpty(t, planPrompt)
	assert.Contains(t, planPrompt, "CONVERSATION CONTEXT")
	assert.Contains(t, planPrompt, "User: Give me Metformin patents")
	assert.Contains(t, planPrompt, "NOTE: This appears to be a follow-up question.")
	assert.Contains(t, planPrompt, "Key topics from conversation: Give, Metformin")
	assert.NotContains(t, planPrompt, "User: metformin export volumes", "the current query is not its own history")

	answerPrompt := h.llm.lastPrompt()
	assert.Contains(t, answerPrompt, "CONVERSATION HISTORY")

	// Another session shares nothing.
	_, err = h.engine.Handle(ctx, Input{Query: "metformin export volumes", SessionID: "s2"}, nil)
	require.NoError(t, err)
	assert.NotContains(t, h.llm.lastPrompt(), "CONVERSATION HISTORY")
}

func TestEngine_SessionKeyScopesMemory(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Handle(context.Background(), Input{Query: "hello", SessionID: "s1", SessionKey: "alice:s1"}, nil)
	require.NoError(t, err)

	_, found := h.memory.Stats("s1")
	assert.False(t, found)
	_, found = h.memory.Stats("alice:s1")
	assert.True(t, found)
}

func TestEngine_EventSinkFailureIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.sink.err = errors.New("nats down")

	resp, err := h.engine.Handle(context.Background(), Input{Query: "Show me clinical trials for diabetes"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
	assert.NotEmpty(t, resp.Result.FinalAnswer)
}

func TestEngine_ConcurrentSessions(t *testing.T) {
	h := newHarness(t)
	// Serialize the shared handle the way production wiring does.
	serialized := llm.Serialize(h.llm)
	h.engine.planner = planner.New(serialized, nil)
	h.engine.synthesizer = synthesizer.New(serialized)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.engine.Handle(context.Background(), Input{Query: "Show me clinical trials for diabetes", SessionID: string(rune('a' + i))}, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, h.memory.Len())
	assert.Equal(t, 10, h.lookups.total())
}
