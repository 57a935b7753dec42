package synthesizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/gloser/internal/intent"
	"github.com/aiox-platform/gloser/internal/llm"
	"github.com/aiox-platform/gloser/internal/query"
	"github.com/aiox-platform/gloser/internal/source"
	"github.com/aiox-platform/gloser/internal/visual"
)

func TestSynthesize_ShortCircuit(t *testing.T) {
	called := false
	s := New(llm.CompleterFunc(func(context.Context, string, bool) (string, error) {
		called = true
		return "", nil
	}))

	d := intent.Classify("hi")
	ans, err := s.Synthesize(context.Background(), query.Request{Query: "hi"}, d, nil)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, intent.GreetingText, ans.Text)
	assert.NotNil(t, ans.Visuals)
	assert.Empty(t, ans.Visuals)
}

func TestSynthesize_Answer(t *testing.T) {
	var prompt string
	var jsonMode bool
	s := New(llm.CompleterFunc(func(_ context.Context, p string, j bool) (string, error) {
		prompt, jsonMode = p, j
		return "There are 2 recruiting diabetes trials.", nil
	}))

	trials := source.NewResult(source.Clinical, []source.Fields{
		{"NCTId": "NCT1", "Phase": "PHASE3", "OverallStatus": "RECRUITING"},
		{"NCTId": "NCT2", "Phase": "PHASE2", "OverallStatus": "RECRUITING"},
	}, "Clinical Agent (API) returned 2 records for 'diabetes' (country=None).")

	req := query.Request{Query: "Show me clinical trials for diabetes"}
	ans, err := s.Synthesize(context.Background(), req, intent.Classify(req.Query), []source.Result{trials})
	require.NoError(t, err)

	assert.False(t, jsonMode)
	assert.Equal(t, "There are 2 recruiting diabetes trials.", ans.Text)
	assert.Contains(t, prompt, "User Query: Show me clinical trials for diabetes")
	assert.Contains(t, prompt, "Answer the user query based ONLY on the provided context.")
	assert.Contains(t, prompt, "CLINICAL Data:\nClinical Agent (API) returned 2 records")
	assert.NotContains(t, prompt, "CONVERSATION HISTORY")

	require.Len(t, ans.Visuals, 3)
	assert.Equal(t, visual.Table, ans.Visuals[0].Type)
	assert.Equal(t, "Clinical Trials by Phase", ans.Visuals[1].Title)
	assert.Equal(t, "Clinical Trials by Status", ans.Visuals[2].Title)
}

func TestSynthesize_CompletionFailure(t *testing.T) {
	s := New(llm.CompleterFunc(func(context.Context, string, bool) (string, error) {
		return "", errors.New("model offline")
	}))

	_, err := s.Synthesize(context.Background(), query.Request{Query: "oncology market size"}, intent.Decision{Category: intent.Domain}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSynthesis)
	assert.Contains(t, err.Error(), "model offline")
}

func TestSynthesize_VisualizationPanicDegrades(t *testing.T) {
	s := New(llm.CompleterFunc(func(context.Context, string, bool) (string, error) {
		return "answer", nil
	}))
	s.visualize = func([]source.Result) []visual.Descriptor { panic("bad record") }

	res := source.NewResult(source.Patent, []source.Fields{{"molecule": "X"}}, "ok")
	ans, err := s.Synthesize(context.Background(), query.Request{Query: "patents for X"}, intent.Decision{}, []source.Result{res})
	require.NoError(t, err)
	assert.Equal(t, "answer", ans.Text)
	assert.Empty(t, ans.Visuals)
}

func TestPrompt_Memory(t *testing.T) {
	s := New(nil)
	out := s.Prompt(query.Request{
		Query:         "and its patents?",
		MemoryContext: "[Key topics discussed: Metformin]",
		IsFollowUp:    true,
	}, nil)

	assert.Contains(t, out, "CONVERSATION HISTORY (for context continuity):\n[Key topics discussed: Metformin]\n---")
	assert.Contains(t, out, "NOTE: This is a follow-up question.")
	assert.Contains(t, out, "Provide a detailed answer and properly mention stats every time.")
}

func TestBuildContext(t *testing.T) {
	results := []source.Result{
		source.NewResult(source.Web, []source.Fields{{"title": "x"}}, "Web Agent found 1 search results for 'q'"),
		source.NewResult(source.Patent, []source.Fields{{"molecule": "Metformin"}}, ""),
		source.Degraded(source.Clinical, errors.New("clinical lookup timed out")),
	}

	assert.Equal(t,
		"PATENT Data:\n[{\"molecule\":\"Metformin\"}]\n\n"+
			"CLINICAL Data:\nError: clinical lookup timed out\n\n"+
			"WEB Data:\nWeb Agent found 1 search results for 'q'",
		BuildContext(results))
	assert.Equal(t, "", BuildContext(nil))
}
