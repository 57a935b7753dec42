package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/gloser/internal/app"
	"github.com/aiox-platform/gloser/internal/config"
	"github.com/aiox-platform/gloser/internal/intent"
	"github.com/aiox-platform/gloser/internal/llm"
)

func testBuilder(t *testing.T) Builder {
	t.Helper()
	dir := t.TempDir()
	data := `[{"molecule": "Metformin", "patent_id": "US-7000001", "status": "Active", "expiry_date": "2027-05-01", "assignee": "Acme Pharma"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "patent_data.json"), []byte(data), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sources.yaml"), []byte("sources:\n  - kind: patent\n"), 0o644))

	cfg := &config.Config{
		Sources:  config.SourcesConfig{CatalogPath: filepath.Join(dir, "sources.yaml"), DataDir: dir, Timeout: 5 * time.Second},
		Pipeline: config.PipelineConfig{DedupPolicy: "first"},
	}
	completer := llm.CompleterFunc(func(_ context.Context, prompt string, jsonMode bool) (string, error) {
		if jsonMode {
			return `{"steps":[{"agent":"patent","query":"metformin"}]}`, nil
		}
		return "Metformin is protected until 2027.", nil
	})

	return func(ctx context.Context) (*app.App, error) {
		return app.New(ctx, cfg, app.WithCompleter(completer), app.WithoutBackends())
	}
}

func executeCLI(t *testing.T, build Builder, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	cmd := NewRootCmd(build)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestGate(t *testing.T) {
	stdout, _, err := executeCLI(t, nil, "", "gate", "hello")
	require.NoError(t, err)
	assert.Equal(t, "greeting: short-circuit\n"+intent.GreetingText+"\n", stdout)

	stdout, _, err = executeCLI(t, nil, "", "gate", "metformin", "patents")
	require.NoError(t, err)
	assert.Equal(t, "domain: runs the pipeline\n", stdout)
}

func TestGateJSON(t *testing.T) {
	stdout, _, err := executeCLI(t, nil, "", "gate", "--json", "thanks")
	require.NoError(t, err)

	var d intent.Decision
	require.NoError(t, json.Unmarshal([]byte(stdout), &d))
	assert.True(t, d.ShortCircuit)
	assert.Equal(t, intent.Thanks, d.Category)
}

func TestGateRequiresText(t *testing.T) {
	_, _, err := executeCLI(t, nil, "", "gate")
	assert.Error(t, err)
}

func TestPlan(t *testing.T) {
	stdout, _, err := executeCLI(t, testBuilder(t), "", "plan", "metformin", "patent", "expiry")
	require.NoError(t, err)
	assert.Equal(t, "1. PATENT: metformin\n", stdout)
}

func TestQuery(t *testing.T) {
	stdout, _, err := executeCLI(t, testBuilder(t), "", "query", "--session", "cli-1", "When", "does", "the", "Metformin", "patent", "expire?")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Metformin is protected until 2027.\n")
	assert.Contains(t, stdout, "  - PATENT (1 records): Patent Agent found 1 patents matching 'metformin'.\n")
	assert.Contains(t, stdout, "Session: cli-1\n")
}

func TestQueryJSON(t *testing.T) {
	stdout, _, err := executeCLI(t, testBuilder(t), "", "query", "--json", "hi")
	require.NoError(t, err)

	var resp struct {
		Query     string `json:"query"`
		SessionID string `json:"session_id"`
		Result    struct {
			FinalAnswer string `json:"final_answer"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "hi", resp.Query)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, intent.GreetingText, resp.Result.FinalAnswer)
}

func TestRepl(t *testing.T) {
	input := strings.Join([]string{
		"/stats",
		"Give me Metformin patents",
		"/stats",
		"/clear",
		"/stats",
		"/exit",
		"never reached",
	}, "\n")

	stdout, _, err := executeCLI(t, testBuilder(t), input, "repl", "--session", "r1")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Gloser session r1\n")
	assert.Equal(t, 2, strings.Count(stdout, "nothing remembered yet"))
	assert.Contains(t, stdout, "Metformin is protected until 2027.\n")
	assert.Contains(t, stdout, "exchanges: 1, messages: 2, summary: false\n")
	assert.Contains(t, stdout, "conversation cleared\n")
	assert.NotContains(t, stdout, "Session: r1")
}

func TestReplEndsAtEOF(t *testing.T) {
	stdout, _, err := executeCLI(t, testBuilder(t), "hello\n", "repl")
	require.NoError(t, err)
	assert.Contains(t, stdout, intent.GreetingText)
}
