//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aiox-platform/gloser/internal/app"
	"github.com/aiox-platform/gloser/internal/config"
	"github.com/aiox-platform/gloser/internal/llm"
)

const patentData = `[
  {"molecule": "Metformin", "patent_id": "US-7000001", "status": "Active", "expiry_date": "2027-05-01", "assignee": "Acme Pharma"},
  {"molecule": "Sitagliptin", "patent_id": "US-7326708", "status": "Active", "expiry_date": "2026-07-15", "assignee": "Merck"}
]`

const queriesPerMinute = 5

type TestEnv struct {
	App    *app.App
	Config *config.Config
	Server *httptest.Server
}

var (
	testEnv  *TestEnv
	teardown []func()
)

// TestMain shares one environment across the package and tears it down
// after the last test.
func TestMain(m *testing.M) {
	code := m.Run()
	for i := len(teardown) - 1; i >= 0; i-- {
		teardown[i]()
	}
	os.Exit(code)
}

func onTeardown(fn func()) {
	teardown = append(teardown, fn)
}

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) (string, int) {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("starting %s container: %v", req.Image, err)
	}
	onTeardown(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	p, _ := strconv.Atoi(mapped.Port())
	return host, p
}

// SetupTestEnv starts Postgres, Redis and NATS and serves a fully wired
// application against them. The language model is a canned completer.
func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	pgHost, pgPort := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "gloser_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432")

	redisHost, redisPort := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}, "6379")

	natsHost, natsPort := startContainer(t, testcontainers.ContainerRequest{
		Image:        "nats:2-alpine",
		ExposedPorts: []string{"4222/tcp"},
		Cmd:          []string{"--jetstream", "--store_dir", "/data"},
		WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
	}, "4222")

	dir, err := os.MkdirTemp("", "gloser-it-")
	if err != nil {
		t.Fatal(err)
	}
	onTeardown(func() { _ = os.RemoveAll(dir) })
	if err := os.WriteFile(filepath.Join(dir, "patent_data.json"), []byte(patentData), 0o644); err != nil {
		t.Fatal(err)
	}
	catalogPath := filepath.Join(dir, "sources.yaml")
	if err := os.WriteFile(catalogPath, []byte("sources:\n  - kind: patent\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		DB: config.DBConfig{
			Enabled: true, Host: pgHost, Port: pgPort,
			User: "test", Password: "test", Name: "gloser_test",
			SSLMode: "disable", MaxConns: 4,
		},
		Redis:     config.RedisConfig{Enabled: true, Host: redisHost, Port: redisPort, CacheTTL: time.Minute},
		NATS:      config.NATSConfig{Enabled: true, URL: fmt.Sprintf("nats://%s:%d", natsHost, natsPort)},
		Sources:   config.SourcesConfig{CatalogPath: catalogPath, DataDir: dir, Timeout: 5 * time.Second},
		Pipeline:  config.PipelineConfig{DedupPolicy: "first"},
		Memory:    config.MemoryConfig{SessionIdleTTL: time.Hour, SweepInterval: time.Minute},
		RateLimit: config.RateLimitConfig{QueriesPerMinute: queriesPerMinute},
		Auth:      config.AuthConfig{Issuer: "gloser"},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	a, err := app.New(ctx, cfg, app.WithCompleter(cannedCompleter()))
	if err != nil {
		cancel()
		t.Fatalf("building app: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Background(ctx)
	}()

	server := httptest.NewServer(a.Router)
	onTeardown(func() {
		server.Close()
		cancel()
		<-done
		a.Close()
	})

	testEnv = &TestEnv{App: a, Config: cfg, Server: server}
	return testEnv
}

func cannedCompleter() llm.Completer {
	return llm.CompleterFunc(func(_ context.Context, prompt string, jsonMode bool) (string, error) {
		if jsonMode {
			return `{"steps":[{"agent":"patent","query":"metformin"}]}`, nil
		}
		return "Metformin is protected until 2027.", nil
	})
}

// Helper functions

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
