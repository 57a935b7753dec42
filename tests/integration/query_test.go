//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadiness(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, http.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := ParseResponse(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, "healthy", data["status"])
	for _, name := range []string{"sources", "redis", "nats", "postgres"} {
		assert.Equal(t, "healthy", data[name], name)
	}
}

func TestQueryIsAudited(t *testing.T) {
	env := SetupTestEnv(t)
	headers := map[string]string{"X-Forwarded-For": "10.0.0.1"}

	resp := DoRequest(t, env, http.MethodPost, "/api/v1/query",
		map[string]string{"query": "When does the Metformin patent expire?", "session_id": "it-audit"}, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := ParseResponse(t, resp)
	result := body["data"].(map[string]any)["result"].(map[string]any)
	assert.Equal(t, "Metformin is protected until 2027.", result["final_answer"])

	// The execution travels NATS -> audit consumer -> Postgres.
	var listed map[string]any
	require.Eventually(t, func() bool {
		resp := DoRequest(t, env, http.MethodGet, "/api/v1/sessions/it-audit/executions", nil, headers)
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return false
		}
		listed = ParseResponse(t, resp)
		return listed["total_count"] == float64(1)
	}, 20*time.Second, 200*time.Millisecond)

	rows := listed["data"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "ok", row["status"])
	assert.Equal(t, "it-audit", row["session_id"])
	assert.Equal(t, []any{"patent"}, row["sources"])
	assert.Equal(t, false, row["short_circuit"])

	t.Run("status filter", func(t *testing.T) {
		resp := DoRequest(t, env, http.MethodGet, "/api/v1/sessions/it-audit/executions?status=failed", nil, headers)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(0), ParseResponse(t, resp)["total_count"])
	})

	t.Run("other sessions see nothing", func(t *testing.T) {
		resp := DoRequest(t, env, http.MethodGet, "/api/v1/sessions/someone-else/executions", nil, headers)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(0), ParseResponse(t, resp)["total_count"])
	})
}

func TestLookupsAreCached(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, http.MethodPost, "/api/v1/query",
		map[string]string{"query": "Metformin patent landscape", "session_id": "it-cache"},
		map[string]string{"X-Forwarded-For": "10.0.0.2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	client := goredis.NewClient(&goredis.Options{Addr: env.Config.Redis.Addr()})
	t.Cleanup(func() { client.Close() })

	keys, err := client.Keys(context.Background(), "lookup:patent:*").Result()
	require.NoError(t, err)
	require.NotEmpty(t, keys)

	ttl, err := client.TTL(context.Background(), keys[0]).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, env.Config.Redis.CacheTTL)
}

func TestQueryRateLimit(t *testing.T) {
	env := SetupTestEnv(t)
	headers := map[string]string{"X-Forwarded-For": "10.0.0.99"}
	body := map[string]string{"query": "hello", "session_id": "it-limit"}

	for i := 0; i < queriesPerMinute; i++ {
		resp := DoRequest(t, env, http.MethodPost, "/api/v1/query", body, headers)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
	}

	resp := DoRequest(t, env, http.MethodPost, "/api/v1/query", body, headers)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	// Other callers keep their own budget.
	resp = DoRequest(t, env, http.MethodPost, "/api/v1/query", body, map[string]string{"X-Forwarded-For": "10.0.0.100"})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
