package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Server.WriteTimeout != 180*time.Second {
		t.Errorf("Server.WriteTimeout = %v, want 180s", cfg.Server.WriteTimeout)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.BaseURL != "http://localhost:11434/v1/" {
		t.Errorf("LLM = %+v, want local openai-compatible defaults", cfg.LLM)
	}
	if !cfg.LLM.Serialize {
		t.Error("LLM.Serialize should default to true")
	}
	if cfg.Pipeline.DedupPolicy != "first" {
		t.Errorf("DedupPolicy = %q, want first", cfg.Pipeline.DedupPolicy)
	}
	if cfg.Memory.SessionIdleTTL != 2*time.Hour || cfg.Memory.SweepInterval != 5*time.Minute {
		t.Errorf("Memory = %+v, want 2h/5m", cfg.Memory)
	}
	if cfg.RateLimit.QueriesPerMinute != 30 {
		t.Errorf("QueriesPerMinute = %d, want 30", cfg.RateLimit.QueriesPerMinute)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"*"}) {
		t.Errorf("AllowedOrigins = %v, want [*]", cfg.CORS.AllowedOrigins)
	}
	if cfg.Redis.Enabled || cfg.NATS.Enabled || cfg.DB.Enabled {
		t.Error("backends should be disabled by default")
	}
	if cfg.Sources.WebPharmaContext {
		t.Error("Sources.WebPharmaContext should default to false")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LLM_PROVIDER", "Anthropic")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("LLM_SERIALIZE", "false")
	t.Setenv("PIPELINE_DEDUP_POLICY", "LAST")
	t.Setenv("MEMORY_SESSION_IDLE_TTL", "30m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SOURCES_WEB_PHARMA_CONTEXT", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.BaseURL != "" {
		t.Errorf("LLM = %+v, want anthropic without base URL", cfg.LLM)
	}
	if cfg.LLM.Serialize {
		t.Error("LLM.Serialize should be false")
	}
	if cfg.Pipeline.DedupPolicy != "last" {
		t.Errorf("DedupPolicy = %q, want last", cfg.Pipeline.DedupPolicy)
	}
	if cfg.Memory.SessionIdleTTL != 30*time.Minute {
		t.Errorf("SessionIdleTTL = %v, want 30m", cfg.Memory.SessionIdleTTL)
	}
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, want) {
		t.Errorf("AllowedOrigins = %v, want %v", cfg.CORS.AllowedOrigins, want)
	}
	if !cfg.Sources.WebPharmaContext {
		t.Error("Sources.WebPharmaContext should be true")
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	env := "SOURCES_DATA_DIR=/srv/gloser/data\nREDIS_ENABLED=true\nREDIS_PORT=6380\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REDIS_PORT", "6381")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Sources.DataDir != "/srv/gloser/data" {
		t.Errorf("DataDir = %q, want /srv/gloser/data", cfg.Sources.DataDir)
	}
	if !cfg.Redis.Enabled {
		t.Error("Redis should be enabled from .env")
	}
	if cfg.Redis.Port != 6381 {
		t.Errorf("Redis.Port = %d, want the environment to win over .env", cfg.Redis.Port)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LLM_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an unparseable duration")
	}
}
