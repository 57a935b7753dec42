package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	LLM       LLMConfig
	Sources   SourcesConfig
	Pipeline  PipelineConfig
	Memory    MemoryConfig
	RateLimit RateLimitConfig
	Auth      AuthConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DBConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL time.Duration
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	Enabled bool
	URL     string
}

// LLMConfig selects the language-model backend. Provider is "openai" (also
// used for Ollama and other OpenAI-compatible servers) or "anthropic".
type LLMConfig struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
	Serialize bool
}

// SourcesConfig locates the catalog and datasets. WebPharmaContext appends
// pharmaceutical terms to web queries that carry none.
type SourcesConfig struct {
	CatalogPath      string
	DataDir          string
	Timeout          time.Duration
	ClinicalAPI      bool
	ClinicalBaseURL  string
	WebSearchURL     string
	WebPharmaContext bool
	WatchData        bool
}

// PipelineConfig tunes the orchestration engine. DedupPolicy decides which
// query a source receives when the plan names it more than once.
type PipelineConfig struct {
	DedupPolicy string
}

type MemoryConfig struct {
	SessionIdleTTL time.Duration
	SweepInterval  time.Duration
}

type RateLimitConfig struct {
	QueriesPerMinute int
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != ""
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// envKey maps SOURCES_DATA_DIR to sources.data.dir.
func envKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", "."))
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.ParserEnv("", ".", envKey))

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Enabled:  k.Bool("db.enabled"),
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Enabled:  k.Bool("redis.enabled"),
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			Enabled: k.Bool("nats.enabled"),
			URL:     k.String("nats.url"),
		},
		LLM: LLMConfig{
			Provider:  strings.ToLower(k.String("llm.provider")),
			Model:     k.String("llm.model"),
			BaseURL:   k.String("llm.base.url"),
			APIKey:    k.String("llm.api.key"),
			MaxTokens: k.Int("llm.max.tokens"),
			Serialize: k.String("llm.serialize") != "false",
		},
		Sources: SourcesConfig{
			CatalogPath:      k.String("sources.catalog"),
			DataDir:          k.String("sources.data.dir"),
			ClinicalAPI:      k.String("sources.clinical.api") != "false",
			ClinicalBaseURL:  k.String("sources.clinical.base.url"),
			WebSearchURL:     k.String("sources.web.search.url"),
			WebPharmaContext: k.String("sources.web.pharma.context") == "true",
			WatchData:        k.String("sources.watch.data") != "false",
		},
		Pipeline: PipelineConfig{
			DedupPolicy: strings.ToLower(k.String("pipeline.dedup.policy")),
		},
		RateLimit: RateLimitConfig{
			QueriesPerMinute: k.Int("ratelimit.queries.per.minute"),
		},
		Auth: AuthConfig{
			JWTSecret: k.String("auth.jwt.secret"),
			Issuer:    k.String("auth.jwt.issuer"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	if origins := k.String("cors.allowed.origins"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, o)
			}
		}
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "gloser"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "gloser"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 10
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama3.2"
	}
	if cfg.LLM.BaseURL == "" && cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
		// No key: assume a local Ollama exposing the OpenAI-compatible API.
		cfg.LLM.BaseURL = "http://localhost:11434/v1/"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 2048
	}
	if cfg.Sources.CatalogPath == "" {
		cfg.Sources.CatalogPath = "configs/sources.yaml"
	}
	if cfg.Sources.DataDir == "" {
		cfg.Sources.DataDir = "data"
	}
	if cfg.Sources.ClinicalBaseURL == "" {
		cfg.Sources.ClinicalBaseURL = "https://clinicaltrials.gov/api/v2/studies"
	}
	if cfg.Sources.WebSearchURL == "" {
		cfg.Sources.WebSearchURL = "https://html.duckduckgo.com/html/"
	}
	if cfg.Pipeline.DedupPolicy == "" {
		cfg.Pipeline.DedupPolicy = "first"
	}
	if cfg.RateLimit.QueriesPerMinute == 0 {
		cfg.RateLimit.QueriesPerMinute = 30
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "gloser"
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"server.read.timeout", "15s", &cfg.Server.ReadTimeout},
		{"server.write.timeout", "180s", &cfg.Server.WriteTimeout},
		{"server.shutdown.timeout", "30s", &cfg.Server.ShutdownTimeout},
		{"redis.cache.ttl", "10m", &cfg.Redis.CacheTTL},
		{"llm.timeout", "120s", &cfg.LLM.Timeout},
		{"sources.timeout", "20s", &cfg.Sources.Timeout},
		{"memory.session.idle.ttl", "2h", &cfg.Memory.SessionIdleTTL},
		{"memory.sweep.interval", "5m", &cfg.Memory.SweepInterval},
	}
	for _, d := range durations {
		raw := k.String(d.key)
		if raw == "" {
			raw = d.def
		}
		*d.dest, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", d.key, err)
		}
	}

	return cfg, nil
}
