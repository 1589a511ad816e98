package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	Auth      AuthConfig      `yaml:"auth"`
	LLM       LLMConfig       `yaml:"llm"`
	Storage   StorageConfig   `yaml:"storage"`
	RAG       RAGConfig       `yaml:"rag"`
	Upload    UploadConfig    `yaml:"upload"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

// StoreConfig picks the relational + vector backend.
type StoreConfig struct {
	Backend    string `yaml:"backend"` // "postgres" or "sqlite"
	SQLitePath string `yaml:"sqlite_path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	Backend     string `yaml:"backend"` // "asynq" or "inprocess"
	Concurrency int    `yaml:"concurrency"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type LLMConfig struct {
	OpenAIKey        string `yaml:"openai_key"`
	OpenAIBaseURL    string `yaml:"openai_base_url"`
	AnthropicKey     string `yaml:"anthropic_key"`
	OllamaURL        string `yaml:"ollama_url"`
	DefaultProvider  string `yaml:"default_provider"`
	DefaultModel     string `yaml:"default_model"`
	FallbackProvider string `yaml:"fallback_provider"`
	MaxRetries       int    `yaml:"max_retries"`

	EmbeddingProvider   string `yaml:"embedding_provider"`
	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend"` // "local" or "supabase"
	LocalDir    string `yaml:"local_dir"`
	SupabaseURL string `yaml:"supabase_url"`
	SupabaseKey string `yaml:"supabase_key"`
	Bucket      string `yaml:"bucket"`
}

type RAGConfig struct {
	MaxTokens         int           `yaml:"max_tokens"`
	OverlapTokens     int           `yaml:"overlap_tokens"`
	TopK              int           `yaml:"top_k"`
	MaxContextTokens  int           `yaml:"max_context_tokens"`
	ExcerptLength     int           `yaml:"excerpt_length"`
	EmbedConcurrency  int           `yaml:"embed_concurrency"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"*"},
			RequestTimeout: 2 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
		Database: DatabaseConfig{
			MaxConns:        20,
			MinConns:        5,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
			ConnectTimeout:  10 * time.Second,
			MigrationsPath:  "migrations/postgres",
		},
		Store: StoreConfig{
			Backend:    "postgres",
			SQLitePath: "data/docassist.db",
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Queue: QueueConfig{
			Backend:     "asynq",
			Concurrency: 4,
		},
		LLM: LLMConfig{
			OllamaURL:           "http://localhost:11434",
			DefaultProvider:     "openai",
			DefaultModel:        "gpt-4o-mini",
			MaxRetries:          3,
			EmbeddingProvider:   "openai",
			EmbeddingModel:      "text-embedding-3-small",
			EmbeddingDimensions: 1536,
			Temperature:         0.2,
			MaxTokens:           1024,
		},
		Storage: StorageConfig{
			Backend:  "local",
			LocalDir: "data/uploads",
			Bucket:   "documents",
		},
		RAG: RAGConfig{
			MaxTokens:         500,
			OverlapTokens:     50,
			TopK:              5,
			MaxContextTokens:  3000,
			ExcerptLength:     200,
			EmbedConcurrency:  4,
			ProcessingTimeout: 30 * time.Minute,
			ReconcileInterval: 5 * time.Minute,
		},
		Upload:    UploadConfig{MaxBytes: 50 << 20},
		RateLimit: RateLimitConfig{RequestsPerSecond: 10, Burst: 20},
	}
}

// Load builds the config in three layers: defaults, then the YAML file named
// by CONFIG_FILE (if any), then environment variables. A .env file in the
// working directory is read first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	ints := []struct {
		key string
		dst *int
	}{
		{"SERVER_PORT", &c.Server.Port},
		{"DB_MAX_CONNS", &c.Database.MaxConns},
		{"DB_MIN_CONNS", &c.Database.MinConns},
		{"REDIS_DB", &c.Redis.DB},
		{"QUEUE_CONCURRENCY", &c.Queue.Concurrency},
		{"LLM_MAX_RETRIES", &c.LLM.MaxRetries},
		{"LLM_MAX_TOKENS", &c.LLM.MaxTokens},
		{"EMBEDDING_DIMENSIONS", &c.LLM.EmbeddingDimensions},
		{"RAG_MAX_TOKENS", &c.RAG.MaxTokens},
		{"RAG_OVERLAP_TOKENS", &c.RAG.OverlapTokens},
		{"RAG_TOP_K", &c.RAG.TopK},
		{"RAG_MAX_CONTEXT_TOKENS", &c.RAG.MaxContextTokens},
		{"RAG_EXCERPT_LENGTH", &c.RAG.ExcerptLength},
		{"RAG_EMBED_CONCURRENCY", &c.RAG.EmbedConcurrency},
		{"RATE_LIMIT_BURST", &c.RateLimit.Burst},
	}
	for _, v := range ints {
		if *v.dst, err = getEnvInt(v.key, *v.dst); err != nil {
			return fmt.Errorf("invalid %s: %w", v.key, err)
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SERVER_REQUEST_TIMEOUT", &c.Server.RequestTimeout},
		{"DB_MAX_CONN_LIFETIME", &c.Database.MaxConnLifetime},
		{"DB_MAX_CONN_IDLE_TIME", &c.Database.MaxConnIdleTime},
		{"DB_CONNECT_TIMEOUT", &c.Database.ConnectTimeout},
		{"RAG_PROCESSING_TIMEOUT", &c.RAG.ProcessingTimeout},
		{"RAG_RECONCILE_INTERVAL", &c.RAG.ReconcileInterval},
	}
	for _, v := range durations {
		if *v.dst, err = getEnvDuration(v.key, *v.dst); err != nil {
			return fmt.Errorf("invalid %s: %w", v.key, err)
		}
	}

	if c.Upload.MaxBytes, err = getEnvInt64("UPLOAD_MAX_BYTES", c.Upload.MaxBytes); err != nil {
		return fmt.Errorf("invalid UPLOAD_MAX_BYTES: %w", err)
	}
	if c.LLM.Temperature, err = getEnvFloat("LLM_TEMPERATURE", c.LLM.Temperature); err != nil {
		return fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
	}
	if c.RateLimit.RequestsPerSecond, err = getEnvFloat("RATE_LIMIT_RPS", c.RateLimit.RequestsPerSecond); err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.MigrationsPath = getEnv("MIGRATIONS_PATH", c.Database.MigrationsPath)
	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.SQLitePath = getEnv("SQLITE_PATH", c.Store.SQLitePath)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Queue.Backend = getEnv("QUEUE_BACKEND", c.Queue.Backend)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)

	c.LLM.OpenAIKey = getEnv("OPENAI_API_KEY", c.LLM.OpenAIKey)
	c.LLM.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.LLM.OpenAIBaseURL)
	c.LLM.AnthropicKey = getEnv("ANTHROPIC_API_KEY", c.LLM.AnthropicKey)
	c.LLM.OllamaURL = getEnv("OLLAMA_URL", c.LLM.OllamaURL)
	c.LLM.DefaultProvider = getEnv("LLM_DEFAULT_PROVIDER", c.LLM.DefaultProvider)
	c.LLM.DefaultModel = getEnv("LLM_DEFAULT_MODEL", c.LLM.DefaultModel)
	c.LLM.FallbackProvider = getEnv("LLM_FALLBACK_PROVIDER", c.LLM.FallbackProvider)
	c.LLM.EmbeddingProvider = getEnv("EMBEDDING_PROVIDER", c.LLM.EmbeddingProvider)
	c.LLM.EmbeddingModel = getEnv("EMBEDDING_MODEL", c.LLM.EmbeddingModel)

	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.LocalDir = getEnv("STORAGE_LOCAL_DIR", c.Storage.LocalDir)
	c.Storage.SupabaseURL = getEnv("SUPABASE_URL", c.Storage.SupabaseURL)
	c.Storage.SupabaseKey = getEnv("SUPABASE_SERVICE_KEY", c.Storage.SupabaseKey)
	c.Storage.Bucket = getEnv("STORAGE_BUCKET", c.Storage.Bucket)

	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Store.Backend == "postgres" && c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Storage.Backend == "supabase" {
		if c.Storage.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.Storage.SupabaseKey == "" {
			missing = append(missing, "SUPABASE_SERVICE_KEY")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}

	var invalid []string
	if !oneOf(c.Store.Backend, "postgres", "sqlite") {
		invalid = append(invalid, fmt.Sprintf("store backend %q", c.Store.Backend))
	}
	if !oneOf(c.Queue.Backend, "asynq", "inprocess") {
		invalid = append(invalid, fmt.Sprintf("queue backend %q", c.Queue.Backend))
	}
	if !oneOf(c.Storage.Backend, "local", "supabase") {
		invalid = append(invalid, fmt.Sprintf("storage backend %q", c.Storage.Backend))
	}
	if c.RAG.MaxTokens <= 0 {
		invalid = append(invalid, "RAG_MAX_TOKENS must be positive")
	}
	if c.RAG.OverlapTokens < 0 {
		invalid = append(invalid, "RAG_OVERLAP_TOKENS must not be negative")
	}
	if c.RAG.TopK <= 0 {
		invalid = append(invalid, "RAG_TOP_K must be positive")
	}
	if c.RAG.EmbedConcurrency <= 0 {
		invalid = append(invalid, "RAG_EMBED_CONCURRENCY must be positive")
	}
	if c.Upload.MaxBytes <= 0 {
		invalid = append(invalid, "UPLOAD_MAX_BYTES must be positive")
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(invalid, "; "))
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
