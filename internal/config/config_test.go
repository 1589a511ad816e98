package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RAG_TOP_K", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.RAG.MaxTokens)
	assert.Equal(t, 50, cfg.RAG.OverlapTokens)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 200, cfg.RAG.ExcerptLength)
	assert.Equal(t, 30*time.Minute, cfg.RAG.ProcessingTimeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: sqlite
  sqlite_path: /tmp/x.db
rag:
  top_k: 8
  max_tokens: 300
  processing_timeout: 10m
queue:
  backend: inprocess
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RAG_TOP_K", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/x.db", cfg.Store.SQLitePath)
	assert.Equal(t, 300, cfg.RAG.MaxTokens)
	assert.Equal(t, 3, cfg.RAG.TopK, "env wins over file")
	assert.Equal(t, 10*time.Minute, cfg.RAG.ProcessingTimeout)
	assert.Equal(t, 50, cfg.RAG.OverlapTokens, "untouched fields keep defaults")
	assert.Equal(t, "inprocess", cfg.Queue.Backend)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RAG_MAX_TOKENS", "many")

	_, err := Load()
	assert.ErrorContains(t, err, "RAG_MAX_TOKENS")
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Database.URL = "postgres://localhost/docassist"
		cfg.Auth.JWTSecret = "secret"
		return cfg
	}

	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"missing database url": func(c *Config) { c.Database.URL = "" },
		"missing jwt secret":   func(c *Config) { c.Auth.JWTSecret = "" },
		"unknown store":        func(c *Config) { c.Store.Backend = "mongo" },
		"unknown queue":        func(c *Config) { c.Queue.Backend = "kafka" },
		"zero top k":           func(c *Config) { c.RAG.TopK = 0 },
		"negative overlap":     func(c *Config) { c.RAG.OverlapTokens = -1 },
		"supabase without key": func(c *Config) { c.Storage.Backend = "supabase" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("sqlite needs no database url", func(t *testing.T) {
		cfg := valid()
		cfg.Database.URL = ""
		cfg.Store.Backend = "sqlite"
		assert.NoError(t, cfg.Validate())
	})
}
