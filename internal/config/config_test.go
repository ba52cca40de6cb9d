package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ARCANE_DB_DIR", "ARCANE_OLLAMA_URL", "ARCANE_EMBEDDING_MODEL", "ARCANE_MODEL_PATH", "ARCANE_LOG_LEVEL", "ARCANE_ENCRYPTION_KEY"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "chromadb", cfg.DBDir)
	assert.Equal(t, 1000, cfg.Chunk.Size)
	assert.Equal(t, 200, cfg.Chunk.Overlap)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.Embedding.Model)
	assert.Equal(t, []string{"</s>", "<|eot_id|>"}, cfg.LLM.Stop)
}

func TestLoadConfigPartialFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "arcane.yaml")
	data := []byte(`
db_dir: /var/lib/arcane
chunk:
  size: 800
  overlap: 100
llm:
  model_path: /models/gemma.gguf
  temperature: 0.7
retrieval:
  k: 8
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/arcane", cfg.DBDir)
	assert.Equal(t, 800, cfg.Chunk.Size)
	assert.Equal(t, 100, cfg.Chunk.Overlap)
	assert.Equal(t, "/models/gemma.gguf", cfg.LLM.ModelPath)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 8, cfg.Retrieval.K)
	// untouched sections keep their defaults
	assert.Equal(t, ProviderLlamaCpp, cfg.LLM.Provider)
	assert.Equal(t, 4096, cfg.LLM.NCtx)
	assert.Equal(t, ProviderOllama, cfg.Embedding.Provider)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARCANE_DB_DIR", "/tmp/arcane-db")
	t.Setenv("ARCANE_OLLAMA_URL", "http://gpu-box:11434")
	t.Setenv("ARCANE_MODEL_PATH", "/models/llama.gguf")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/arcane-db", cfg.DBDir)
	assert.Equal(t, "http://gpu-box:11434", cfg.Embedding.BaseURL)
	assert.Equal(t, "http://gpu-box:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "/models/llama.gguf", cfg.LLM.ModelPath)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk: [unterminated"), 0o644))
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"overlap equals size", func(c *Config) { c.Chunk.Overlap = c.Chunk.Size }, "chunk overlap"},
		{"negative overlap", func(c *Config) { c.Chunk.Overlap = -1 }, "chunk overlap"},
		{"zero k", func(c *Config) { c.Retrieval.K = 0 }, "k must be positive"},
		{"bad embedding provider", func(c *Config) { c.Embedding.Provider = "sentence-transformers" }, "unknown embedding provider"},
		{"bad llm provider", func(c *Config) { c.LLM.Provider = "vllm" }, "unknown llm provider"},
		{"top_p out of range", func(c *Config) { c.LLM.TopP = 1.5 }, "top_p"},
		{"no workers", func(c *Config) { c.Ingest.Workers = 0 }, "workers"},
		{"ollama llm without model", func(c *Config) { c.LLM.Provider = ProviderOllama }, "ollama_model"},
		{"short encryption key", func(c *Config) { c.EncryptionKey = "secret" }, "encryption_key"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
