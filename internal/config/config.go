package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"arcane-scribe/internal/models"
)

const (
	DefaultConfigFile     = "arcane.yaml"
	DefaultDBDir          = "chromadb"
	DefaultEmbeddingModel = "BAAI/bge-small-en-v1.5"
	DefaultOllamaURL      = "http://localhost:11434"
	DefaultLlamaBinary    = "llama-cli"

	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

const (
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderLlamaCpp = "llamacpp"
)

type ChunkConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	BatchSize int    `yaml:"batch_size"`
	CacheSize int    `yaml:"cache_size"`
	Retries   int    `yaml:"retries"`
}

type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	ModelPath   string   `yaml:"model_path"`
	Binary      string   `yaml:"binary"`
	ExtraArgs   []string `yaml:"extra_args"`
	NCtx        int      `yaml:"n_ctx"`
	NGPULayers  int      `yaml:"n_gpu_layers"`
	Threads     int      `yaml:"n_threads"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature float64  `yaml:"temperature"`
	TopP        float64  `yaml:"top_p"`
	Stop        []string `yaml:"stop"`
	OllamaModel string   `yaml:"ollama_model"`
	BaseURL     string   `yaml:"base_url"`
}

type RetrievalConfig struct {
	K int `yaml:"k"`
}

type IngestConfig struct {
	Workers int `yaml:"workers"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type Config struct {
	DBDir     string          `yaml:"db_dir"`
	Chunk     ChunkConfig     `yaml:"chunk"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Log       LogConfig       `yaml:"log"`
	// EncryptionKey protects collection exports, 32 bytes for AES-256
	EncryptionKey string `yaml:"encryption_key"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		DBDir: DefaultDBDir,
		Chunk: ChunkConfig{Size: defaultChunkSize, Overlap: defaultChunkOverlap},
		Embedding: EmbeddingConfig{
			Provider:  ProviderOllama,
			Model:     DefaultEmbeddingModel,
			BaseURL:   DefaultOllamaURL,
			APIKeyEnv: "OPENAI_API_KEY",
			BatchSize: 32,
			CacheSize: 1024,
			Retries:   2,
		},
		LLM: LLMConfig{
			Provider:    ProviderLlamaCpp,
			Binary:      DefaultLlamaBinary,
			NCtx:        4096,
			NGPULayers:  0,
			MaxTokens:   512,
			Temperature: 0.2,
			TopP:        0.9,
			Stop:        append([]string(nil), models.DefaultStopSequences...),
			BaseURL:     DefaultOllamaURL,
		},
		Retrieval: RetrievalConfig{K: 5},
		Ingest:    IngestConfig{Workers: 1},
		Log:       LogConfig{Level: "info", Pretty: true},
	}
}

// LoadConfig reads a YAML config from path. A missing file yields the defaults.
// Environment overrides are applied on top in both cases.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := getenv("ARCANE_DB_DIR"); v != "" {
		cfg.DBDir = v
	}
	if v := getenv("ARCANE_OLLAMA_URL"); v != "" {
		cfg.Embedding.BaseURL = v
		cfg.LLM.BaseURL = v
	}
	if v := getenv("ARCANE_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := getenv("ARCANE_MODEL_PATH"); v != "" {
		cfg.LLM.ModelPath = v
	}
	if v := getenv("ARCANE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("ARCANE_ENCRYPTION_KEY"); v != "" {
		cfg.EncryptionKey = v
	}
}

// applyDefaults fills zero values left by a partial YAML file
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.DBDir == "" {
		cfg.DBDir = def.DBDir
	}
	if cfg.Chunk.Size == 0 {
		cfg.Chunk.Size = def.Chunk.Size
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = def.Embedding.Provider
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = def.Embedding.Model
	}
	if cfg.Embedding.BaseURL == "" && cfg.Embedding.Provider == ProviderOllama {
		cfg.Embedding.BaseURL = def.Embedding.BaseURL
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = def.Embedding.BatchSize
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = def.LLM.Provider
	}
	if cfg.LLM.Binary == "" {
		cfg.LLM.Binary = def.LLM.Binary
	}
	if cfg.LLM.NCtx == 0 {
		cfg.LLM.NCtx = def.LLM.NCtx
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = def.LLM.MaxTokens
	}
	if cfg.LLM.Stop == nil {
		cfg.LLM.Stop = def.LLM.Stop
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = def.LLM.BaseURL
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = def.Retrieval.K
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = def.Ingest.Workers
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

// Validate checks the invariants the pipeline relies on.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DBDir) == "" {
		errs = append(errs, errors.New("db_dir is required"))
	}
	if c.Chunk.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.Chunk.Size))
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		errs = append(errs, fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.Chunk.Size, c.Chunk.Overlap))
	}
	switch c.Embedding.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider: %s", c.Embedding.Provider))
	}
	switch c.LLM.Provider {
	case ProviderLlamaCpp, ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider: %s", c.LLM.Provider))
	}
	if c.Retrieval.K <= 0 {
		errs = append(errs, fmt.Errorf("k must be positive, got %d", c.Retrieval.K))
	}
	if c.Ingest.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Ingest.Workers))
	}
	if c.LLM.TopP < 0 || c.LLM.TopP > 1 {
		errs = append(errs, fmt.Errorf("top_p must be in [0, 1], got %g", c.LLM.TopP))
	}
	if c.LLM.Temperature < 0 {
		errs = append(errs, fmt.Errorf("temperature must not be negative, got %g", c.LLM.Temperature))
	}
	if c.LLM.Provider == ProviderOllama && strings.TrimSpace(c.LLM.OllamaModel) == "" {
		errs = append(errs, errors.New("ollama_model is required for the ollama llm provider"))
	}
	if n := len(c.EncryptionKey); n != 0 && n != 32 {
		errs = append(errs, fmt.Errorf("encryption_key must be 32 bytes, got %d", n))
	}
	return errors.Join(errs...)
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
