package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"arcane-scribe/internal/config"
)

const defaultBackoff = 250 * time.Millisecond

// EmbeddingError reports a failure of the embedding model.
type EmbeddingError struct {
	Model string
	Err   error
	// Hint tells the user how to make the model available, if known
	Hint string
}

func (e *EmbeddingError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("embedding model %s: %v (%s)", e.Model, e.Err, e.Hint)
	}
	return fmt.Sprintf("embedding model %s: %v", e.Model, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// Embedder maps text to vectors with a single model loaded once per process.
type Embedder struct {
	impl    embeddings.Embedder
	model   string
	retries uint64
	backoff time.Duration
	cache   *lru.Cache[string, []float32]
	hint    string

	mu        sync.Mutex
	dimension int
}

type Option func(*Embedder) error

// WithCache keeps up to size vectors keyed by their input text.
func WithCache(size int) Option {
	return func(e *Embedder) error {
		if size <= 0 {
			return nil
		}
		cache, err := lru.New[string, []float32](size)
		if err != nil {
			return fmt.Errorf("failed to init embedding cache: %w", err)
		}
		e.cache = cache
		return nil
	}
}

// WithRetries retries failed model calls with exponential backoff starting at base.
func WithRetries(n int, base time.Duration) Option {
	return func(e *Embedder) error {
		if n < 0 {
			n = 0
		}
		if base <= 0 {
			base = defaultBackoff
		}
		e.retries = uint64(n)
		e.backoff = base
		return nil
	}
}

// WithHint attaches a remedy to errors returned by failed model calls.
func WithHint(hint string) Option {
	return func(e *Embedder) error {
		e.hint = hint
		return nil
	}
}

// New builds the embedder configured in cfg.
func New(cfg config.EmbeddingConfig, log zerolog.Logger) (*Embedder, error) {
	log.Debug().
		Str("provider", cfg.Provider).
		Str("base_url", cfg.BaseURL).
		Str("embedding_model", cfg.Model).
		Msg("Initializing embedder")

	var client embeddings.EmbedderClient
	var hint string
	switch cfg.Provider {
	case config.ProviderOllama, "":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, &EmbeddingError{Model: cfg.Model, Err: err}
		}
		client = llm
		hint = fmt.Sprintf("is %q pulled on the Ollama server at %s? run `ollama pull %s` or set --embedding-model", cfg.Model, cfg.BaseURL, cfg.Model)
	case config.ProviderOpenAI:
		key := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
		if key == "" {
			return nil, &EmbeddingError{Model: cfg.Model, Err: fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)}
		}
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(key, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, &EmbeddingError{Model: cfg.Model, Err: err}
		}
		client = llm
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}

	impl, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(max(cfg.BatchSize, 1)),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, &EmbeddingError{Model: cfg.Model, Err: err}
	}
	return Wrap(impl, cfg.Model, WithCache(cfg.CacheSize), WithRetries(cfg.Retries, defaultBackoff), WithHint(hint))
}

// Wrap builds an Embedder around an existing langchaingo embedder.
func Wrap(impl embeddings.Embedder, model string, opts ...Option) (*Embedder, error) {
	if impl == nil {
		return nil, errors.New("embedder implementation is required")
	}
	e := &Embedder{impl: impl, model: model, backoff: defaultBackoff}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Model returns the model identifier.
func (e *Embedder) Model() string {
	return e.model
}

// Dimension returns the vector length seen so far, 0 before the first call.
func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

// Embed returns the vector of a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.lookup(text); ok {
		return v, nil
	}
	var vector []float32
	err := e.withRetry(ctx, func(ctx context.Context) error {
		v, err := e.impl.EmbedQuery(ctx, text)
		if err != nil {
			return err
		}
		vector = v
		return nil
	})
	if err != nil {
		return nil, &EmbeddingError{Model: e.model, Err: err, Hint: e.hint}
	}
	if err := e.checkDimension(vector); err != nil {
		return nil, &EmbeddingError{Model: e.model, Err: err}
	}
	e.store(text, vector)
	return vector, nil
}

// EmbedMany returns one vector per text, in order.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var pending []string
	var pendingIdx []int
	for i, text := range texts {
		if v, ok := e.lookup(text); ok {
			out[i] = v
			continue
		}
		pending = append(pending, text)
		pendingIdx = append(pendingIdx, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	var vectors [][]float32
	err := e.withRetry(ctx, func(ctx context.Context) error {
		v, err := e.impl.EmbedDocuments(ctx, pending)
		if err != nil {
			return err
		}
		vectors = v
		return nil
	})
	if err != nil {
		return nil, &EmbeddingError{Model: e.model, Err: err, Hint: e.hint}
	}
	if len(vectors) != len(pending) {
		return nil, &EmbeddingError{Model: e.model, Err: fmt.Errorf("got %d vectors for %d texts", len(vectors), len(pending))}
	}
	for j, v := range vectors {
		if err := e.checkDimension(v); err != nil {
			return nil, &EmbeddingError{Model: e.model, Err: err}
		}
		out[pendingIdx[j]] = v
		e.store(pending[j], v)
	}
	return out, nil
}

func (e *Embedder) withRetry(ctx context.Context, call func(context.Context) error) error {
	backoff := retry.WithMaxRetries(e.retries, retry.NewExponential(e.backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := call(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		return retry.RetryableError(err)
	})
}

func (e *Embedder) checkDimension(v []float32) error {
	if len(v) == 0 {
		return errors.New("model returned an empty vector")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dimension == 0 {
		e.dimension = len(v)
		return nil
	}
	if len(v) != e.dimension {
		return fmt.Errorf("vector dimension %d does not match %d", len(v), e.dimension)
	}
	return nil
}

func (e *Embedder) lookup(text string) ([]float32, bool) {
	if e.cache == nil {
		return nil, false
	}
	return e.cache.Get(text)
}

func (e *Embedder) store(text string, v []float32) {
	if e.cache != nil {
		e.cache.Add(text, v)
	}
}
