package embedding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcane-scribe/internal/config"
	"arcane-scribe/internal/testutil"
)

type flakyEmbedder struct {
	*testutil.FakeEmbedder
	failures int
}

func (f *flakyEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection refused")
	}
	return f.FakeEmbedder.EmbedQuery(ctx, text)
}

type shortEmbedder struct {
	*testutil.FakeEmbedder
}

func (s shortEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := s.FakeEmbedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	return out[:len(out)-1], nil
}

func TestEmbed(t *testing.T) {
	e, err := Wrap(testutil.NewFakeEmbedder(), "fake")
	require.NoError(t, err)
	assert.Equal(t, 0, e.Dimension())

	v, err := e.Embed(context.Background(), "Armor Class is 10 + bonus")
	require.NoError(t, err)
	assert.Equal(t, testutil.Vector("Armor Class is 10 + bonus", testutil.DefaultDim), v)
	assert.Equal(t, testutil.DefaultDim, e.Dimension())
	assert.Equal(t, "fake", e.Model())
}

func TestEmbedManyKeepsOrder(t *testing.T) {
	e, err := Wrap(testutil.NewFakeEmbedder(), "fake")
	require.NoError(t, err)

	texts := []string{"fireball", "magic missile", "cure wounds"}
	vectors, err := e.EmbedMany(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, text := range texts {
		assert.Equal(t, testutil.Vector(text, testutil.DefaultDim), vectors[i])
	}
}

func TestEmbedManyEmptyInput(t *testing.T) {
	fake := testutil.NewFakeEmbedder()
	e, err := Wrap(fake, "fake")
	require.NoError(t, err)

	vectors, err := e.EmbedMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	_, docs := fake.Calls()
	assert.Zero(t, docs)
}

func TestCacheSkipsRepeatedCalls(t *testing.T) {
	fake := testutil.NewFakeEmbedder()
	e, err := Wrap(fake, "fake", WithCache(16))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.Embed(ctx, "grapple")
	require.NoError(t, err)
	_, err = e.Embed(ctx, "grapple")
	require.NoError(t, err)
	query, _ := fake.Calls()
	assert.Equal(t, 1, query)

	// cached texts are not sent again in a batch
	_, err = e.EmbedMany(ctx, []string{"grapple", "shove"})
	require.NoError(t, err)
	vectors, err := e.EmbedMany(ctx, []string{"shove", "grapple"})
	require.NoError(t, err)
	_, docs := fake.Calls()
	assert.Equal(t, 1, docs)
	assert.Equal(t, testutil.Vector("shove", testutil.DefaultDim), vectors[0])
}

func TestRetriesTransientFailures(t *testing.T) {
	flaky := &flakyEmbedder{FakeEmbedder: testutil.NewFakeEmbedder(), failures: 2}
	e, err := Wrap(flaky, "fake", WithRetries(2, time.Millisecond))
	require.NoError(t, err)

	v, err := e.Embed(context.Background(), "opportunity attack")
	require.NoError(t, err)
	assert.NotEmpty(t, v)
}

func TestRetriesExhausted(t *testing.T) {
	flaky := &flakyEmbedder{FakeEmbedder: testutil.NewFakeEmbedder(), failures: 5}
	e, err := Wrap(flaky, "bge", WithRetries(1, time.Millisecond))
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "opportunity attack")
	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, "bge", embErr.Model)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRaggedBatchIsAnError(t *testing.T) {
	e, err := Wrap(shortEmbedder{testutil.NewFakeEmbedder()}, "fake")
	require.NoError(t, err)

	_, err = e.EmbedMany(context.Background(), []string{"a", "b"})
	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Contains(t, err.Error(), "got 1 vectors for 2 texts")
}

func TestDimensionMismatch(t *testing.T) {
	fake := testutil.NewFakeEmbedder()
	e, err := Wrap(fake, "fake")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.Embed(ctx, "first")
	require.NoError(t, err)
	fake.Dim = 8
	_, err = e.Embed(ctx, "second")
	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Contains(t, err.Error(), "dimension")
}

func TestWrapRequiresImpl(t *testing.T) {
	_, err := Wrap(nil, "fake")
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	log := zerolog.Nop()

	t.Run("ollama", func(t *testing.T) {
		cfg := config.Default().Embedding
		e, err := New(cfg, log)
		require.NoError(t, err)
		assert.Equal(t, config.DefaultEmbeddingModel, e.Model())
	})

	t.Run("ollama model not pulled", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
		}))
		defer srv.Close()

		cfg := config.Default().Embedding
		cfg.BaseURL = srv.URL
		cfg.Retries = 0
		e, err := New(cfg, log)
		require.NoError(t, err)

		_, err = e.Embed(context.Background(), "armor class")
		var embErr *EmbeddingError
		require.ErrorAs(t, err, &embErr)
		assert.Contains(t, err.Error(), "ollama pull "+config.DefaultEmbeddingModel)
	})

	t.Run("openai without key", func(t *testing.T) {
		t.Setenv("ARCANE_TEST_KEY", "")
		cfg := config.Default().Embedding
		cfg.Provider = config.ProviderOpenAI
		cfg.APIKeyEnv = "ARCANE_TEST_KEY"
		_, err := New(cfg, log)
		var embErr *EmbeddingError
		require.ErrorAs(t, err, &embErr)
		assert.Contains(t, err.Error(), "ARCANE_TEST_KEY")
	})

	t.Run("openai with key", func(t *testing.T) {
		t.Setenv("ARCANE_TEST_KEY", "sk-local")
		cfg := config.Default().Embedding
		cfg.Provider = config.ProviderOpenAI
		cfg.APIKeyEnv = "ARCANE_TEST_KEY"
		cfg.BaseURL = "http://localhost:8080/v1"
		_, err := New(cfg, log)
		require.NoError(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := config.Default().Embedding
		cfg.Provider = "tei"
		_, err := New(cfg, log)
		require.Error(t, err)
	})
}
