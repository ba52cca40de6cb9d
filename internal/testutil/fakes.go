// Package testutil holds deterministic stand-ins for the embedding server and
// the language model, used across package tests.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/llms"
)

const DefaultDim = 32

// Vector hashes the lowercase words of text into a normalized bag-of-words vector.
// Texts sharing words end up close in cosine distance.
func Vector(text string, dim int) []float32 {
	v := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// FakeEmbedder implements langchaingo's embeddings.Embedder.
type FakeEmbedder struct {
	Dim int
	// Err is returned by every call while set.
	Err error
	// FailFor makes calls containing this text fail with Err.
	FailFor string

	mu         sync.Mutex
	queryCalls int
	docCalls   int
}

func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{Dim: DefaultDim}
}

func (f *FakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.docCalls++
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := f.fail(t); err != nil {
			return nil, err
		}
		out[i] = Vector(t, f.dim())
	}
	return out, nil
}

func (f *FakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queryCalls++
	f.mu.Unlock()
	if err := f.fail(text); err != nil {
		return nil, err
	}
	return Vector(text, f.dim()), nil
}

// Calls returns the number of EmbedQuery and EmbedDocuments calls.
func (f *FakeEmbedder) Calls() (query, docs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryCalls, f.docCalls
}

func (f *FakeEmbedder) fail(text string) error {
	if f.Err == nil {
		return nil
	}
	if f.FailFor == "" || strings.Contains(text, f.FailFor) {
		return f.Err
	}
	return nil
}

func (f *FakeEmbedder) dim() int {
	if f.Dim <= 0 {
		return DefaultDim
	}
	return f.Dim
}

// FakeLLM implements llms.Model and records every prompt it receives.
type FakeLLM struct {
	Response string
	Err      error

	mu      sync.Mutex
	prompts []string
	options []llms.CallOptions
}

func (f *FakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	var sb strings.Builder
	for _, m := range messages {
		for _, p := range m.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				sb.WriteString(tc.Text)
			}
		}
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, sb.String())
	f.options = append(f.options, opts)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.Response}},
	}, nil
}

func (f *FakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// Prompts returns the prompts received so far.
func (f *FakeLLM) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// LastOptions returns the call options of the most recent call.
func (f *FakeLLM) LastOptions() llms.CallOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.options) == 0 {
		return llms.CallOptions{}
	}
	return f.options[len(f.options)-1]
}
