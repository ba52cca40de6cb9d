package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"arcane-scribe/internal/llmservice"
	"arcane-scribe/internal/models"
)

// ErrNoContextFound is returned when retrieval finds nothing to answer from.
var ErrNoContextFound = errors.New("no relevant context found in the index; run `arcane index` first")

type Generator interface {
	Generate(ctx context.Context, prompt string, params llmservice.GenerateParams) (string, error)
}

type AskOptions struct {
	K      int
	Params llmservice.GenerateParams
}

type Answer struct {
	Question string       `json:"question"`
	Text     string       `json:"answer"`
	Sources  []models.Hit `json:"sources"`
}

// SourceLines renders one `[i] file p.page` line per source.
func (a *Answer) SourceLines() []string {
	lines := make([]string, len(a.Sources))
	for i, hit := range a.Sources {
		lines[i] = fmt.Sprintf("[%d] %s p.%s", i+1, sourceName(hit), pageLabel(hit))
	}
	return lines
}

// Asker runs retrieval followed by generation.
type Asker struct {
	engine    *QueryEngine
	generator Generator
	log       zerolog.Logger
}

func NewAsker(engine *QueryEngine, generator Generator, log zerolog.Logger) *Asker {
	return &Asker{engine: engine, generator: generator, log: log}
}

func (a *Asker) Ask(ctx context.Context, question string, opts AskOptions) (*Answer, error) {
	hits, err := a.engine.Search(ctx, question, opts.K)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}
	if len(hits) == 0 {
		return nil, ErrNoContextFound
	}
	a.log.Debug().Int("hits", len(hits)).Float32("best_distance", hits[0].Distance).Msg("Retrieved context")

	prompt := BuildPrompt(question, hits)
	a.log.Debug().Int("prompt_chars", len(prompt)).Msg("Generating answer")
	text, err := a.generator.Generate(ctx, prompt, opts.Params)
	if err != nil {
		return nil, err
	}
	return &Answer{Question: question, Text: text, Sources: hits}, nil
}
