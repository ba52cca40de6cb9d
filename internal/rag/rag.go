package rag

import (
	"context"
	"strings"

	"arcane-scribe/internal/models"
)

type Retriever interface {
	Query(ctx context.Context, embedding []float32, k int) ([]models.Hit, error)
	Count() int
}

type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QueryEngine embeds questions and finds the closest stored chunks.
type QueryEngine struct {
	store    Retriever
	embedder QueryEmbedder
}

func NewQueryEngine(store Retriever, embedder QueryEmbedder) *QueryEngine {
	return &QueryEngine{store: store, embedder: embedder}
}

// Search returns up to k hits for question, closest first. An empty collection
// yields no hits without embedding the question.
func (q *QueryEngine) Search(ctx context.Context, question string, k int) ([]models.Hit, error) {
	if q.store.Count() == 0 || k <= 0 || strings.TrimSpace(question) == "" {
		return []models.Hit{}, nil
	}
	queryEmbedding, err := q.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	return q.store.Query(ctx, queryEmbedding, k)
}
