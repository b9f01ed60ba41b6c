package ai

import (
	"context"
	"errors"
)

var (
	ErrEmbedding  = errors.New("embedding request failed")
	ErrGeneration = errors.New("generation request failed")
	ErrBlocked    = errors.New("generation blocked by safety filters")
	ErrInvalidKey = errors.New("API key rejected")
	ErrEmptyInput = errors.New("empty input text")
)

// Embedder maps text to fixed-length vectors. Document and query embeddings
// use different task types, so both operations are explicit.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// Generator produces an answer for a fully grounded prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
