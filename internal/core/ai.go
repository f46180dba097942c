package core

import "context"

// EmbeddingProvider turns text into vectors in the collection's embedding
// space. Vectors returned by EmbedTexts are unit-normalized so that the
// store's cosine distance behaves consistently at ingestion and query time.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider is the language-generation service. Generation parameters
// (temperature, output token cap) are fixed at construction time.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// CrossEncoder scores (query, passage) pairs jointly. Scores come back in
// passage order; higher means more relevant.
type CrossEncoder interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}
