// Package retrieve answers questions over an indexed collection. A query is
// embedded and matched against the vector store, the candidate pool is
// reranked by a cross encoder, and the winners are handed to the language
// model with a grounding prompt.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ShriAmogh/artikate-assignment/internal/core"
	"github.com/ShriAmogh/artikate-assignment/internal/models"
)

// Retriever performs the two-stage search: a wide vector fetch followed by
// cross-encoder reranking down to topK.
type Retriever struct {
	embedder core.EmbeddingProvider
	store    core.VectorStore
	encoder  core.CrossEncoder
	logger   *slog.Logger
	fetchK   int
	topK     int
}

func NewRetriever(e core.EmbeddingProvider, s core.VectorStore, c core.CrossEncoder, logger *slog.Logger, fetchK, topK int) *Retriever {
	if fetchK <= 0 {
		fetchK = 20
	}
	if topK <= 0 {
		topK = 5
	}
	if fetchK < topK {
		fetchK = topK
	}
	return &Retriever{
		embedder: e,
		store:    s,
		encoder:  c,
		logger:   logger,
		fetchK:   fetchK,
		topK:     topK,
	}
}

// Retrieve returns the topK reranked chunks for the query, any chunk type.
func (r *Retriever) Retrieve(ctx context.Context, collection, query string) ([]models.RankedCandidate, error) {
	return r.retrieve(ctx, collection, query, "")
}

// RetrieveTables restricts the search to table chunks and presents each
// winner as its markdown rendering so the model sees the table structure.
func (r *Retriever) RetrieveTables(ctx context.Context, collection, query string) ([]models.RankedCandidate, error) {
	ranked, err := r.retrieve(ctx, collection, query, models.ChunkTypeTable)
	if err != nil {
		return nil, err
	}
	for i := range ranked {
		if md := ranked[i].Metadata["table_markdown"]; md != "" {
			ranked[i].Content = md
		}
	}
	return ranked, nil
}

func (r *Retriever) retrieve(ctx context.Context, collection, query, typeFilter string) ([]models.RankedCandidate, error) {
	vectors, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}

	res, err := r.store.Query(ctx, collection, vectors[0], r.fetchK, typeFilter)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	if len(res.IDs) == 0 {
		return nil, nil
	}

	candidates := make([]models.RetrievedCandidate, len(res.IDs))
	for i := range res.IDs {
		candidates[i] = models.RetrievedCandidate{
			Content:     res.Documents[i],
			Metadata:    res.Metadatas[i],
			VectorScore: res.Distances[i],
		}
	}

	ranked, err := r.rerank(ctx, query, candidates)
	if err != nil {
		return nil, err
	}
	if len(ranked) > r.topK {
		ranked = ranked[:r.topK]
	}

	r.logger.Debug("retrieval complete", "collection", collection, "fetched", len(candidates), "returned", len(ranked))
	return ranked, nil
}

// rerank scores every candidate against the query and orders them by
// descending cross score. The sort is stable so vector order breaks ties.
func (r *Retriever) rerank(ctx context.Context, query string, candidates []models.RetrievedCandidate) ([]models.RankedCandidate, error) {
	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Content
	}

	scores, err := r.encoder.Score(ctx, query, passages)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("rerank: got %d scores for %d candidates", len(scores), len(candidates))
	}

	ranked := make([]models.RankedCandidate, len(candidates))
	for i, c := range candidates {
		ranked[i] = models.RankedCandidate{
			RetrievedCandidate: c,
			CrossScore:         scores[i],
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CrossScore > ranked[j].CrossScore
	})
	return ranked, nil
}
