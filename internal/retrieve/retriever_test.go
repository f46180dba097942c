package retrieve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShriAmogh/artikate-assignment/internal/core"
	"github.com/ShriAmogh/artikate-assignment/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubEmbedder struct{ fail bool }

func (s *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if s.fail {
		return nil, errors.New("embed down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type stubStore struct {
	result     *core.QueryResult
	lastFilter string
	lastN      int
}

func (s *stubStore) Upsert(ctx context.Context, collection string, ids []string, embeddings [][]float32, metadatas []map[string]string, documents []string) error {
	return nil
}

func (s *stubStore) Query(ctx context.Context, collection string, embedding []float32, nResults int, typeFilter string) (*core.QueryResult, error) {
	s.lastFilter = typeFilter
	s.lastN = nResults
	return s.result, nil
}

func (s *stubStore) Count(ctx context.Context, collection string) (int, error) { return 0, nil }

type stubEncoder struct {
	scores []float64
	fail   bool
}

func (s *stubEncoder) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if s.fail {
		return nil, errors.New("reranker down")
	}
	return s.scores[:len(passages)], nil
}

func queryResult(n int) *core.QueryResult {
	r := &core.QueryResult{}
	for i := 0; i < n; i++ {
		r.IDs = append(r.IDs, string(rune('a'+i)))
		r.Documents = append(r.Documents, "passage "+string(rune('a'+i)))
		r.Metadatas = append(r.Metadatas, map[string]string{"source": "doc.pdf", "page": "1"})
		r.Distances = append(r.Distances, 0.1*float64(i))
	}
	return r
}

func TestRetrieveOrdersByCrossScore(t *testing.T) {
	store := &stubStore{result: queryResult(3)}
	enc := &stubEncoder{scores: []float64{0.2, 0.9, 0.5}}
	r := NewRetriever(&stubEmbedder{}, store, enc, discardLogger(), 20, 5)

	ranked, err := r.Retrieve(context.Background(), "c", "question")
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, "passage b", ranked[0].Content)
	assert.Equal(t, 0.9, ranked[0].CrossScore)
	assert.Equal(t, "passage c", ranked[1].Content)
	assert.Equal(t, "passage a", ranked[2].Content)
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	store := &stubStore{result: queryResult(8)}
	enc := &stubEncoder{scores: []float64{8, 7, 6, 5, 4, 3, 2, 1}}
	r := NewRetriever(&stubEmbedder{}, store, enc, discardLogger(), 20, 3)

	ranked, err := r.Retrieve(context.Background(), "c", "q")
	require.NoError(t, err)
	assert.Len(t, ranked, 3)
	assert.Equal(t, 20, store.lastN, "vector fetch uses the wide fetchK")
}

func TestRetrieveStableSortKeepsVectorOrderOnTies(t *testing.T) {
	store := &stubStore{result: queryResult(3)}
	enc := &stubEncoder{scores: []float64{0.5, 0.5, 0.5}}
	r := NewRetriever(&stubEmbedder{}, store, enc, discardLogger(), 20, 5)

	ranked, err := r.Retrieve(context.Background(), "c", "q")
	require.NoError(t, err)
	assert.Equal(t, "passage a", ranked[0].Content)
	assert.Equal(t, "passage b", ranked[1].Content)
	assert.Equal(t, "passage c", ranked[2].Content)
}

func TestRetrieveEmptyStoreSkipsReranker(t *testing.T) {
	store := &stubStore{result: &core.QueryResult{}}
	enc := &stubEncoder{fail: true}
	r := NewRetriever(&stubEmbedder{}, store, enc, discardLogger(), 20, 5)

	ranked, err := r.Retrieve(context.Background(), "c", "q")
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestRetrieveTablesFiltersAndRendersMarkdown(t *testing.T) {
	res := queryResult(1)
	res.Metadatas[0]["type"] = models.ChunkTypeTable
	res.Metadatas[0]["table_markdown"] = "| A | B |\n| --- | --- |\n| 1 | 2 |"
	store := &stubStore{result: res}
	r := NewRetriever(&stubEmbedder{}, store, &stubEncoder{scores: []float64{1}}, discardLogger(), 20, 5)

	ranked, err := r.RetrieveTables(context.Background(), "c", "q")
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, models.ChunkTypeTable, store.lastFilter)
	assert.Contains(t, ranked[0].Content, "| A | B |")
}

func TestRetrievePropagatesRerankError(t *testing.T) {
	store := &stubStore{result: queryResult(2)}
	r := NewRetriever(&stubEmbedder{}, store, &stubEncoder{fail: true}, discardLogger(), 20, 5)

	_, err := r.Retrieve(context.Background(), "c", "q")
	assert.Error(t, err)
}

func TestRetrievePropagatesEmbedError(t *testing.T) {
	r := NewRetriever(&stubEmbedder{fail: true}, &stubStore{result: queryResult(1)}, &stubEncoder{scores: []float64{1}}, discardLogger(), 20, 5)

	_, err := r.Retrieve(context.Background(), "c", "q")
	assert.Error(t, err)
}
