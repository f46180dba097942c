package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ShriAmogh/artikate-assignment/internal/core"
)

// Progress reports how many chunks have been indexed out of the total
// queued for the session.
type Progress func(processed, total int)

// Indexer drains a session's chunk log in batches. Each batch is embedded
// in one provider call and upserted into the vector store under the
// session's collection. Chunk ids are deterministic, so replaying entries
// after a crash overwrites rather than duplicates.
type Indexer struct {
	queue     core.ChunkQueue
	embedder  core.EmbeddingProvider
	store     core.VectorStore
	logger    *slog.Logger
	batchSize int
	drainWait time.Duration
}

func NewIndexer(q core.ChunkQueue, e core.EmbeddingProvider, s core.VectorStore, logger *slog.Logger, batchSize int, drainWait time.Duration) *Indexer {
	if batchSize <= 0 {
		batchSize = 64
	}
	if drainWait <= 0 {
		drainWait = 2 * time.Second
	}
	return &Indexer{
		queue:     q,
		embedder:  e,
		store:     s,
		logger:    logger,
		batchSize: batchSize,
		drainWait: drainWait,
	}
}

// Drain consumes the session log until a blocking read comes back empty.
// It returns the number of chunks indexed; the first embed or upsert
// failure aborts the run so the job can be marked failed.
func (ix *Indexer) Drain(ctx context.Context, sessionKey, collection string, onProgress Progress) (int, error) {
	total, err := ix.queue.Len(ctx, sessionKey)
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}

	var (
		afterID   uint64
		processed int
	)
	for {
		entries, err := ix.queue.Read(ctx, sessionKey, afterID, ix.batchSize, ix.drainWait)
		if err != nil {
			return processed, fmt.Errorf("read chunk log: %w", err)
		}
		if len(entries) == 0 {
			break
		}

		if err := ix.indexBatch(ctx, collection, entries); err != nil {
			return processed, err
		}

		afterID = entries[len(entries)-1].ID
		processed += len(entries)
		if onProgress != nil {
			onProgress(processed, total)
		}
	}

	ix.logger.Info("session drained", "session", sessionKey, "collection", collection, "chunks", processed)
	return processed, nil
}

func (ix *Indexer) indexBatch(ctx context.Context, collection string, entries []core.QueueEntry) error {
	ids := make([]string, 0, len(entries))
	texts := make([]string, 0, len(entries))
	metadatas := make([]map[string]string, 0, len(entries))

	for _, e := range entries {
		rec, err := decodeRecord(e.Record)
		if err != nil {
			return fmt.Errorf("decode entry %d: %w", e.ID, err)
		}
		ids = append(ids, rec.ID())
		texts = append(texts, rec.Text)
		metadatas = append(metadatas, rec.Metadata())
	}

	embeddings, err := ix.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(embeddings) != len(texts) {
		return fmt.Errorf("embed batch: got %d vectors for %d texts", len(embeddings), len(texts))
	}

	if err := ix.store.Upsert(ctx, collection, ids, embeddings, metadatas, texts); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}
