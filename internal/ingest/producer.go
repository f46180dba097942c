package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/ShriAmogh/artikate-assignment/internal/core"
	"github.com/ShriAmogh/artikate-assignment/internal/core/parser"
	"github.com/ShriAmogh/artikate-assignment/internal/models"
)

// Document is one uploaded file handed to the producer.
type Document struct {
	ID          string
	Source      string
	Data        []byte
	ContentType string
}

// Producer parses documents, splits their pages into overlapping chunks and
// appends each chunk to the session's durable log. Documents fan out across
// a bounded worker pool; a document that fails to parse is logged and
// skipped so one bad file cannot sink the batch.
type Producer struct {
	parser    core.DocumentParser
	queue     core.ChunkQueue
	logger    *slog.Logger
	chunkSize int
	overlap   int
	workers   int
}

func NewProducer(p core.DocumentParser, q core.ChunkQueue, logger *slog.Logger, chunkSize, overlap, workers int) *Producer {
	if workers <= 0 {
		workers = 1
	}
	return &Producer{
		parser:    p,
		queue:     q,
		logger:    logger,
		chunkSize: chunkSize,
		overlap:   overlap,
		workers:   workers,
	}
}

// Produce appends every chunk of every document to the session log and
// returns the total number of chunks appended along with the number of
// documents that contributed at least one chunk. Parse failures skip the
// document; log append failures abort the run.
func (p *Producer) Produce(ctx context.Context, sessionKey string, docs []Document) (int, int, error) {
	pool, err := ants.NewPool(p.workers)
	if err != nil {
		return 0, 0, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		total    int
		queued   int
		firstErr error
	)
	for _, doc := range docs {
		doc := doc
		wg.Add(1)
		task := func() {
			defer wg.Done()
			n, err := p.produceOne(ctx, sessionKey, doc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			total += n
			if n > 0 {
				queued++
			}
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("submit parse task: %w", err)
			}
			mu.Unlock()
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return 0, 0, firstErr
	}
	return total, queued, nil
}

func (p *Producer) produceOne(ctx context.Context, sessionKey string, doc Document) (int, error) {
	pages, err := p.parser.Parse(ctx, doc.Data, doc.ContentType)
	if err != nil {
		p.logger.Warn("skipping document, parse failed", "doc_id", doc.ID, "source", doc.Source, "error", err)
		return 0, nil
	}

	tables, err := p.parser.ExtractTables(ctx, doc.Data, doc.ContentType)
	if err != nil {
		p.logger.Warn("table extraction failed, indexing text only", "doc_id", doc.ID, "error", err)
		tables = nil
	}

	appended := 0
	for _, page := range pages {
		for i, text := range Split(page.Text, p.chunkSize, p.overlap) {
			rec := models.ChunkRecord{
				DocID:      doc.ID,
				Source:     doc.Source,
				Page:       page.Number,
				ChunkIndex: i,
				Type:       models.ChunkTypeText,
				Text:       text,
			}
			if _, err := p.queue.Append(ctx, sessionKey, encodeRecord(rec)); err != nil {
				return appended, fmt.Errorf("append chunk %s: %w", rec.ID(), err)
			}
			appended++
		}
	}

	for _, tb := range tables {
		rec := models.ChunkRecord{
			DocID:         doc.ID,
			Source:        doc.Source,
			Page:          tb.Page,
			ChunkIndex:    tb.TableIndex,
			Type:          models.ChunkTypeTable,
			Text:          parser.FlattenRows(tb.Rows),
			TableMarkdown: parser.RenderMarkdown(tb.Rows),
		}
		if _, err := p.queue.Append(ctx, sessionKey, encodeRecord(rec)); err != nil {
			return appended, fmt.Errorf("append table chunk %s: %w", rec.ID(), err)
		}
		appended++
	}

	p.logger.Info("document queued", "doc_id", doc.ID, "pages", len(pages), "tables", len(tables), "chunks", appended)
	return appended, nil
}

func encodeRecord(rec models.ChunkRecord) map[string]string {
	m := map[string]string{
		"doc_id":      rec.DocID,
		"source":      rec.Source,
		"page":        strconv.Itoa(rec.Page),
		"chunk_index": strconv.Itoa(rec.ChunkIndex),
		"type":        rec.Type,
		"text":        rec.Text,
	}
	if rec.TableMarkdown != "" {
		m["table_markdown"] = rec.TableMarkdown
	}
	return m
}

func decodeRecord(m map[string]string) (models.ChunkRecord, error) {
	page, err := strconv.Atoi(m["page"])
	if err != nil {
		return models.ChunkRecord{}, fmt.Errorf("bad page %q: %w", m["page"], err)
	}
	idx, err := strconv.Atoi(m["chunk_index"])
	if err != nil {
		return models.ChunkRecord{}, fmt.Errorf("bad chunk_index %q: %w", m["chunk_index"], err)
	}
	return models.ChunkRecord{
		DocID:         m["doc_id"],
		Source:        m["source"],
		Page:          page,
		ChunkIndex:    idx,
		Type:          m["type"],
		Text:          m["text"],
		TableMarkdown: m["table_markdown"],
	}, nil
}
