package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ShriAmogh/artikate-assignment/internal/core"
	"github.com/ShriAmogh/artikate-assignment/internal/ingest"
	"github.com/ShriAmogh/artikate-assignment/internal/models"
	"github.com/ShriAmogh/artikate-assignment/internal/retrieve"
)

// Words that route a question to the table-only search path first.
var tableKeywords = []string{"table", "tabular", "row", "column", "cell", "spreadsheet"}

// RagService orchestrates both halves of the system: the ingestion run
// that turns uploaded documents into an indexed collection, and the
// answering pipeline over that collection. Each user gets one collection.
type RagService struct {
	db          core.DbClient
	docs        *DocumentService
	queue       core.ChunkQueue
	producer    *ingest.Producer
	indexer     *ingest.Indexer
	retriever   *retrieve.Retriever
	synthesizer *retrieve.Synthesizer
	logger      *slog.Logger
	sessionTTL  time.Duration
}

func NewRagService(
	db core.DbClient,
	docs *DocumentService,
	queue core.ChunkQueue,
	producer *ingest.Producer,
	indexer *ingest.Indexer,
	retriever *retrieve.Retriever,
	synthesizer *retrieve.Synthesizer,
	logger *slog.Logger,
	sessionTTL time.Duration,
) *RagService {
	return &RagService{
		db:          db,
		docs:        docs,
		queue:       queue,
		producer:    producer,
		indexer:     indexer,
		retriever:   retriever,
		synthesizer: synthesizer,
		logger:      logger,
		sessionTTL:  sessionTTL,
	}
}

// CollectionName is the per-user vector collection.
func CollectionName(userID string) string {
	return fmt.Sprintf("user_%s_rag", userID)
}

// StartIngestion creates a job for the user's uploaded documents and runs
// the ingestion in the background. The returned job is in pending state;
// poll JobStatus to follow it.
func (s *RagService) StartIngestion(ctx context.Context, userID string, docIDs []string) (*models.IngestionJob, error) {
	docs, err := s.loadDocuments(ctx, userID, docIDs)
	if err != nil {
		return nil, err
	}

	job := &models.IngestionJob{
		ID:     uuid.NewString(),
		UserID: userID,
		Status: models.JobPending,
	}
	if err := s.db.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	// The run outlives the HTTP request that started it.
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := s.runIngestion(runCtx, job.ID, userID, docs); err != nil {
			s.logger.Error("ingestion run failed", "job_id", job.ID, "user_id", userID, "error", err)
		}
	}()

	return job, nil
}

// Ingest runs the full pipeline synchronously for the given documents and
// returns its outcome. Used by StartIngestion's background run and directly
// by tests.
func (s *RagService) Ingest(ctx context.Context, jobID, userID string, docs []models.Document) (models.IngestResult, error) {
	return s.runIngestion(ctx, jobID, userID, docs)
}

func (s *RagService) runIngestion(ctx context.Context, jobID, userID string, docs []models.Document) (models.IngestResult, error) {
	if len(docs) == 0 {
		_ = s.db.FinishJob(ctx, jobID, models.JobCompleted, "no documents to ingest")
		return models.IngestResult{Status: "no_documents"}, nil
	}

	if err := s.db.SetJobRunning(ctx, jobID); err != nil {
		return models.IngestResult{}, fmt.Errorf("mark job running: %w", err)
	}

	result, err := s.ingestDocuments(ctx, jobID, userID, docs)
	if err != nil {
		_ = s.db.FinishJob(ctx, jobID, models.JobFailed, err.Error())
		s.setDocumentStatuses(ctx, docs, "failed")
		return models.IngestResult{}, err
	}

	_ = s.db.FinishJob(ctx, jobID, models.JobCompleted, "")
	s.setDocumentStatuses(ctx, docs, "ready")
	return result, nil
}

func (s *RagService) ingestDocuments(ctx context.Context, jobID, userID string, docs []models.Document) (models.IngestResult, error) {
	s.setDocumentStatuses(ctx, docs, "processing")

	// Fetch document bytes from object storage concurrently. A failed fetch
	// skips that document rather than failing the run.
	fetched := make([]*ingest.Document, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range docs {
		i := i
		g.Go(func() error {
			data, err := s.docs.Fetch(gctx, &docs[i])
			if err != nil {
				s.logger.Warn("skipping document, fetch failed", "doc_id", docs[i].ID, "error", err)
				return nil
			}
			fetched[i] = &ingest.Document{
				ID:          docs[i].ID,
				Source:      docs[i].FileName,
				Data:        data,
				ContentType: docs[i].ContentType,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.IngestResult{}, err
	}

	inputs := make([]ingest.Document, 0, len(docs))
	for _, d := range fetched {
		if d != nil {
			inputs = append(inputs, *d)
		}
	}
	if len(inputs) == 0 {
		return models.IngestResult{Status: "no_documents"}, nil
	}

	sessionKey := "ingest:" + jobID
	queued, queuedDocs, err := s.producer.Produce(ctx, sessionKey, inputs)
	if err != nil {
		return models.IngestResult{}, fmt.Errorf("queue documents: %w", err)
	}
	if queued == 0 {
		return models.IngestResult{Status: "no_documents"}, nil
	}

	collection := CollectionName(userID)
	indexed, err := s.indexer.Drain(ctx, sessionKey, collection, func(processed, total int) {
		if total > 0 {
			_ = s.db.SetJobProgress(ctx, jobID, processed*100/total)
		}
	})
	if err != nil {
		return models.IngestResult{}, fmt.Errorf("index session: %w", err)
	}

	// The session's work is done; let its log entries age out.
	if err := s.queue.Expire(ctx, sessionKey, s.sessionTTL); err != nil {
		s.logger.Warn("session expiry failed", "session", sessionKey, "error", err)
	}

	s.logger.Info("ingestion complete", "job_id", jobID, "documents", queuedDocs, "chunks", indexed)
	return models.IngestResult{
		Status:     "success",
		DocCount:   queuedDocs,
		ChunkCount: indexed,
	}, nil
}

// Answer runs the retrieval pipeline for the user's question. Questions
// that mention tables try the table-only index first and fall back to the
// full index when no table chunk matches.
func (s *RagService) Answer(ctx context.Context, userID, question string) (models.Answer, error) {
	collection := CollectionName(userID)

	var (
		candidates []models.RankedCandidate
		err        error
	)
	if hasTableIntent(question) {
		candidates, err = s.retriever.RetrieveTables(ctx, collection, question)
		if err != nil {
			return models.Answer{}, err
		}
	}
	if len(candidates) == 0 {
		candidates, err = s.retriever.Retrieve(ctx, collection, question)
		if err != nil {
			return models.Answer{}, err
		}
	}

	return s.synthesizer.Answer(ctx, question, candidates)
}

// JobStatus returns the current state of an ingestion job.
func (s *RagService) JobStatus(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	return s.db.GetJob(ctx, jobID)
}

func (s *RagService) loadDocuments(ctx context.Context, userID string, docIDs []string) ([]models.Document, error) {
	all, err := s.docs.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if len(docIDs) == 0 {
		return all, nil
	}

	want := make(map[string]struct{}, len(docIDs))
	for _, id := range docIDs {
		want[id] = struct{}{}
	}
	docs := make([]models.Document, 0, len(docIDs))
	for _, d := range all {
		if _, ok := want[d.ID]; ok {
			docs = append(docs, d)
		}
	}
	if len(docs) != len(docIDs) {
		return nil, fmt.Errorf("unknown document ids for user %s", userID)
	}
	return docs, nil
}

func (s *RagService) setDocumentStatuses(ctx context.Context, docs []models.Document, status string) {
	for i := range docs {
		if err := s.db.UpdateDocumentStatus(ctx, docs[i].ID, status); err != nil {
			s.logger.Warn("document status update failed", "doc_id", docs[i].ID, "status", status, "error", err)
		}
	}
}

func hasTableIntent(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range tableKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}
