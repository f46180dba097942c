package core

import (
	"context"
	"io"

	"github.com/ShriAmogh/artikate-assignment/internal/models"
)

// QueryResult is the raw output of a vector-store similarity query, in
// nearest-first order. Distances are cosine distances (lower is closer).
type QueryResult struct {
	IDs       []string
	Documents []string
	Metadatas []map[string]string
	Distances []float64
}

// VectorStore is a named-collection vector index. Writes are upserts keyed
// by chunk ID: writing the same ID again replaces the prior entry.
type VectorStore interface {
	Upsert(ctx context.Context, collection string, ids []string, embeddings [][]float32, metadatas []map[string]string, documents []string) error
	// Query returns the nResults nearest neighbours of embedding within the
	// collection. typeFilter, when non-empty, is an equality filter on the
	// "type" metadata field.
	Query(ctx context.Context, collection string, embedding []float32, nResults int, typeFilter string) (*QueryResult, error)
	Count(ctx context.Context, collection string) (int, error)
}

// JobStore persists ingestion job records. Progress writes are plain
// read-modify-write with a single expected writer per job.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.IngestionJob) error
	SetJobRunning(ctx context.Context, id string) error
	SetJobProgress(ctx context.Context, id string, progress int) error
	FinishJob(ctx context.Context, id string, status string, message string) error
	GetJob(ctx context.Context, id string) (*models.IngestionJob, error)
}

// DbClient defines all persistence operations the services need. It
// abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error

	VectorStore
	JobStore

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)

	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
