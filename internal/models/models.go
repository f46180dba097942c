package models

import (
	"fmt"
	"time"
)

// Chunk type values stored in vector-store metadata.
const (
	ChunkTypeText  = "text"
	ChunkTypeTable = "table"
)

// Ingestion job status values.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents one uploaded file.
type Document struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	StorageURL  string    `db:"storage_url" json:"storage_url"`
	ContentType string    `db:"content_type" json:"content_type"`
	Status      string    `db:"status" json:"status"` // uploaded | processing | ready | failed
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ChunkRecord is one retrievable unit produced by parsing and splitting.
// It is immutable once created and identified by a deterministic ID, so
// re-processing the same input overwrites rather than duplicates.
type ChunkRecord struct {
	DocID         string `json:"doc_id"`
	Source        string `json:"source"`
	Page          int    `json:"page"`
	ChunkIndex    int    `json:"chunk_index"`
	Type          string `json:"type"` // "text" or "table"
	Text          string `json:"text"`
	TableMarkdown string `json:"table_markdown,omitempty"`
}

// ID derives the chunk's vector-store key from its identity fields.
// The same (doc, page, type, index) always yields the same ID, which is
// what makes queue redelivery and re-ingestion harmless.
func (c *ChunkRecord) ID() string {
	if c.Type == ChunkTypeTable {
		return fmt.Sprintf("%s_%d_table_%d", c.DocID, c.Page, c.ChunkIndex)
	}
	return fmt.Sprintf("%s_%d_%d", c.DocID, c.Page, c.ChunkIndex)
}

// Metadata returns the flat metadata map stored alongside the embedding.
func (c *ChunkRecord) Metadata() map[string]string {
	m := map[string]string{
		"doc_id":      c.DocID,
		"source":      c.Source,
		"page":        fmt.Sprintf("%d", c.Page),
		"chunk_index": fmt.Sprintf("%d", c.ChunkIndex),
		"type":        c.Type,
	}
	if c.TableMarkdown != "" {
		m["table_markdown"] = c.TableMarkdown
	}
	return m
}

// IngestionJob tracks the state of one ingestion run. The indexer reports
// batch progress through a callback; the service persists it here.
type IngestionJob struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Status    string    `db:"status" json:"status"`
	Progress  int       `db:"progress" json:"progress"` // 0..100
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RetrievedCandidate is one ANN hit before reranking. VectorScore is a
// cosine distance: lower means more similar.
type RetrievedCandidate struct {
	Content     string            `json:"content"`
	Metadata    map[string]string `json:"metadata"`
	VectorScore float64           `json:"vector_score"`
}

// RankedCandidate is a retrieved candidate after cross-encoder scoring.
// CrossScore is only meaningful once the reranker has run; higher is better.
type RankedCandidate struct {
	RetrievedCandidate
	CrossScore float64 `json:"cross_score"`
}

// IngestResult is the outcome of one ingestion run.
type IngestResult struct {
	Status     string `json:"status"` // "success" or "no_documents"
	DocCount   int    `json:"documents"`
	ChunkCount int    `json:"chunks"`
}

// Answer is the final payload of the answering pipeline.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}
