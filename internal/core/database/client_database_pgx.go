package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ShriAmogh/artikate-assignment/internal/config"
	"github.com/ShriAmogh/artikate-assignment/internal/core"
	"github.com/ShriAmogh/artikate-assignment/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()), COALESCE($6, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.FirstName, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, user_id, file_name, storage_url, content_type, status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, COALESCE($7, now()), COALESCE($8, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.UserID, doc.FileName, doc.StorageURL, doc.ContentType, doc.Status, doc.CreatedAt, doc.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, user_id, file_name, storage_url, content_type, status, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.UserID, &d.FileName, &d.StorageURL, &d.ContentType, &d.Status, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	const q = `
		SELECT id, user_id, file_name, storage_url, content_type, status, created_at, updated_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.FileName, &d.StorageURL, &d.ContentType, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// Ingestion jobs

func (c *DatabaseClient) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	const q = `
		INSERT INTO ingestion_jobs (id, user_id, status, progress, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()), COALESCE($7, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		job.ID, job.UserID, job.Status, job.Progress, job.Message, job.CreatedAt, job.UpdatedAt)
	return err
}

func (c *DatabaseClient) SetJobRunning(ctx context.Context, id string) error {
	const q = `
		UPDATE ingestion_jobs
		SET status = 'running', progress = 0, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id)
	return err
}

func (c *DatabaseClient) SetJobProgress(ctx context.Context, id string, progress int) error {
	const q = `
		UPDATE ingestion_jobs
		SET progress = $2, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, progress)
	return err
}

func (c *DatabaseClient) FinishJob(ctx context.Context, id string, status string, message string) error {
	const q = `
		UPDATE ingestion_jobs
		SET status = $2, message = $3,
		    progress = CASE WHEN $2 = 'completed' THEN 100 ELSE progress END,
		    updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, status, message)
	return err
}

func (c *DatabaseClient) GetJob(ctx context.Context, id string) (*models.IngestionJob, error) {
	const q = `
		SELECT id, user_id, status, progress, message, created_at, updated_at
		FROM ingestion_jobs
		WHERE id = $1
	`
	var j models.IngestionJob
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&j.ID, &j.UserID, &j.Status, &j.Progress, &j.Message, &j.CreatedAt, &j.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Vector store

// Upsert writes a batch of chunks into a collection in one transaction.
// Rows are keyed on (collection, id); a repeated id replaces the prior row,
// which is what makes at-least-once queue consumption safe.
func (c *DatabaseClient) Upsert(ctx context.Context, collection string, ids []string, embeddings [][]float32, metadatas []map[string]string, documents []string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(embeddings) != len(ids) || len(metadatas) != len(ids) || len(documents) != len(ids) {
		return fmt.Errorf("upsert: mismatched lengths: %d ids, %d embeddings, %d metadatas, %d documents",
			len(ids), len(embeddings), len(metadatas), len(documents))
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO chunks (collection, id, embedding, text, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection, id) DO UPDATE
		SET embedding = EXCLUDED.embedding,
		    text = EXCLUDED.text,
		    metadata = EXCLUDED.metadata
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range ids {
		meta, err := json.Marshal(metadatas[i])
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal metadata for %s: %w", ids[i], err)
		}
		vec := pgvector.NewVector(embeddings[i])
		if _, err := stmt.ExecContext(ctx, collection, ids[i], vec, documents[i], meta); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert chunk %s: %w", ids[i], err)
		}
	}
	return tx.Commit()
}

// Query returns the nResults nearest chunks by cosine distance. A non-empty
// typeFilter restricts hits to rows whose metadata "type" equals it.
func (c *DatabaseClient) Query(ctx context.Context, collection string, embedding []float32, nResults int, typeFilter string) (*core.QueryResult, error) {
	const q = `
		SELECT id, text, metadata, embedding <=> $2 AS distance
		FROM chunks
		WHERE collection = $1
		  AND ($3 = '' OR metadata ->> 'type' = $3)
		ORDER BY embedding <=> $2
		LIMIT $4
	`
	vec := pgvector.NewVector(embedding)
	rows, err := c.db.QueryContext(ctx, q, collection, vec, typeFilter, nResults)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := &core.QueryResult{}
	for rows.Next() {
		var (
			id, text string
			metaRaw  []byte
			dist     float64
		)
		if err := rows.Scan(&id, &text, &metaRaw, &dist); err != nil {
			return nil, err
		}
		meta := map[string]string{}
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for %s: %w", id, err)
		}
		res.IDs = append(res.IDs, id)
		res.Documents = append(res.Documents, text)
		res.Metadatas = append(res.Metadatas, meta)
		res.Distances = append(res.Distances, dist)
	}
	return res, rows.Err()
}

func (c *DatabaseClient) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM chunks WHERE collection = $1`, collection).Scan(&n)
	return n, err
}

var _ core.DbClient = (*DatabaseClient)(nil)
