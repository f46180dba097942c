// Package rerank provides a cross-encoder scoring client.
//
// The scorer speaks the text-embeddings-inference style /rerank protocol:
// the model receives each (query, passage) pair jointly and returns a
// relevance score per passage, which is finer-grained than comparing
// independently produced vectors.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ShriAmogh/artikate-assignment/internal/core"
)

// Default configuration values.
const (
	DefaultModel   = "cross-encoder/ms-marco-MiniLM-L-6-v2"
	DefaultTimeout = 30 * time.Second
)

// Config holds configuration for the rerank client.
type Config struct {
	// BaseURL of the reranker service (required).
	BaseURL string

	// Model is the cross-encoder model identifier.
	Model string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration
}

// Client scores (query, passage) pairs against a hosted cross-encoder.
type Client struct {
	client  *http.Client
	baseURL string
	model   string
}

type rerankRequest struct {
	Model string   `json:"model,omitempty"`
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewClient creates a new cross-encoder client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rerank: base URL is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
	}, nil
}

// Score returns one relevance score per passage, in passage order.
func (c *Client) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{Model: c.model, Query: query, Texts: passages})
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rerank: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank: service returned %d: %s", resp.StatusCode, msg)
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("rerank: decode response: %w", err)
	}
	if len(results) != len(passages) {
		return nil, fmt.Errorf("rerank: got %d scores for %d passages", len(results), len(passages))
	}

	// The service orders results by score; map them back to passage order.
	scores := make([]float64, len(passages))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(scores) {
			return nil, fmt.Errorf("rerank: result index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
	}
	return scores, nil
}

var _ core.CrossEncoder = (*Client)(nil)
