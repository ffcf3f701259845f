// Package rerank calls the cross-encoder reranking service.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/corpusqa/corpusqa/internal/errors"
)

const (
	// DefaultTimeout bounds a single rerank call including the retry.
	DefaultTimeout = 5 * time.Second

	// DefaultTopK is the number of documents requested back.
	DefaultTopK = 10
)

// Document is one candidate sent for scoring.
type Document struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Result is one scored document. Score is a relevance probability in
// [0, 1]; Rank is the 1-based position after sorting by score.
type Result struct {
	ID            string  `json:"id"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	Rank          int     `json:"rank"`
	OriginalIndex int     `json:"original_index"`
}

// Reranker scores candidates against a query with a cross-encoder.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []Document, topK int) ([]Result, error)
	Available(ctx context.Context) bool
}

// Config configures the rerank client.
type Config struct {
	// URL is the service base URL (e.g., http://localhost:8001).
	URL string

	// Timeout bounds one Rerank call including its retry.
	Timeout time.Duration

	// MaxFailures opens the circuit after this many consecutive errors.
	MaxFailures int
}

// Client is an HTTP client for the rerank service. Failures trip a
// circuit breaker so callers fall back without waiting on timeouts.
type Client struct {
	http    *http.Client
	url     string
	timeout time.Duration
	breaker *errors.CircuitBreaker
}

var _ Reranker = (*Client)(nil)

// NewClient creates a rerank client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	return &Client{
		http:    &http.Client{},
		url:     cfg.URL,
		timeout: cfg.Timeout,
		breaker: errors.NewCircuitBreaker("rerank", errors.WithMaxFailures(cfg.MaxFailures)),
	}
}

type rerankRequest struct {
	Query     string     `json:"query"`
	Documents []Document `json:"documents"`
	TopK      int        `json:"top_k"`
}

type rerankResponse struct {
	Results []Result `json:"results"`
}

// Rerank scores docs against query and returns the top K by relevance.
// One retry is attempted inside the configured timeout; any further
// failure is reported to the circuit breaker and surfaced to the caller.
func (c *Client) Rerank(ctx context.Context, query string, docs []Document, topK int) ([]Result, error) {
	if len(docs) == 0 {
		return []Result{}, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	if !c.breaker.Allow() {
		return nil, errors.Wrap(errors.ErrCodeRerankFailed, errors.ErrCircuitOpen)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results, err := errors.RetryWithResult(ctx, errors.SingleRetryConfig(), func() ([]Result, error) {
		return c.doRerank(ctx, query, docs, topK)
	})
	if err != nil {
		c.breaker.RecordFailure()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.TimeoutError("rerank call timed out", err)
		}
		return nil, errors.Wrap(errors.ErrCodeRerankFailed, err)
	}

	c.breaker.RecordSuccess()
	return results, nil
}

func (c *Client) doRerank(ctx context.Context, query string, docs []Document, topK int) ([]Result, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Documents: docs, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	if out.Results == nil {
		out.Results = []Result{}
	}
	return out.Results, nil
}

// Available probes the service health endpoint.
func (c *Client) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
