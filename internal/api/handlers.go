package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	corpuserrors "github.com/corpusqa/corpusqa/internal/errors"
	"github.com/corpusqa/corpusqa/internal/search"
	"github.com/corpusqa/corpusqa/internal/store"
)

type searchRequest struct {
	Query    string `json:"query" binding:"required"`
	ClientID string `json:"client_id"`
	TopK     int    `json:"top_k"`
}

type queryRequest struct {
	Question string `json:"question" binding:"required"`
	ClientID string `json:"client_id"`
	TopK     int    `json:"top_k"`
}

type resultChunk struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id,omitempty"`
	Score      float64 `json:"score"`
	Text       string  `json:"text,omitempty"`
	Heading    string  `json:"heading,omitempty"`
	ChunkType  string  `json:"chunk_type,omitempty"`
}

type searchResponse struct {
	Results   []resultChunk `json:"results"`
	Path      string        `json:"path"`
	Rerank    string        `json:"rerank"`
	LatencyMS int64         `json:"latency_ms"`
}

type queryResponse struct {
	Answer     string        `json:"answer"`
	Confidence float64       `json:"confidence"`
	Sources    []resultChunk `json:"sources"`
	Path       string        `json:"path"`
	Rerank     string        `json:"rerank"`
	LatencyMS  int64         `json:"latency_ms"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, corpuserrors.New(corpuserrors.ErrCodeInvalidInput, "invalid request body", err))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()

	result, err := s.service.Search(ctx, req.Query, search.Options{
		ClientID: req.ClientID,
		TopK:     req.TopK,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, searchResponse{
		Results:   toResultChunks(result.Candidates),
		Path:      string(result.Path),
		Rerank:    string(result.RerankOutcome),
		LatencyMS: result.Latency.Milliseconds(),
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, corpuserrors.New(corpuserrors.ErrCodeInvalidInput, "invalid request body", err))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()

	answer, err := s.service.Ask(ctx, req.Question, search.Options{
		ClientID: req.ClientID,
		TopK:     req.TopK,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, queryResponse{
		Answer:     answer.Text,
		Confidence: answer.Confidence,
		Sources:    toResultChunks(answer.Sources),
		Path:       string(answer.Path),
		Rerank:     string(answer.RerankOutcome),
		LatencyMS:  answer.Latency.Milliseconds(),
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

func toResultChunks(candidates []*search.Candidate) []resultChunk {
	out := make([]resultChunk, len(candidates))
	for i, cand := range candidates {
		rc := resultChunk{
			ChunkID: cand.ChunkID,
			Score:   cand.Score,
		}
		if cand.Chunk != nil {
			rc.DocumentID = cand.Chunk.DocumentID
			rc.Text = cand.Chunk.Text
			rc.Heading = cand.Chunk.Heading
			if cand.Chunk.ChunkType != store.ChunkTypeGeneral {
				rc.ChunkType = string(cand.Chunk.ChunkType)
			}
		}
		out[i] = rc
	}
	return out
}
