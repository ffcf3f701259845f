package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"
)

const textAnalyzerName = "chunk_text"

// BleveIndex implements LexicalIndex on Bleve v2. Chunk text and heading are
// analyzed; client id is indexed verbatim for tenant filtering; the ordinal
// is stored for deterministic tie-breaking.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

type bleveChunk struct {
	Text     string  `json:"text"`
	Heading  string  `json:"heading"`
	ClientID string  `json:"client_id"`
	Ordinal  float64 `json:"ordinal"`
}

// NewBleveIndex creates or opens a lexical index at path.
// An empty path creates an in-memory index (used by tests and bootstrap).
func NewBleveIndex(path string) (*BleveIndex, error) {
	indexMapping, err := createChunkMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	return &BleveIndex{index: idx}, nil
}

func createChunkMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	// Unicode tokenizer handles the mixed Cyrillic/Latin corpus; stemming is
	// deliberately off so the relevance statistic stays language-neutral.
	err := indexMapping.AddCustomAnalyzer(textAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = textAnalyzerName

	clientField := bleve.NewTextFieldMapping()
	clientField.Analyzer = keyword.Name

	ordinalField := bleve.NewNumericFieldMapping()
	ordinalField.Store = true
	ordinalField.Index = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("text", textField)
	doc.AddFieldMappingsAt("heading", textField)
	doc.AddFieldMappingsAt("client_id", clientField)
	doc.AddFieldMappingsAt("ordinal", ordinalField)

	indexMapping.DefaultMapping = doc
	indexMapping.DefaultAnalyzer = textAnalyzerName

	return indexMapping, nil
}

// Index adds chunks to the lexical index in one batch.
func (b *BleveIndex) Index(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	for _, c := range chunks {
		doc := bleveChunk{
			Text:     c.Text,
			Heading:  c.Heading,
			ClientID: c.ClientID,
			Ordinal:  float64(c.Ordinal),
		}
		if err := batch.Index(c.ChunkID, doc); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ChunkID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}

	return nil
}

// Search implements LexicalIndex.
func (b *BleveIndex) Search(ctx context.Context, query string, filter Filter, limit int) ([]*LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []*LexicalResult{}, nil
	}

	textQuery := bleve.NewMatchQuery(query)
	textQuery.SetField("text")
	headingQuery := bleve.NewMatchQuery(query)
	headingQuery.SetField("heading")

	var q bleveQuery.Query = bleve.NewDisjunctionQuery(textQuery, headingQuery)
	if filter.ClientID != "" {
		clientQuery := bleve.NewTermQuery(filter.ClientID)
		clientQuery.SetField("client_id")
		q = bleve.NewConjunctionQuery(q, clientQuery)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"ordinal"}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	results := make([]*LexicalResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ordinal := 0
		if v, ok := hit.Fields["ordinal"].(float64); ok {
			ordinal = int(v)
		}
		results = append(results, &LexicalResult{
			ChunkID: hit.ID,
			Score:   hit.Score,
			Ordinal: ordinal,
		})
	}

	// Bleve orders by score; equal scores get the documented ordinal
	// tie-break for full determinism.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Ordinal < results[j].Ordinal
	})

	return results, nil
}

// Count returns the number of indexed chunks.
func (b *BleveIndex) Count() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("lexical index is closed")
	}
	n, err := b.index.DocCount()
	return int(n), err
}

// Close releases index resources.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

var _ LexicalIndex = (*BleveIndex)(nil)
