package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// filterOverFetch is how many extra candidates to pull from the graph when a
// tenant filter is active. The graph is not partitioned per client, so the
// filter is applied after the nearest-neighbor pass.
const filterOverFetch = 4

// HNSWIndex implements VectorIndex on the coder/hnsw pure-Go graph.
// Cosine metric; vectors are normalized on insert and query.
type HNSWIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int

	idMap   map[string]uint64
	keyMap  map[uint64]string
	meta    map[uint64]vectorMeta
	nextKey uint64

	closed bool
}

type vectorMeta struct {
	clientID string
	ordinal  int
}

// NewHNSWIndex creates an empty vector index for embeddings of the given
// dimensionality.
func NewHNSWIndex(dims int) (*HNSWIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid embedding dimensionality %d", dims)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:  graph,
		dims:   dims,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		meta:   make(map[uint64]vectorMeta),
	}, nil
}

// Add inserts chunk embeddings. Chunks without an embedding are skipped.
// Dimensionality is enforced here, never per query.
func (s *HNSWIndex) Add(ctx context.Context, chunks []*Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		if len(c.Embedding) != s.dims {
			return DimensionError{Expected: s.dims, Got: len(c.Embedding)}
		}

		// Re-adding an id orphans the old graph node (lazy deletion);
		// coder/hnsw misbehaves when the last node is removed outright.
		if oldKey, exists := s.idMap[c.ChunkID]; exists {
			delete(s.keyMap, oldKey)
			delete(s.meta, oldKey)
			delete(s.idMap, c.ChunkID)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(c.Embedding))
		copy(vec, c.Embedding)
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[c.ChunkID] = key
		s.keyMap[key] = c.ChunkID
		s.meta[key] = vectorMeta{clientID: c.ClientID, ordinal: c.Ordinal}
	}

	return nil
}

// Search implements VectorIndex.
func (s *HNSWIndex) Search(ctx context.Context, embedding []float32, filter Filter, limit int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(embedding) != s.dims {
		return nil, DimensionError{Expected: s.dims, Got: len(embedding)}
	}
	if limit <= 0 || s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	query := make([]float32, len(embedding))
	copy(query, embedding)
	normalizeVectorInPlace(query)

	k := limit
	if filter.ClientID != "" {
		k = limit * filterOverFetch
	}

	nodes := s.graph.Search(query, k)

	results := make([]*VectorResult, 0, limit)
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // lazily deleted
		}
		m := s.meta[node.Key]
		if filter.ClientID != "" && m.clientID != filter.ClientID {
			continue
		}

		distance := s.graph.Distance(query, node.Value)
		results = append(results, &VectorResult{
			ChunkID: id,
			Score:   cosineDistanceToScore(distance),
			Ordinal: m.ordinal,
		})
		if len(results) == limit {
			break
		}
	}

	return results, nil
}

// Count returns the number of live vectors.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Close releases the index. The graph is in-memory only; it is rebuilt from
// the chunk store on startup.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// cosineDistanceToScore maps cosine distance (0..2) to a similarity in [0,1].
func cosineDistanceToScore(distance float32) float64 {
	score := 1.0 - float64(distance)/2.0
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := 1.0 / math.Sqrt(sumSquares)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

var _ VectorIndex = (*HNSWIndex)(nil)
