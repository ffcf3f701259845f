// Package telemetry collects query pipeline metrics. All data stays
// local; nothing is reported externally.
package telemetry

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PipelinePath identifies which retrieval path served a query.
type PipelinePath string

const (
	PathHybrid      PipelinePath = "hybrid"
	PathLexicalOnly PipelinePath = "lexical_only"
	PathDegraded    PipelinePath = "degraded"
)

// RerankOutcome identifies how reranking concluded for a query.
type RerankOutcome string

const (
	RerankApplied  RerankOutcome = "rerank_applied"
	RerankDisabled RerankOutcome = "rerank_disabled"
	RerankFailed   RerankOutcome = "rerank_failed"
	RerankSkipped  RerankOutcome = "rerank_skipped"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP50   LatencyBucket = "p50"   // <50ms
	BucketP200  LatencyBucket = "p200"  // 50-200ms
	BucketP500  LatencyBucket = "p500"  // 200-500ms
	BucketP2000 LatencyBucket = "p2000" // 500ms-2s
	BucketSlow  LatencyBucket = "slow"  // >=2s
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 50:
		return BucketP50
	case ms < 200:
		return BucketP200
	case ms < 500:
		return BucketP500
	case ms < 2000:
		return BucketP2000
	default:
		return BucketSlow
	}
}

// QueryEvent represents one served query for metrics recording.
type QueryEvent struct {
	Query         string
	Path          PipelinePath
	RerankOutcome RerankOutcome
	ResultCount   int
	Confidence    float64
	Latency       time.Duration
	Timestamp     time.Time
}

// IsZeroResult returns true if this query returned no results.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in FIFO order (oldest first).
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms extracts searchable terms from a query string.
// Terms are lowercased and filtered to minimum length 3.
func ExtractTerms(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var terms []string
	for _, w := range strings.Fields(query) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	if len(terms) == 0 {
		return nil
	}
	return terms
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of collected query metrics.
type Snapshot struct {
	PathCounts          map[PipelinePath]int64  `json:"path_counts"`
	RerankOutcomes      map[RerankOutcome]int64 `json:"rerank_outcomes"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Config configures the query metrics collector.
type Config struct {
	TopTermsCapacity    int           // Max terms to track (default: 100)
	ZeroResultsCapacity int           // Max zero-result queries to keep (default: 100)
	FlushInterval       time.Duration // Flush cadence to store (0 = no auto-flush)
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 100,
		FlushInterval:       60 * time.Second,
	}
}

// QueryMetrics collects query telemetry. Thread-safe.
type QueryMetrics struct {
	mu sync.RWMutex

	paths           map[PipelinePath]int64
	rerankOutcomes  map[RerankOutcome]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	startTime       time.Time

	store       MetricsStore
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// NewQueryMetrics creates a metrics collector with default configuration.
// If store is nil, metrics are only kept in memory.
func NewQueryMetrics(store MetricsStore) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultConfig())
}

// NewQueryMetricsWithConfig creates a metrics collector.
func NewQueryMetricsWithConfig(store MetricsStore, cfg Config) *QueryMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)

	m := &QueryMetrics{
		paths:          make(map[PipelinePath]int64),
		rerankOutcomes: make(map[RerankOutcome]int64),
		topTerms:       topTerms,
		zeroResults:    NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:      make(map[LatencyBucket]int64),
		startTime:      time.Now(),
		store:          store,
		stopCh:         make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}

	return m
}

func (m *QueryMetrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// Record captures metrics from a served query. Non-blocking.
func (m *QueryMetrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.paths[event.Path]++
	if event.RerankOutcome != "" {
		m.rerankOutcomes[event.RerankOutcome]++
	}
	m.totalQueries++

	for _, term := range ExtractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}

	if event.IsZeroResult() {
		m.zeroResults.Add(event.Query)
		m.zeroResultCount++
	}

	m.latencies[LatencyToBucket(event.Latency)]++
}

// Snapshot returns a copy of the current metrics.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make(map[PipelinePath]int64, len(m.paths))
	for k, v := range m.paths {
		paths[k] = v
	}
	outcomes := make(map[RerankOutcome]int64, len(m.rerankOutcomes))
	for k, v := range m.rerankOutcomes {
		outcomes[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	terms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}

	return &Snapshot{
		PathCounts:          paths,
		RerankOutcomes:      outcomes,
		TopTerms:            terms,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		Since:               m.startTime,
	}
}

// Flush persists in-memory aggregates to the store and resets the daily
// counters. No-op without a store.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	paths := m.paths
	outcomes := m.rerankOutcomes
	latencies := m.latencies
	m.paths = make(map[PipelinePath]int64)
	m.rerankOutcomes = make(map[RerankOutcome]int64)
	m.latencies = make(map[LatencyBucket]int64)

	terms := make(map[string]int64, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms[key] = count
		}
	}
	m.topTerms.Purge()

	zeroQueries := m.zeroResults.Items()
	m.zeroResults = NewCircularBuffer[string](m.zeroResults.capacity)
	m.mu.Unlock()

	date := time.Now().Format("2006-01-02")
	if err := m.store.SavePathCounts(date, paths); err != nil {
		return err
	}
	if err := m.store.SaveRerankOutcomes(date, outcomes); err != nil {
		return err
	}
	if err := m.store.SaveLatencyCounts(date, latencies); err != nil {
		return err
	}
	if err := m.store.UpsertTermCounts(terms); err != nil {
		return err
	}
	for _, q := range zeroQueries {
		if err := m.store.AddZeroResultQuery(q, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes pending data and stops the background flusher.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}
	return m.Flush()
}
