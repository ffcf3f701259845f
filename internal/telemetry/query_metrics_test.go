package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCountsPathsAndOutcomes(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "payment terms", Path: PathHybrid, RerankOutcome: RerankApplied, ResultCount: 5, Latency: 30 * time.Millisecond})
	m.Record(QueryEvent{Query: "notice period", Path: PathHybrid, RerankOutcome: RerankFailed, ResultCount: 3, Latency: 300 * time.Millisecond})
	m.Record(QueryEvent{Query: "missing thing", Path: PathLexicalOnly, RerankOutcome: RerankApplied, ResultCount: 0, Latency: 80 * time.Millisecond})

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.PathCounts[PathHybrid])
	assert.Equal(t, int64(1), s.PathCounts[PathLexicalOnly])
	assert.Equal(t, int64(2), s.RerankOutcomes[RerankApplied])
	assert.Equal(t, int64(1), s.RerankOutcomes[RerankFailed])
	assert.Equal(t, int64(3), s.TotalQueries)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, []string{"missing thing"}, s.ZeroResultQueries)
	assert.InDelta(t, 33.3, s.ZeroResultPercentage(), 0.1)
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d      time.Duration
		bucket LatencyBucket
	}{
		{10 * time.Millisecond, BucketP50},
		{100 * time.Millisecond, BucketP200},
		{300 * time.Millisecond, BucketP500},
		{time.Second, BucketP2000},
		{5 * time.Second, BucketSlow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.bucket, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"payment", "schedule"}, ExtractTerms("Payment of Schedule"))
	assert.Nil(t, ExtractTerms("a b"))
	assert.Nil(t, ExtractTerms("  "))
}

func TestCircularBufferEviction(t *testing.T) {
	b := NewCircularBuffer[int](3)
	for i := 1; i <= 5; i++ {
		b.Add(i)
	}

	assert.Equal(t, 3, b.Size())
	assert.Equal(t, []int{3, 4, 5}, b.Items())
}

func TestCircularBufferPartial(t *testing.T) {
	b := NewCircularBuffer[string](10)
	b.Add("one")
	b.Add("two")

	assert.Equal(t, []string{"one", "two"}, b.Items())
}

func TestTopTermsTracked(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "contract termination", Path: PathHybrid, ResultCount: 1})
	m.Record(QueryEvent{Query: "contract payment", Path: PathHybrid, ResultCount: 1})

	s := m.Snapshot()
	counts := map[string]int64{}
	for _, tc := range s.TopTerms {
		counts[tc.Term] = tc.Count
	}
	assert.Equal(t, int64(2), counts["contract"])
	assert.Equal(t, int64(1), counts["termination"])
}

func TestRecordAfterCloseIsNoop(t *testing.T) {
	m := NewQueryMetrics(nil)
	require.NoError(t, m.Close())

	m.Record(QueryEvent{Query: "after close", Path: PathHybrid, ResultCount: 1})
	assert.Equal(t, int64(0), m.Snapshot().TotalQueries)
}
