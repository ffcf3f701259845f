package telemetry

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newTestMetricsStore(t *testing.T) *SQLiteMetricsStore {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)
	return s
}

func TestSavePathCountsAccumulates(t *testing.T) {
	s := newTestMetricsStore(t)

	require.NoError(t, s.SavePathCounts("2026-08-31", map[PipelinePath]int64{PathHybrid: 3}))
	require.NoError(t, s.SavePathCounts("2026-08-31", map[PipelinePath]int64{PathHybrid: 2, PathDegraded: 1}))

	var count int64
	require.NoError(t, s.db.QueryRow(
		`SELECT count FROM pipeline_path_stats WHERE date = ? AND path = ?`,
		"2026-08-31", string(PathHybrid)).Scan(&count))
	assert.Equal(t, int64(5), count)
}

func TestUpsertTermCounts(t *testing.T) {
	s := newTestMetricsStore(t)

	require.NoError(t, s.UpsertTermCounts(map[string]int64{"contract": 2}))
	require.NoError(t, s.UpsertTermCounts(map[string]int64{"contract": 3, "invoice": 1}))

	var count int64
	require.NoError(t, s.db.QueryRow(
		`SELECT count FROM query_terms WHERE term = ?`, "contract").Scan(&count))
	assert.Equal(t, int64(5), count)
}

func TestZeroResultQueriesTrimmedTo100(t *testing.T) {
	s := newTestMetricsStore(t)

	for i := 0; i < 105; i++ {
		require.NoError(t, s.AddZeroResultQuery("query", time.Now()))
	}

	queries, err := s.GetZeroResultQueries(200)
	require.NoError(t, err)
	assert.Len(t, queries, 100)
}

func TestMetricsFlushToStore(t *testing.T) {
	s := newTestMetricsStore(t)
	m := NewQueryMetricsWithConfig(s, Config{FlushInterval: 0})

	m.Record(QueryEvent{Query: "flush me", Path: PathHybrid, RerankOutcome: RerankApplied, ResultCount: 0, Latency: 20 * time.Millisecond})
	require.NoError(t, m.Flush())

	queries, err := s.GetZeroResultQueries(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"flush me"}, queries)

	var count int64
	require.NoError(t, s.db.QueryRow(
		`SELECT count FROM rerank_outcome_stats WHERE outcome = ?`,
		string(RerankApplied)).Scan(&count))
	assert.Equal(t, int64(1), count)
}
