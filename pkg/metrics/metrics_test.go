package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsesPrivateRegistry(t *testing.T) {
	// Two instances in one process must not collide on registration.
	a := New()
	b := New()
	a.CacheHitsTotal.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.CacheHitsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CacheHitsTotal))
}

func TestObserveCounts(t *testing.T) {
	m := New()
	m.ObserveCounts("total", 3, 8, 25)
	m.ObserveCounts("total", 1, 2, 5)
	m.ObserveCounts("match", 2, 6, 15)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.SegmentsTotal.WithLabelValues("total")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.WordsTotal.WithLabelValues("total")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.CharactersTotal.WithLabelValues("match")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.MemoryEntries.Set(42)
	m.ObserveStage("analyze", 3*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "filecount_memory_entries 42")
	assert.Contains(t, string(body), `filecount_stage_duration_seconds_count{stage="analyze"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
