package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)

	p.ObserveRetrieval("semantic", true, 0.02, 3)
	p.ObserveRetrieval("keyword", true, 0.01, 1)
	p.ObserveRetrieval("semantic", false, 0.5, 0)
	p.IncEmbeddingCache(CacheHit)
	p.IncEmbeddingCache(CacheHit)
	p.IncEmbeddingCache(CacheComputed)
	p.IncSummarization(SummaryFallback)
	p.IncGeocode(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.retrievalTotal.WithLabelValues("semantic", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.retrievalTotal.WithLabelValues("semantic", "false")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.cacheTotal.WithLabelValues(CacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cacheTotal.WithLabelValues(CacheComputed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.summaryTotal.WithLabelValues(SummaryFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.geocodeTotal.WithLabelValues("false")))
}

func TestPrometheusDoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheus(reg)
	require.NoError(t, err)

	_, err = NewPrometheus(reg)
	assert.Error(t, err)
}

func TestTimeTool(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)

	done := TimeTool(p, "query_alerts")
	done(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.toolTotal.WithLabelValues("query_alerts", "true")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.toolSeconds))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)
	p.IncEmbeddingCache(CacheStoreHit)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `alertwatch_embedding_cache_total{outcome="store_hit"} 1`))

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, Noop{}, OrNoop(nil))

	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)
	assert.Same(t, p, OrNoop(p))
}
