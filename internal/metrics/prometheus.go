package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alertwatch"

// Prometheus is a Recorder backed by Prometheus collectors.
type Prometheus struct {
	retrievalTotal   *prometheus.CounterVec
	retrievalSeconds *prometheus.HistogramVec
	retrievalResults *prometheus.HistogramVec
	cacheTotal       *prometheus.CounterVec
	embedSeconds     *prometheus.HistogramVec
	summaryTotal     *prometheus.CounterVec
	geocodeTotal     *prometheus.CounterVec
	toolTotal        *prometheus.CounterVec
	toolSeconds      *prometheus.HistogramVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		retrievalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of retrievals by strategy",
		}, []string{"mode", "success"}),
		retrievalSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_seconds",
			Help:      "Retrieval duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode", "success"}),
		retrievalResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results",
			Help:      "Number of alerts returned per retrieval",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}, []string{"mode"}),
		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by outcome",
		}, []string{"outcome"}),
		embedSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_seconds",
			Help:      "Embedding backend call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "success"}),
		summaryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summarizations_total",
			Help:      "Answers produced by outcome",
		}, []string{"outcome"}),
		geocodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_total",
			Help:      "Geocoding lookups",
		}, []string{"success"}),
		toolTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of MCP tool calls",
		}, []string{"tool", "success"}),
		toolSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_seconds",
			Help:      "MCP tool call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool", "success"}),
	}

	collectors := []prometheus.Collector{
		p.retrievalTotal, p.retrievalSeconds, p.retrievalResults,
		p.cacheTotal, p.embedSeconds, p.summaryTotal,
		p.geocodeTotal, p.toolTotal, p.toolSeconds,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) ObserveRetrieval(mode string, success bool, seconds float64, results int) {
	ok := strconv.FormatBool(success)
	p.retrievalTotal.WithLabelValues(mode, ok).Inc()
	p.retrievalSeconds.WithLabelValues(mode, ok).Observe(seconds)
	if success {
		p.retrievalResults.WithLabelValues(mode).Observe(float64(results))
	}
}

func (p *Prometheus) IncEmbeddingCache(outcome string) {
	p.cacheTotal.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ObserveEmbedding(provider string, success bool, seconds float64) {
	p.embedSeconds.WithLabelValues(provider, strconv.FormatBool(success)).Observe(seconds)
}

func (p *Prometheus) IncSummarization(outcome string) {
	p.summaryTotal.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) IncGeocode(success bool) {
	p.geocodeTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func (p *Prometheus) IncToolTotal(tool string, success bool) {
	p.toolTotal.WithLabelValues(tool, strconv.FormatBool(success)).Inc()
}

func (p *Prometheus) ObserveToolSeconds(tool string, success bool, seconds float64) {
	p.toolSeconds.WithLabelValues(tool, strconv.FormatBool(success)).Observe(seconds)
}

// Handler returns an HTTP handler exposing /metrics and /healthz.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve runs the metrics endpoint on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
