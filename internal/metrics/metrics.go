// ============================================================================
// Ledger client metrics - Prometheus instrumentation
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Counts what the execution and mirror engines do so operators can
// see retries, node health and latency without reading logs.
//
// Metric families:
//
//   1. Counters:
//      - ledger_attempts_total{request,node,class}: one per transmitted attempt,
//        labelled with the retry class the outcome was sorted into
//      - ledger_regenerations_total{request}: transaction ids replaced after
//        DUPLICATE_TRANSACTION / TRANSACTION_EXPIRED
//      - ledger_executions_total{request,result}: finished executions
//      - ledger_chunks_total{request}: chunks submitted by chunked operations
//      - ledger_mirror_reconnects_total{query,code,policy}
//      - ledger_mirror_messages_total{query}
//
//   2. Histogram:
//      - ledger_execution_seconds{request}: end-to-end latency including
//        every retry and backoff sleep
//
// Useful queries:
//
//   # share of attempts hitting throttling or unreachable nodes
//   sum(rate(ledger_attempts_total{class="transport"}[5m]))
//     / sum(rate(ledger_attempts_total[5m]))
//
//   # p95 execution latency
//   histogram_quantile(0.95, sum by (le) (rate(ledger_execution_seconds_bucket[5m])))
//
// HTTP endpoint:
//   Handler() serves the default registry in Prometheus text format; the
//   CLI mounts it at /metrics when metrics.listen is configured.
//
// ============================================================================

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc/codes"
)

// Collector implements the execution and mirror observers.
type Collector struct {
	attempts         *prometheus.CounterVec
	regenerations    *prometheus.CounterVec
	executions       *prometheus.CounterVec
	latency          *prometheus.HistogramVec
	chunks           *prometheus.CounterVec
	mirrorReconnects *prometheus.CounterVec
	mirrorMessages   *prometheus.CounterVec
}

// NewCollector creates the collector and registers it with the default
// registerer.
func NewCollector() *Collector {
	c := &Collector{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_attempts_total",
			Help: "Transmitted attempts by request kind, node and outcome class",
		}, []string{"request", "node", "class"}),
		regenerations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_regenerations_total",
			Help: "Transaction ids regenerated after an expired or duplicate rejection",
		}, []string{"request"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_executions_total",
			Help: "Finished executions by request kind and result",
		}, []string{"request", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_execution_seconds",
			Help:    "End-to-end execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"request"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_chunks_total",
			Help: "Chunks submitted by chunked operations",
		}, []string{"request"}),
		mirrorReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_mirror_reconnects_total",
			Help: "Mirror stream reconnects by status code and backoff policy",
		}, []string{"query", "code", "policy"}),
		mirrorMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_mirror_messages_total",
			Help: "Messages received from mirror streams",
		}, []string{"query"}),
	}

	prometheus.MustRegister(c.attempts)
	prometheus.MustRegister(c.regenerations)
	prometheus.MustRegister(c.executions)
	prometheus.MustRegister(c.latency)
	prometheus.MustRegister(c.chunks)
	prometheus.MustRegister(c.mirrorReconnects)
	prometheus.MustRegister(c.mirrorMessages)

	return c
}

func (c *Collector) ObserveAttempt(request string, node types.AccountID, class types.RetryClass) {
	c.attempts.WithLabelValues(request, node.String(), class.String()).Inc()
}

func (c *Collector) ObserveRegeneration(request string) {
	c.regenerations.WithLabelValues(request).Inc()
}

func (c *Collector) ObserveExecution(request string, d time.Duration, err error) {
	c.executions.WithLabelValues(request, resultLabel(err)).Inc()
	c.latency.WithLabelValues(request).Observe(d.Seconds())
}

func (c *Collector) ObserveChunk(request string) {
	c.chunks.WithLabelValues(request).Inc()
}

func (c *Collector) ObserveReconnect(query string, code codes.Code, bounded bool) {
	policy := "unbounded"
	if bounded {
		policy = "bounded"
	}
	c.mirrorReconnects.WithLabelValues(query, code.String(), policy).Inc()
}

func (c *Collector) ObserveMessage(query string) {
	c.mirrorMessages.WithLabelValues(query).Inc()
}

// resultLabel keeps label cardinality bounded: one value per error family.
func resultLabel(err error) string {
	var (
		preCheck  *types.PreCheckStatusError
		transport *types.TransportError
		cfgErr    *types.ConfigurationError
		signErr   *types.SigningError
	)
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, types.ErrTimedOut):
		return "timed_out"
	case errors.Is(err, types.ErrMaxAttemptsExceeded):
		return "max_attempts"
	case errors.As(err, &preCheck):
		return "precheck"
	case errors.As(err, &transport):
		return "transport"
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &signErr):
		return "signing"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

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
