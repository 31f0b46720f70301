package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationGet records decision cache reads.
	CacheOperationGet CacheOperation = "get"
	// CacheOperationSet records decision cache writes.
	CacheOperationSet CacheOperation = "set"
)

// CacheOutcome captures the result of a cache operation.
type CacheOutcome string

const (
	// CacheHit indicates a read returned a cached decision.
	CacheHit CacheOutcome = "hit"
	// CacheMiss indicates no cached decision was present.
	CacheMiss CacheOutcome = "miss"
	// CacheStored indicates a decision was persisted.
	CacheStored CacheOutcome = "stored"
	// CacheError indicates the backend call failed.
	CacheError CacheOutcome = "error"
)

// ResolverOutcome captures the result of a reverse-DNS or ASN lookup.
type ResolverOutcome string

const (
	ResolverOK    ResolverOutcome = "ok"
	ResolverError ResolverOutcome = "error"
)

// Recorder publishes Prometheus metrics for whitelist engine activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	decisions       *prometheus.CounterVec
	decisionLatency *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec

	resolverLookups *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist without
// conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whitelist",
		Subsystem: "engine",
		Name:      "decisions_total",
		Help:      "Total whitelist decisions rendered by the engine.",
	}, []string{"scope", "outcome", "from_cache"})

	decisionLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "whitelist",
		Subsystem: "engine",
		Name:      "decision_duration_seconds",
		Help:      "Latency distribution for completed whitelist decisions.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"scope", "outcome"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whitelist",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Decision cache operations executed by the engine.",
	}, []string{"operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "whitelist",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for decision cache operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"operation", "result"})

	resolverLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whitelist",
		Subsystem: "resolver",
		Name:      "lookups_total",
		Help:      "Reverse-DNS and ASN lookups attempted by the IP matcher.",
	}, []string{"lookup", "result"})

	reg.MustRegister(decisions, decisionLatency, cacheOperations, cacheLatency, resolverLookups)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:        reg,
		handler:         handler,
		decisions:       decisions,
		decisionLatency: decisionLatency,
		cacheOperations: cacheOperations,
		cacheLatency:    cacheLatency,
		resolverLookups: resolverLookups,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveDecision records the outcome and latency of a completed decision.
func (r *Recorder) ObserveDecision(scope, outcome string, fromCache bool, duration time.Duration) {
	if r == nil {
		return
	}
	scopeLabel := normalizeLabel(scope)
	outcomeLabel := normalizeLabel(outcome)
	cacheLabel := "false"
	if fromCache {
		cacheLabel = "true"
	}
	r.decisions.WithLabelValues(scopeLabel, outcomeLabel, cacheLabel).Inc()
	r.decisionLatency.WithLabelValues(scopeLabel, outcomeLabel).Observe(duration.Seconds())
}

// ObserveCache records the result of a cache get or set.
func (r *Recorder) ObserveCache(operation CacheOperation, result CacheOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	opLabel := string(operation)
	if opLabel == "" {
		opLabel = string(CacheOperationGet)
	}
	resLabel := normalizeLabel(string(result))
	r.cacheOperations.WithLabelValues(opLabel, resLabel).Inc()
	r.cacheLatency.WithLabelValues(opLabel, resLabel).Observe(duration.Seconds())
}

// ObserveResolver records a reverse-DNS or ASN lookup attempt.
func (r *Recorder) ObserveResolver(lookup string, result ResolverOutcome) {
	if r == nil {
		return
	}
	r.resolverLookups.WithLabelValues(normalizeLabel(lookup), string(result)).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
