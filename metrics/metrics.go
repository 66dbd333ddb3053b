package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	stageLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "expertbot_stage_latency_ms",
		Help:    "Latency of pipeline stages in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
	}, []string{"stage"})

	retrieverLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "expertbot_retriever_latency_ms",
		Help:    "Latency of retriever calls in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 200, 500, 1000, 2000, 5000, 15000},
	}, []string{"type"})

	retrieverResults = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "expertbot_retriever_results",
		Help:    "Number of candidate documents returned by a retriever",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	}, []string{"type"})

	retrievalBranches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expertbot_retrieval_branches_total",
		Help: "Retrieval fan-out branches by outcome",
	}, []string{"type", "outcome"})

	intents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expertbot_intent_total",
		Help: "Classified intents",
	}, []string{"intent"})

	votingVerdict = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expertbot_voting_verdict_total",
		Help: "Voting verdicts",
	}, []string{"verdict"})

	fallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expertbot_fallback_total",
		Help: "Runs answered with the fallback sentinel",
	}, []string{"reason"})

	recordWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expertbot_record_writes_total",
		Help: "Run record writes by sink and outcome",
	}, []string{"sink", "outcome"})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expertbot_retrieval_cache_total",
		Help: "Retrieval cache lookups by backend and result",
	}, []string{"type", "result"})

	requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expertbot_requests_total",
		Help: "Answered requests by entry point and status",
	}, []string{"entry", "status"})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}

// Register installs the collectors on the default registry. Safe to call repeatedly.
func Register() { ensureRegistered() }

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, start time.Time) {
	ensureRegistered()
	stageLatency.WithLabelValues(stage).Observe(float64(time.Since(start).Milliseconds()))
}

// ObserveRetriever records latency, result size and outcome for a retriever call.
func ObserveRetriever(typ string, start time.Time, results int, err error) {
	ensureRegistered()
	retrieverLatency.WithLabelValues(typ).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		retrievalBranches.WithLabelValues(typ, "failed").Inc()
		return
	}
	retrievalBranches.WithLabelValues(typ, "ok").Inc()
	retrieverResults.WithLabelValues(typ).Observe(float64(results))
}

// IncIntent counts a classification result.
func IncIntent(intent string) {
	ensureRegistered()
	intents.WithLabelValues(intent).Inc()
}

// IncVerdict counts a voting verdict.
func IncVerdict(v string) {
	ensureRegistered()
	votingVerdict.WithLabelValues(v).Inc()
}

// IncFallback counts a sentinel answer.
func IncFallback(reason string) {
	ensureRegistered()
	fallbacks.WithLabelValues(reason).Inc()
}

// IncRecordWrite counts a record write attempt.
func IncRecordWrite(sink string, err error) {
	ensureRegistered()
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	recordWrites.WithLabelValues(sink, outcome).Inc()
}

// IncCacheLookup counts a retrieval cache hit or miss.
func IncCacheLookup(typ string, hit bool) {
	ensureRegistered()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(typ, result).Inc()
}

// IncRequest counts an answered request.
func IncRequest(entry string, status int) {
	ensureRegistered()
	requests.WithLabelValues(entry, statusClass(status)).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

// Collectors exposes all collectors for external registration with a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		stageLatency, retrieverLatency, retrieverResults, retrievalBranches,
		intents, votingVerdict, fallbacks, recordWrites, cacheLookups, requests,
	}
}
