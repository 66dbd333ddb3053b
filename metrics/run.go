package metrics

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/higress-group/expertbot/common/logger"
)

// RunMetrics is the per-run summary logged as one JSON line.
type RunMetrics struct {
	RunID     string    `json:"run_id"`
	Query     string    `json:"query"`
	Alias     string    `json:"alias"`
	Timestamp time.Time `json:"timestamp"`

	ExpandedQueries int `json:"expanded_queries"`
	Branches        int `json:"branches"`
	FailedBranches  int `json:"failed_branches"`
	Candidates      int `json:"candidates"`
	Fragments       int `json:"fragments"`

	VotingEnabled  bool   `json:"voting_enabled"`
	Verdict        string `json:"verdict,omitempty"`
	Fallback       bool   `json:"fallback"`
	FallbackReason string `json:"fallback_reason,omitempty"`

	StageLatencyMs map[string]int64 `json:"stage_latency_ms"`
	TotalLatencyMs int64            `json:"total_latency_ms"`
	Success        bool             `json:"success"`
	ErrorMsg       string           `json:"error_msg,omitempty"`

	mu sync.Mutex
}

// NewRunMetrics creates a metrics record stamped with the current time.
func NewRunMetrics(runID, query, alias string) *RunMetrics {
	return &RunMetrics{
		RunID:          runID,
		Query:          query,
		Alias:          alias,
		Timestamp:      time.Now(),
		StageLatencyMs: make(map[string]int64),
	}
}

// Stage records the latency of a stage in the run summary.
func (m *RunMetrics) Stage(stage string, start time.Time) {
	m.mu.Lock()
	m.StageLatencyMs[stage] = time.Since(start).Milliseconds()
	m.mu.Unlock()
}

// RecordFallback marks the run as answered with the sentinel.
func (m *RunMetrics) RecordFallback(reason string) {
	IncFallback(reason)
	m.Fallback = true
	m.FallbackReason = reason
}

// Finish stamps the total latency and outcome.
func (m *RunMetrics) Finish(err error) {
	m.TotalLatencyMs = time.Since(m.Timestamp).Milliseconds()
	m.Success = err == nil
	if err != nil {
		m.ErrorMsg = err.Error()
	}
}

// Log writes the metrics as a single JSON line.
func (m *RunMetrics) Log(log *logger.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, err := json.Marshal(m); err == nil {
		log.Infof("[RUN_METRICS] %s", string(data))
	}
}
