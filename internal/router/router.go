// Package router selects the answering backend for each query and
// keeps an audit trail of why.
package router

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kabrony/VOTSai/internal/backend"
	"github.com/kabrony/VOTSai/internal/intent"
)

// Request contains the routing inputs for one query.
type Request struct {
	Query       string // Preprocessed query text
	Override    string // Explicit backend choice, empty for automatic
	WebPriority bool   // Caller wants fresh web data
	Intent      string // Classifier label
}

// Decision records why a backend was selected. Decisions are kept in a
// bounded audit log so operators can inspect recent routing behavior.
type Decision struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	QueryLength int    `json:"query_length"`
	Override    string `json:"override,omitempty"`
	WebPriority bool   `json:"web_priority"`
	Intent      string `json:"intent"`

	Backend   string `json:"backend"`
	Reasoning string `json:"reasoning"`

	// Post-execution, filled in by RecordOutcome.
	LatencyMs  int64 `json:"latency_ms,omitempty"`
	TokensUsed int   `json:"tokens_used,omitempty"`
	Success    *bool `json:"success,omitempty"`
}

// Stats tracks routing counters.
type Stats struct {
	TotalRequests int64            `json:"total_requests"`
	BackendCounts map[string]int64 `json:"backend_counts"`
	IntentCounts  map[string]int64 `json:"intent_counts"`
	OverrideCount int64            `json:"override_count"`
	AvgLatencyMs  map[string]int64 `json:"avg_latency_ms"`
}

// Router applies the selection precedence and records decisions.
type Router struct {
	logger      *slog.Logger
	maxAuditLog int

	mu       sync.RWMutex
	auditLog []Decision
	stats    Stats
}

// New creates a router. maxAuditLog <= 0 keeps the default of 1000
// decisions.
func New(logger *slog.Logger, maxAuditLog int) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAuditLog <= 0 {
		maxAuditLog = 1000
	}
	return &Router{
		logger:      logger,
		maxAuditLog: maxAuditLog,
		auditLog:    make([]Decision, 0, maxAuditLog),
		stats: Stats{
			BackendCounts: make(map[string]int64),
			IntentCounts:  make(map[string]int64),
			AvgLatencyMs:  make(map[string]int64),
		},
	}
}

// Select picks the backend for a request. Precedence, highest first:
// an explicit override always wins; web priority or a web_search
// intent routes to the search-augmented backend; technical and
// conceptual intents route to the reasoning backend; everything else
// stays local. Identical inputs always produce the same backend.
func (r *Router) Select(req Request) (string, *Decision) {
	d := &Decision{
		RequestID:   requestID(),
		Timestamp:   time.Now(),
		QueryLength: len(req.Query),
		Override:    req.Override,
		WebPriority: req.WebPriority,
		Intent:      req.Intent,
	}

	switch {
	case req.Override != "":
		d.Backend = req.Override
		d.Reasoning = "explicit override"
	case req.WebPriority:
		d.Backend = backend.NamePerplexity
		d.Reasoning = "web priority requested"
	case req.Intent == intent.LabelWebSearch:
		d.Backend = backend.NamePerplexity
		d.Reasoning = "web_search intent"
	case req.Intent == intent.LabelTechnical || req.Intent == intent.LabelConceptual:
		d.Backend = backend.NameDeepSeek
		d.Reasoning = req.Intent + " intent needs reasoning"
	default:
		d.Backend = backend.NameLocal
		d.Reasoning = "default local"
	}

	r.record(*d)

	r.logger.Info("query routed",
		"request_id", d.RequestID,
		"backend", d.Backend,
		"intent", d.Intent,
		"reasoning", d.Reasoning,
	)

	return d.Backend, d
}

// RecordOutcome updates a decision with execution results.
func (r *Router) RecordOutcome(requestID string, latencyMs int64, tokensUsed int, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.auditLog) - 1; i >= 0; i-- {
		if r.auditLog[i].RequestID == requestID {
			r.auditLog[i].LatencyMs = latencyMs
			r.auditLog[i].TokensUsed = tokensUsed
			r.auditLog[i].Success = &success

			b := r.auditLog[i].Backend
			if prev := r.stats.AvgLatencyMs[b]; prev == 0 {
				r.stats.AvgLatencyMs[b] = latencyMs
			} else {
				r.stats.AvgLatencyMs[b] = (prev + latencyMs) / 2
			}
			break
		}
	}
}

func (r *Router) record(d Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.auditLog) >= r.maxAuditLog {
		r.auditLog = r.auditLog[1:]
	}
	r.auditLog = append(r.auditLog, d)

	r.stats.TotalRequests++
	r.stats.BackendCounts[d.Backend]++
	if d.Intent != "" {
		r.stats.IntentCounts[d.Intent]++
	}
	if d.Override != "" {
		r.stats.OverrideCount++
	}
}

// AuditLog returns up to limit recent decisions, oldest first.
func (r *Router) AuditLog(limit int) []Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.auditLog) {
		limit = len(r.auditLog)
	}
	out := make([]Decision, limit)
	copy(out, r.auditLog[len(r.auditLog)-limit:])
	return out
}

// GetStats returns a snapshot of routing counters.
func (r *Router) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Stats{
		TotalRequests: r.stats.TotalRequests,
		OverrideCount: r.stats.OverrideCount,
		BackendCounts: make(map[string]int64, len(r.stats.BackendCounts)),
		IntentCounts:  make(map[string]int64, len(r.stats.IntentCounts)),
		AvgLatencyMs:  make(map[string]int64, len(r.stats.AvgLatencyMs)),
	}
	for k, v := range r.stats.BackendCounts {
		snap.BackendCounts[k] = v
	}
	for k, v := range r.stats.IntentCounts {
		snap.IntentCounts[k] = v
	}
	for k, v := range r.stats.AvgLatencyMs {
		snap.AvgLatencyMs[k] = v
	}
	return snap
}

// Explain returns the decision for a request ID, or nil if it has
// aged out of the audit log.
func (r *Router) Explain(requestID string) *Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.auditLog) - 1; i >= 0; i-- {
		if r.auditLog[i].RequestID == requestID {
			d := r.auditLog[i]
			return &d
		}
	}
	return nil
}

func requestID() string {
	if u, err := uuid.NewV7(); err == nil {
		return u.String()
	}
	return uuid.NewString()
}
