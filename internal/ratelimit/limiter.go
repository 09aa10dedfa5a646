// Package ratelimit provides per-client sliding-window admission
// control over request count and token volume. It is independent of
// routing: the orchestrator checks before invoking any backend and
// records usage afterward, success or failure alike.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Limits defines admission thresholds for one client.
type Limits struct {
	RequestsPerMinute  int
	RequestsPerHour    int
	RequestsPerDay     int
	InputTokensPerDay  int
	OutputTokensPerDay int
}

// DefaultLimits returns the thresholds applied to clients without
// custom limits.
func DefaultLimits() Limits {
	return Limits{
		RequestsPerMinute:  20,
		RequestsPerHour:    300,
		RequestsPerDay:     1000,
		InputTokensPerDay:  200_000,
		OutputTokensPerDay: 50_000,
	}
}

// Usage is a point-in-time snapshot of a client's window counters.
type Usage struct {
	RequestsLastMinute int `json:"requests_last_minute"`
	RequestsLastHour   int `json:"requests_last_hour"`
	RequestsLastDay    int `json:"requests_last_day"`
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
}

// request is one recorded invocation.
type request struct {
	at           time.Time
	inputTokens  int
	outputTokens int
}

// Limiter tracks per-client request history over a one-day window.
// All methods are safe for concurrent use. The zero value is not
// usable; construct with New.
type Limiter struct {
	mu      sync.Mutex
	history map[string][]request
	limits  map[string]Limits
	base    Limits

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Limiter with the given default limits.
func New(base Limits) *Limiter {
	return &Limiter{
		history: make(map[string][]request),
		limits:  make(map[string]Limits),
		base:    base,
		now:     time.Now,
	}
}

// SetClientLimits overrides thresholds for a single client.
func (l *Limiter) SetClientLimits(clientID string, limits Limits) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[clientID] = limits
}

// Check reports whether a client is within its limits. When denied,
// the returned reason is suitable for surfacing to the caller.
func (l *Limiter) Check(clientID string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(clientID)

	now := l.now()
	history := l.history[clientID]
	limits := l.limitsFor(clientID)

	minuteAgo := now.Add(-time.Minute)
	hourAgo := now.Add(-time.Hour)

	var lastMinute, lastHour, inputTokens, outputTokens int
	for _, r := range history {
		if r.at.After(minuteAgo) {
			lastMinute++
		}
		if r.at.After(hourAgo) {
			lastHour++
		}
		inputTokens += r.inputTokens
		outputTokens += r.outputTokens
	}

	switch {
	case lastMinute >= limits.RequestsPerMinute:
		return false, fmt.Sprintf("rate limit exceeded: %d requests in the last minute", lastMinute)
	case lastHour >= limits.RequestsPerHour:
		return false, fmt.Sprintf("rate limit exceeded: %d requests in the last hour", lastHour)
	case len(history) >= limits.RequestsPerDay:
		return false, fmt.Sprintf("daily limit of %d requests exceeded", limits.RequestsPerDay)
	case inputTokens > limits.InputTokensPerDay:
		return false, fmt.Sprintf("daily input token limit exceeded (%d)", inputTokens)
	case outputTokens > limits.OutputTokensPerDay:
		return false, fmt.Sprintf("daily output token limit exceeded (%d)", outputTokens)
	}

	return true, ""
}

// Record adds one invocation to a client's history. Token counts from
// failed-but-billed calls still count, so the orchestrator records on
// both success and failure paths.
func (l *Limiter) Record(clientID string, inputTokens, outputTokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.history[clientID] = append(l.history[clientID], request{
		at:           l.now(),
		inputTokens:  inputTokens,
		outputTokens: outputTokens,
	})
}

// Usage returns a snapshot of a client's current window counters.
func (l *Limiter) Usage(clientID string) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(clientID)

	now := l.now()
	minuteAgo := now.Add(-time.Minute)
	hourAgo := now.Add(-time.Hour)

	var u Usage
	for _, r := range l.history[clientID] {
		if r.at.After(minuteAgo) {
			u.RequestsLastMinute++
		}
		if r.at.After(hourAgo) {
			u.RequestsLastHour++
		}
		u.RequestsLastDay++
		u.InputTokens += r.inputTokens
		u.OutputTokens += r.outputTokens
	}
	return u
}

// Reset clears a client's history. Used by administrative actions only.
func (l *Limiter) Reset(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.history, clientID)
}

// prune drops requests older than one day. Caller must hold l.mu.
func (l *Limiter) prune(clientID string) {
	dayAgo := l.now().Add(-24 * time.Hour)
	history := l.history[clientID]

	keep := history[:0]
	for _, r := range history {
		if r.at.After(dayAgo) {
			keep = append(keep, r)
		}
	}
	if len(keep) == 0 {
		delete(l.history, clientID)
		return
	}
	l.history[clientID] = keep
}

// limitsFor returns the effective limits for a client. Caller must
// hold l.mu.
func (l *Limiter) limitsFor(clientID string) Limits {
	if limits, ok := l.limits[clientID]; ok {
		return limits
	}
	return l.base
}
