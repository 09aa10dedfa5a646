// Package backend defines the uniform adapter contract for
// answer-generation backends and the registry that constructs and
// caches adapter instances.
//
// Three backend kinds exist: an on-device Ollama backend ("local"), a
// search-augmented API backend ("perplexity"), and a reasoning-focused
// API backend ("deepseek"). All expose the same capability set, so
// everything above this package is backend-agnostic.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Canonical backend names.
const (
	NameLocal      = "local"
	NamePerplexity = "perplexity"
	NameDeepSeek   = "deepseek"
)

// AnswerRequest carries everything a backend needs to answer a query.
type AnswerRequest struct {
	Query         string
	Timeout       time.Duration
	MemoryContext string
	WebContext    string
	Temperature   float64
}

// AnswerResult is the uniform response from any backend.
type AnswerResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// Backend is the capability contract every adapter implements.
type Backend interface {
	// Name returns the backend's registry name.
	Name() string

	// Answer sends the query with its assembled context and returns the
	// backend's response. Fails with ErrTimeout when the backend does
	// not respond within req.Timeout, and with *Error for any other
	// failure (auth, network, malformed response).
	Answer(ctx context.Context, req AnswerRequest) (*AnswerResult, error)

	// FetchExternalContext retrieves fresh web data relevant to the
	// query. Only the search-augmented backend implements this with
	// real retrieval; others return ErrNoWebCapability.
	FetchExternalContext(ctx context.Context, query string, timeout time.Duration, depth int) (string, error)
}

// ErrTimeout indicates the backend did not respond within the
// requested timeout. The orchestrator retries exactly once on this.
var ErrTimeout = errors.New("backend timed out")

// ErrNoWebCapability indicates the backend has no external-content
// retrieval. Context assembly degrades to an empty web context.
var ErrNoWebCapability = errors.New("backend has no web retrieval capability")

// Error is any non-timeout backend failure. The orchestrator surfaces
// these immediately without retry.
type Error struct {
	Backend string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Backend, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// UnavailableError indicates adapter construction failed. It is never
// silently substituted with another backend.
type UnavailableError struct {
	Backend string
	Cause   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("backend %s unavailable: %v", e.Backend, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

// classifyErr maps a transport-level error to the package taxonomy.
// Context deadline expiry becomes ErrTimeout; everything else wraps
// into *Error.
func classifyErr(backend string, ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return &Error{Backend: backend, Cause: err}
}
