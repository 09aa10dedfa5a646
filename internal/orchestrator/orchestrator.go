// Package orchestrator drives a query through classification, routing,
// context assembly, backend invocation, formatting, and memory commit.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kabrony/VOTSai/internal/backend"
	"github.com/kabrony/VOTSai/internal/fetch"
	"github.com/kabrony/VOTSai/internal/intent"
	"github.com/kabrony/VOTSai/internal/memory"
	"github.com/kabrony/VOTSai/internal/ratelimit"
	"github.com/kabrony/VOTSai/internal/router"
	"github.com/kabrony/VOTSai/internal/tokens"
)

// State names one step of the request lifecycle. Transitions run
// strictly forward; Failed is terminal and reachable from any step.
type State string

const (
	StateReceived         State = "received"
	StateClassified       State = "classified"
	StateContextAssembled State = "context_assembled"
	StateInvoking         State = "invoking"
	StateFormatted        State = "formatted"
	StateCommitted        State = "committed"
	StateFailed           State = "failed"
)

// Observer receives state transitions as they happen. Used by the
// websocket boundary to stream progress.
type Observer func(state State, detail string)

// Request is one query submission.
type Request struct {
	Query       string
	ClientID    string
	Override    string
	WebPriority bool
	Temperature float64
	Observer    Observer
}

// Config holds orchestrator tuning.
type Config struct {
	DefaultTimeout time.Duration
	MaxConcurrent  int64
}

// Orchestrator owns the per-request state machine. It holds no
// cross-request mutable state of its own; all shared state lives in
// the injected collaborators.
type Orchestrator struct {
	classifier *intent.Classifier
	rtr        *router.Router
	registry   *backend.Registry
	store      *memory.Store
	limiter    *ratelimit.Limiter
	governor   *tokens.Governor
	fetcher    *fetch.Fetcher
	assembler  *ContextAssembler
	sem        *semaphore.Weighted
	timeout    time.Duration
	logger     *slog.Logger
}

// New wires the orchestrator from its collaborators.
func New(
	classifier *intent.Classifier,
	rtr *router.Router,
	registry *backend.Registry,
	store *memory.Store,
	limiter *ratelimit.Limiter,
	governor *tokens.Governor,
	fetcher *fetch.Fetcher,
	assembler *ContextAssembler,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 60 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	return &Orchestrator{
		classifier: classifier,
		rtr:        rtr,
		registry:   registry,
		store:      store,
		limiter:    limiter,
		governor:   governor,
		fetcher:    fetcher,
		assembler:  assembler,
		sem:        semaphore.NewWeighted(cfg.MaxConcurrent),
		timeout:    cfg.DefaultTimeout,
		logger:     logger,
	}
}

// Process runs one query through the full lifecycle and returns the
// canonical result. Processing errors are reported inside the Result,
// never as a raw error; the only hard failure is an abandoned context
// while waiting for admission.
func (o *Orchestrator) Process(ctx context.Context, req Request) *Result {
	start := time.Now()
	observe := func(s State, detail string) {
		if req.Observer != nil {
			req.Observer(s, detail)
		}
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return o.fail(observe, start, &Result{Query: req.Query}, ErrKindBackend,
			fmt.Sprintf("request abandoned before admission: %v", err))
	}
	defer o.sem.Release(1)

	raw := req.Query
	pre := strings.TrimSpace(raw)
	clientID := req.ClientID
	if clientID == "" {
		clientID = "anonymous"
	}

	observe(StateReceived, "")
	res := &Result{Query: raw}

	if pre == "" {
		return o.fail(observe, start, res, ErrKindInvalid, "empty query")
	}

	if rest, ok := cutCommand(pre, "recall"); ok {
		return o.recall(ctx, observe, start, res, rest)
	}

	label := o.classifier.Predict(pre)
	observe(StateClassified, label)

	backendName, decision := o.rtr.Select(router.Request{
		Query:       pre,
		Override:    req.Override,
		WebPriority: req.WebPriority,
		Intent:      label,
	})
	res.RequestID = decision.RequestID
	res.Backend = backendName
	res.Intent = label
	res.Reasoning = decision.Reasoning

	queryForBackend := pre
	if url, ok := cutCommand(pre, "crawl"); ok {
		if url == "" {
			return o.fail(observe, start, res, ErrKindInvalid, "invalid crawl command, use 'crawl <url>'")
		}
		page, err := o.fetcher.Fetch(ctx, url, 0)
		if err != nil {
			return o.fail(observe, start, res, ErrKindFetch, err.Error())
		}
		content := page.Content
		if len(content) > 1000 {
			content = content[:1000]
		}
		queryForBackend = "Summarize this content (max 1000 chars): " + content
	}

	profile := tokens.ProfileFor(backendName)

	b, err := o.registry.Get(backendName)
	if err != nil {
		return o.fail(observe, start, res, ErrKindBackend, err.Error())
	}

	// Admission comes before assembly: web context is fetched through
	// the selected backend, and a throttled client must not reach it.
	if allowed, reason := o.limiter.Check(clientID); !allowed {
		return o.fail(observe, start, res, ErrKindRateLimited, reason)
	}

	memCtx := o.assembler.MemoryContext(ctx, pre, profile)
	webCtx := o.assembler.WebContext(ctx, b, queryForBackend, req.WebPriority)
	observe(StateContextAssembled, "")
	observe(StateInvoking, backendName)

	ans, attempts, err := invokeWithRetry(ctx, b, backend.AnswerRequest{
		Query:         queryForBackend,
		Timeout:       o.timeout,
		MemoryContext: memCtx,
		WebContext:    webCtx,
		Temperature:   req.Temperature,
	})
	latency := time.Since(start)
	res.Retries = attempts - 1

	if err != nil {
		// A failed call still consumed a request slot.
		o.limiter.Record(clientID, 0, 0)
		o.rtr.RecordOutcome(decision.RequestID, latency.Milliseconds(), 0, false)
		kind := ErrKindBackend
		if errors.Is(err, backend.ErrTimeout) {
			kind = ErrKindTimeout
		}
		return o.fail(observe, start, res, kind, err.Error())
	}
	o.limiter.Record(clientID, ans.InputTokens, ans.OutputTokens)

	res.Answer = ans.Text
	res.InputTokens = ans.InputTokens
	res.OutputTokens = ans.OutputTokens
	res.LatencyMs = latency.Milliseconds()
	res.CostUSD = o.governor.EstimateCost(ans.InputTokens, ans.OutputTokens, profile)
	observe(StateFormatted, "")

	o.store.Remember(ctx, memory.Interaction{
		Query:        raw,
		Preprocessed: pre,
		Intent:       label,
		Backend:      backendName,
		Answer:       ans.Text,
		StartedAt:    start,
		CompletedAt:  time.Now(),
		LatencyMS:    latency.Milliseconds(),
		InputTokens:  ans.InputTokens,
		OutputTokens: ans.OutputTokens,
	})
	o.rtr.RecordOutcome(decision.RequestID, latency.Milliseconds(), ans.InputTokens+ans.OutputTokens, true)
	observe(StateCommitted, "")

	o.logger.Info("query completed",
		"request_id", decision.RequestID,
		"backend", backendName,
		"intent", label,
		"latency_ms", latency.Milliseconds(),
		"input_tokens", ans.InputTokens,
		"output_tokens", ans.OutputTokens,
		"retries", res.Retries,
	)

	return res
}

// recall answers from memory alone without touching any backend.
func (o *Orchestrator) recall(ctx context.Context, observe Observer, start time.Time, res *Result, search string) *Result {
	res.Backend = "memory"
	res.Intent = "recall"
	observe(StateClassified, "recall")

	if search == "" {
		return o.fail(observe, start, res, ErrKindInvalid, "invalid recall command, use 'recall <query>'")
	}

	matches, err := o.store.Relevant(ctx, search, 3)
	if err != nil {
		o.logger.Warn("recall lookup failed", "error", err)
	}
	observe(StateContextAssembled, "")

	if len(matches) == 0 {
		res.Answer = "No relevant memory found."
	} else {
		var b strings.Builder
		for i, m := range matches {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "Q: %s\nA: %s", m.Query, m.Answer)
		}
		res.Answer = b.String()
	}

	latency := time.Since(start)
	res.LatencyMs = latency.Milliseconds()
	observe(StateFormatted, "")

	o.store.Remember(ctx, memory.Interaction{
		Query:        res.Query,
		Preprocessed: "recall " + search,
		Intent:       "recall",
		Backend:      "memory",
		Answer:       res.Answer,
		StartedAt:    start,
		CompletedAt:  time.Now(),
		LatencyMS:    latency.Milliseconds(),
	})
	observe(StateCommitted, "")

	return res
}

// ClearMemory empties both memory tiers and the backend cache.
func (o *Orchestrator) ClearMemory(ctx context.Context) error {
	o.registry.Clear()
	return o.store.ClearAll(ctx)
}

func (o *Orchestrator) fail(observe Observer, start time.Time, res *Result, kind ErrKind, msg string) *Result {
	res.ErrKind = kind
	res.Err = msg
	res.LatencyMs = time.Since(start).Milliseconds()
	observe(StateFailed, string(kind))

	o.logger.Warn("query failed",
		"request_id", res.RequestID,
		"backend", res.Backend,
		"error_kind", kind,
		"error", msg,
	)
	return res
}

// cutCommand matches a leading command word case-insensitively and
// returns the trimmed remainder.
func cutCommand(query, command string) (string, bool) {
	if len(query) < len(command) {
		return "", false
	}
	if !strings.EqualFold(query[:len(command)], command) {
		return "", false
	}
	rest := query[len(command):]
	if rest != "" && !strings.HasPrefix(rest, " ") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
