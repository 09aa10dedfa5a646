package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kabrony/VOTSai/internal/backend"
	"github.com/kabrony/VOTSai/internal/memory"
	"github.com/kabrony/VOTSai/internal/tokens"
)

// ContextAssembler builds the memory and web context strings handed to
// a backend. Memory context is bounded by a token budget; web context
// is best-effort and degrades to empty on failure.
type ContextAssembler struct {
	store        *memory.Store
	governor     *tokens.Governor
	budget       int
	fetchTimeout time.Duration
	logger       *slog.Logger
}

// NewContextAssembler creates an assembler. budget <= 0 disables
// truncation.
func NewContextAssembler(store *memory.Store, governor *tokens.Governor, budget int, fetchTimeout time.Duration, logger *slog.Logger) *ContextAssembler {
	if logger == nil {
		logger = slog.Default()
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 15 * time.Second
	}
	return &ContextAssembler{
		store:        store,
		governor:     governor,
		budget:       budget,
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

// MemoryContext combines the most recent short-term interactions with
// relevant archived ones, truncated to the token budget.
func (a *ContextAssembler) MemoryContext(ctx context.Context, query string, profile tokens.Profile) string {
	recent := a.store.Recent(3)
	relevant, err := a.store.Relevant(ctx, query, 3)
	if err != nil {
		a.logger.Warn("archive lookup failed during context assembly", "error", err)
	}

	text := fmt.Sprintf("Short-term: %s; Long-term: %s",
		summarizeInteractions(recent), summarizeInteractions(relevant))

	if a.budget > 0 {
		text = a.governor.Truncate(text, a.budget, profile)
	}
	return text
}

// WebContext fetches external content through the backend when the
// routing decision calls for it. Any failure, including a backend with
// no web capability, degrades to an empty context with a warning.
func (a *ContextAssembler) WebContext(ctx context.Context, b backend.Backend, query string, webPriority bool) string {
	if !webPriority && b.Name() != backend.NamePerplexity {
		return ""
	}

	web, err := b.FetchExternalContext(ctx, query, a.fetchTimeout, 1)
	if err != nil {
		a.logger.Warn("web context fetch failed, continuing without it",
			"backend", b.Name(), "error", err)
		return ""
	}
	return web
}

// summarizeInteractions renders interactions as compact JSON pairs for
// inclusion in a prompt.
func summarizeInteractions(items []memory.Interaction) string {
	if len(items) == 0 {
		return "[]"
	}
	type pair struct {
		Query  string `json:"query"`
		Answer string `json:"answer"`
	}
	pairs := make([]pair, len(items))
	for i, it := range items {
		pairs[i] = pair{Query: it.Query, Answer: it.Answer}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return "[]"
	}
	return string(data)
}
