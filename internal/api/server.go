// Package api implements the HTTP boundary: query submission, stats,
// memory administration, and a websocket stream of request progress.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kabrony/VOTSai/internal/orchestrator"
	"github.com/kabrony/VOTSai/internal/ratelimit"
	"github.com/kabrony/VOTSai/internal/router"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	listen  string
	orch    *orchestrator.Orchestrator
	rtr     *router.Router
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates the API server.
func NewServer(listen string, orch *orchestrator.Orchestrator, rtr *router.Router, limiter *ratelimit.Limiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		listen:  listen,
		orch:    orch,
		rtr:     rtr,
		limiter: limiter,
		logger:  logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("GET /api/query/ws", s.handleQueryWS)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/router/audit", s.handleRouterAudit)
	mux.HandleFunc("POST /api/memory/clear", s.handleMemoryClear)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return s.withLogging(mux)
}

// Start runs the server until ListenAndServe returns.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.listen,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // long to cover backend timeouts plus retry
	}

	s.logger.Info("starting API server", "listen", s.listen)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query       string  `json:"query"`
	ClientID    string  `json:"client_id,omitempty"`
	Override    string  `json:"override,omitempty"`
	WebPriority bool    `json:"web_priority,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Format      string  `json:"format,omitempty"`
}

// QueryResponse wraps the canonical result plus its rendered form.
type QueryResponse struct {
	Result   *orchestrator.Result `json:"result"`
	Rendered string               `json:"rendered"`
	Format   string               `json:"format"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	format := orchestrator.Format(req.Format)
	if format == "" {
		format = orchestrator.FormatText
	}

	result := s.orch.Process(r.Context(), orchestrator.Request{
		Query:       req.Query,
		ClientID:    req.ClientID,
		Override:    req.Override,
		WebPriority: req.WebPriority,
		Temperature: req.Temperature,
	})

	rendered, err := result.Render(format)
	if err != nil {
		// Rendering failure after a successful answer degrades to
		// plain text rather than discarding the answer.
		s.logger.Warn("render failed, falling back to text", "format", format, "error", err)
		rendered = result.RenderText()
		format = orchestrator.FormatText
	}

	status := http.StatusOK
	if result.Failed() {
		switch result.ErrKind {
		case orchestrator.ErrKindRateLimited:
			status = http.StatusTooManyRequests
		case orchestrator.ErrKindInvalid:
			status = http.StatusBadRequest
		default:
			status = http.StatusBadGateway
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, QueryResponse{Result: result, Rendered: rendered, Format: string(format)}, s.logger)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = "anonymous"
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"router": s.rtr.GetStats(),
		"usage":  s.limiter.Usage(clientID),
	}, s.logger)
}

func (s *Server) handleRouterAudit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.rtr.AuditLog(100), s.logger)
}

func (s *Server) handleMemoryClear(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ClearMemory(r.Context()); err != nil {
		s.logger.Error("memory clear failed", "error", err)
		http.Error(w, "memory clear failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "cleared"}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}
