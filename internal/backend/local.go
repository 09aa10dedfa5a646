package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kabrony/VOTSai/internal/httpkit"
)

// Local is the on-device backend speaking the Ollama chat API.
type Local struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLocal creates the local Ollama adapter.
func NewLocal(baseURL, model string, logger *slog.Logger) *Local {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		baseURL: baseURL,
		model:   model,
		logger:  logger.With("backend", NameLocal),
		// No client-level timeout: per-call deadlines come from the
		// request context.
		httpClient: httpkit.NewClient(httpkit.WithTimeout(0)),
	}
}

func (l *Local) Name() string { return NameLocal }

// ollamaMessage is one chat message on the Ollama wire format.
type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatRequest is the request body for /api/chat.
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

// ollamaChatResponse is the non-streaming response from /api/chat.
type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

// Answer sends the query to the local model. Token counts come from
// Ollama's eval counters when present.
func (l *Local) Answer(ctx context.Context, req AnswerRequest) (*AnswerResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	userContent := req.Query
	if req.WebContext != "" {
		userContent = fmt.Sprintf("%s\nWeb Context: %s", req.Query, req.WebContext)
	}

	body := ollamaChatRequest{
		Model: l.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: "Provide concise, well-formatted answers. Memory: " + req.MemoryContext},
			{Role: "user", Content: userContent},
		},
		Stream: false,
	}
	if req.Temperature > 0 {
		body.Options = &ollamaOptions{Temperature: req.Temperature}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Backend: NameLocal, Cause: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, &Error{Backend: NameLocal, Cause: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyErr(NameLocal, ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Backend: NameLocal, Cause: fmt.Errorf("API error %d: %s",
			resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))}
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, classifyErr(NameLocal, ctx, fmt.Errorf("decode response: %w", err))
	}

	return &AnswerResult{
		Text:         chatResp.Message.Content,
		InputTokens:  chatResp.PromptEvalCount,
		OutputTokens: chatResp.EvalCount,
		Latency:      time.Since(start),
	}, nil
}

// FetchExternalContext is unsupported for the local backend. Context
// assembly treats this as an empty web context.
func (l *Local) FetchExternalContext(ctx context.Context, query string, timeout time.Duration, depth int) (string, error) {
	return "", ErrNoWebCapability
}

// Ping checks whether the Ollama server is reachable.
func (l *Local) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d", resp.StatusCode)
	}
	return nil
}
