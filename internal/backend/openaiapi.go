package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kabrony/VOTSai/internal/tokens"
)

// OpenAICompatible is a remote backend speaking the OpenAI chat
// completions protocol. Both the search-augmented Perplexity backend
// and the reasoning-focused DeepSeek backend use this adapter with
// different base URLs and system prompts.
type OpenAICompatible struct {
	name         string
	model        string
	systemPrompt string
	webCapable   bool
	client       *openai.Client
	governor     *tokens.Governor
	profile      tokens.Profile
	logger       *slog.Logger
}

// NewPerplexity creates the search-augmented backend adapter.
func NewPerplexity(apiKey, baseURL, model string, gov *tokens.Governor, logger *slog.Logger) (*OpenAICompatible, error) {
	if apiKey == "" {
		return nil, &UnavailableError{Backend: NamePerplexity, Cause: errors.New("missing API key")}
	}
	if baseURL == "" {
		baseURL = "https://api.perplexity.ai"
	}
	if model == "" {
		model = "sonar-pro"
	}
	return newOpenAICompatible(NamePerplexity, apiKey, baseURL, model,
		"Provide concise, accurate answers with current web data.",
		true, tokens.ProfilePerplexity, gov, logger), nil
}

// NewDeepSeek creates the reasoning-focused backend adapter.
func NewDeepSeek(apiKey, baseURL, model string, gov *tokens.Governor, logger *slog.Logger) (*OpenAICompatible, error) {
	if apiKey == "" {
		return nil, &UnavailableError{Backend: NameDeepSeek, Cause: errors.New("missing API key")}
	}
	if baseURL == "" {
		baseURL = "https://api.deepseek.com"
	}
	if model == "" {
		model = "deepseek-chat"
	}
	return newOpenAICompatible(NameDeepSeek, apiKey, baseURL, model,
		"Provide detailed, reasoning-based answers.",
		false, tokens.ProfileDeepSeek, gov, logger), nil
}

func newOpenAICompatible(name, apiKey, baseURL, model, systemPrompt string, webCapable bool, profile tokens.Profile, gov *tokens.Governor, logger *slog.Logger) *OpenAICompatible {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL

	return &OpenAICompatible{
		name:         name,
		model:        model,
		systemPrompt: systemPrompt,
		webCapable:   webCapable,
		client:       openai.NewClientWithConfig(cfg),
		governor:     gov,
		profile:      profile,
		logger:       logger.With("backend", name),
	}
}

func (o *OpenAICompatible) Name() string { return o.name }

// Answer sends a chat completion request. Token counts come from the
// provider's usage block when present, falling back to governor
// estimates otherwise.
func (o *OpenAICompatible) Answer(ctx context.Context, req AnswerRequest) (*AnswerResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	userContent := req.Query
	if req.WebContext != "" {
		userContent = fmt.Sprintf("%s\nWeb Context: %s", req.Query, req.WebContext)
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: float32(req.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.systemPrompt + " Memory: " + req.MemoryContext},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
	})
	if err != nil {
		return nil, classifyErr(o.name, ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Backend: o.name, Cause: errors.New("empty completion response")}
	}

	answer := resp.Choices[0].Message.Content
	inputTokens := resp.Usage.PromptTokens
	outputTokens := resp.Usage.CompletionTokens
	if inputTokens == 0 {
		inputTokens = o.governor.Count(req.Query+req.MemoryContext+req.WebContext, o.profile)
	}
	if outputTokens == 0 {
		outputTokens = o.governor.Count(answer, o.profile)
	}

	return &AnswerResult{
		Text:         answer,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Latency:      time.Since(start),
	}, nil
}

// FetchExternalContext asks the provider for fresh web data relevant
// to the query. Only the search-augmented backend supports this.
func (o *OpenAICompatible) FetchExternalContext(ctx context.Context, query string, timeout time.Duration, depth int) (string, error) {
	if !o.webCapable {
		return "", ErrNoWebCapability
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if depth <= 0 {
		depth = 1
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Fetch concise web data for %s (depth=%d).", query, depth),
			},
		},
	})
	if err != nil {
		return "", classifyErr(o.name, ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Backend: o.name, Cause: errors.New("empty web context response")}
	}
	return resp.Choices[0].Message.Content, nil
}
