package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
)

// Format names an output projection of the canonical Result.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
)

// ErrKind categorizes a failed request for the caller. Successful
// results carry an empty kind.
type ErrKind string

const (
	ErrKindRateLimited ErrKind = "rate_limited"
	ErrKindTimeout     ErrKind = "timeout"
	ErrKindBackend     ErrKind = "backend_error"
	ErrKindFetch       ErrKind = "fetch_failed"
	ErrKindInvalid     ErrKind = "invalid_query"
)

// Result is the canonical outcome of one orchestrated query. Every
// output representation is a pure projection of this struct.
type Result struct {
	RequestID    string  `json:"request_id"`
	Query        string  `json:"query"`
	Answer       string  `json:"answer"`
	Backend      string  `json:"backend"`
	Intent       string  `json:"intent,omitempty"`
	Reasoning    string  `json:"reasoning,omitempty"`
	LatencyMs    int64   `json:"latency_ms"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Retries      int     `json:"retries"`
	CostUSD      float64 `json:"cost_usd"`
	ErrKind      ErrKind `json:"error_kind,omitempty"`
	Err          string  `json:"error,omitempty"`
}

// Failed reports whether the request ended in the failed state.
func (r *Result) Failed() bool { return r.ErrKind != "" }

// Render projects the result into the requested format. Unknown
// formats fall back to plain text.
func (r *Result) Render(f Format) (string, error) {
	switch f {
	case FormatMarkdown:
		return r.RenderMarkdown(), nil
	case FormatJSON:
		return r.RenderJSON()
	case FormatHTML:
		return r.RenderHTML()
	default:
		return r.RenderText(), nil
	}
}

// fields returns the presentation key/value pairs in display order.
func (r *Result) fields() [][2]string {
	answer := r.Answer
	if r.Failed() && answer == "" {
		answer = fmt.Sprintf("Error: %s", r.Err)
	}
	out := [][2]string{
		{"Query", r.Query},
		{"Response", answer},
		{"Backend", r.Backend},
		{"Latency", fmt.Sprintf("%.2fs", float64(r.LatencyMs)/1000)},
		{"Input Tokens", fmt.Sprintf("%d", r.InputTokens)},
		{"Output Tokens", fmt.Sprintf("%d", r.OutputTokens)},
	}
	if r.Intent != "" {
		out = append(out, [2]string{"Intent", r.Intent})
	}
	if r.Reasoning != "" {
		out = append(out, [2]string{"Reasoning", r.Reasoning})
	}
	if r.Failed() {
		out = append(out, [2]string{"Error Kind", string(r.ErrKind)})
	}
	return out
}

// RenderText returns the plain-text projection.
func (r *Result) RenderText() string {
	var b strings.Builder
	for i, kv := range r.fields() {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(kv[0])
		b.WriteString(": ")
		b.WriteString(kv[1])
	}
	return b.String()
}

// RenderMarkdown returns the markdown projection.
func (r *Result) RenderMarkdown() string {
	var b strings.Builder
	for i, kv := range r.fields() {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("**")
		b.WriteString(kv[0])
		b.WriteString("**: ")
		b.WriteString(kv[1])
	}
	return b.String()
}

// RenderJSON returns the machine-readable projection.
func (r *Result) RenderJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}

// RenderHTML renders the markdown projection to HTML.
func (r *Result) RenderHTML() (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(r.RenderMarkdown()), &buf); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}
