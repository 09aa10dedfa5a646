// Package memory provides the dual-tier conversation memory: a bounded
// in-process buffer of recent interactions and a SQLite archive for
// everything evicted from it.
package memory

import "time"

// Interaction is one completed query/answer exchange. The raw query is
// preserved as submitted; Preprocessed is the trimmed form the engine
// actually routed on.
type Interaction struct {
	ID           string    `json:"id"`
	Query        string    `json:"query"`
	Preprocessed string    `json:"preprocessed,omitempty"`
	Intent       string    `json:"intent,omitempty"`
	Backend      string    `json:"backend"`
	Answer       string    `json:"answer"`
	Tags         string    `json:"tags,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	LatencyMS    int64     `json:"latency_ms"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`

	// Err is set when the exchange failed before producing an answer.
	// The archive schema has no error column, so it survives only in
	// the recent buffer.
	Err string `json:"error,omitempty"`
}
