package orchestrator

import (
	"encoding/json"
	"strings"
	"testing"
)

func sampleResult() *Result {
	return &Result{
		RequestID:    "req-1",
		Query:        "explain channels",
		Answer:       "channels carry values between goroutines",
		Backend:      "deepseek",
		Intent:       "conceptual",
		Reasoning:    "conceptual intent needs reasoning",
		LatencyMs:    1234,
		InputTokens:  15,
		OutputTokens: 42,
	}
}

// Every projection derives from the same result, so each must show the
// same query, answer, and backend.
func TestProjectionsConsistent(t *testing.T) {
	r := sampleResult()

	jsonOut, err := r.RenderJSON()
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	htmlOut, err := r.RenderHTML()
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}

	projections := map[string]string{
		"text":     r.RenderText(),
		"markdown": r.RenderMarkdown(),
		"json":     jsonOut,
		"html":     htmlOut,
	}
	for name, out := range projections {
		for _, want := range []string{r.Query, r.Answer, r.Backend} {
			if !strings.Contains(out, want) {
				t.Errorf("%s projection missing %q", name, want)
			}
		}
	}
}

func TestRenderText(t *testing.T) {
	out := sampleResult().RenderText()
	if !strings.Contains(out, "Query: explain channels") {
		t.Errorf("text output = %q", out)
	}
	if !strings.Contains(out, "Latency: 1.23s") {
		t.Errorf("latency not formatted in seconds: %q", out)
	}
	if strings.Contains(out, "**") {
		t.Error("text projection contains markdown emphasis")
	}
}

func TestRenderMarkdown(t *testing.T) {
	out := sampleResult().RenderMarkdown()
	if !strings.Contains(out, "**Query**: explain channels") {
		t.Errorf("markdown output = %q", out)
	}
}

func TestRenderJSONRoundTrip(t *testing.T) {
	out, err := sampleResult().RenderJSON()
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}

	var back Result
	if err := json.Unmarshal([]byte(out), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Answer != sampleResult().Answer || back.OutputTokens != 42 {
		t.Errorf("round trip lost data: %+v", back)
	}
}

func TestRenderHTML(t *testing.T) {
	out, err := sampleResult().RenderHTML()
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	if !strings.Contains(out, "<strong>Query</strong>") {
		t.Errorf("html output missing rendered emphasis: %q", out)
	}
}

func TestRenderFailedResult(t *testing.T) {
	r := &Result{
		Query:   "anything",
		Backend: "local",
		ErrKind: ErrKindTimeout,
		Err:     "backend timed out",
	}

	out := r.RenderText()
	if !strings.Contains(out, "Error: backend timed out") {
		t.Errorf("failed result hides error: %q", out)
	}
	if !strings.Contains(out, string(ErrKindTimeout)) {
		t.Errorf("failed result missing error kind: %q", out)
	}
}

func TestRenderDispatch(t *testing.T) {
	r := sampleResult()
	for _, f := range []Format{FormatText, FormatMarkdown, FormatJSON, FormatHTML, Format("bogus")} {
		out, err := r.Render(f)
		if err != nil {
			t.Errorf("Render(%s): %v", f, err)
		}
		if out == "" {
			t.Errorf("Render(%s) returned empty output", f)
		}
	}
}
