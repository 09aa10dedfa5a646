package intent

import (
	"log/slog"
	"testing"
)

func newTrained(t *testing.T) *Classifier {
	t.Helper()
	c := New(SeedCorpus(), slog.Default())
	if !c.Trained() {
		t.Fatal("seed corpus failed to train")
	}
	return c
}

func TestPredictLabels(t *testing.T) {
	c := newTrained(t)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "weather", query: "weather today in berlin", want: LabelWebSearch},
		{name: "news", query: "news update please", want: LabelWebSearch},
		{name: "code", query: "debug this python script", want: LabelTechnical},
		{name: "algorithm", query: "build an algorithm for me", want: LabelTechnical},
		{name: "explain", query: "explain quantum entanglement", want: LabelConceptual},
		{name: "how", query: "how does ai work exactly", want: LabelConceptual},
		{name: "versus", query: "compare deepmind vs openai models", want: LabelComparative},
		{name: "greeting", query: "hello there friend", want: LabelGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Predict(tt.query); got != tt.want {
				t.Errorf("Predict(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestPredictDeterministic(t *testing.T) {
	c := newTrained(t)

	query := "explain how a compiler works"
	first := c.Predict(query)
	for i := 0; i < 10; i++ {
		if got := c.Predict(query); got != first {
			t.Fatalf("prediction changed between calls: %q then %q", first, got)
		}
	}
}

func TestPredictUnknownVocabularyFallsClosed(t *testing.T) {
	c := newTrained(t)

	if got := c.Predict("zzzxqj wvvkpl mmnnoo"); got != DefaultLabel {
		t.Errorf("Predict with unknown vocabulary = %q, want %q", got, DefaultLabel)
	}
}

func TestPredictEmptyQuery(t *testing.T) {
	c := newTrained(t)

	if got := c.Predict(""); got != DefaultLabel {
		t.Errorf("Predict(\"\") = %q, want %q", got, DefaultLabel)
	}
	if got := c.Predict("   !!! ??? "); got != DefaultLabel {
		t.Errorf("Predict(punctuation) = %q, want %q", got, DefaultLabel)
	}
}

func TestUntrainedFailsClosed(t *testing.T) {
	tests := []struct {
		name   string
		corpus Corpus
	}{
		{name: "nil corpus", corpus: nil},
		{name: "empty corpus", corpus: Corpus{}},
		{name: "labels without examples", corpus: Corpus{LabelGeneral: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.corpus, slog.Default())
			if c.Trained() {
				t.Fatal("degenerate corpus reported as trained")
			}
			if got := c.Predict("explain quantum"); got != DefaultLabel {
				t.Errorf("untrained Predict = %q, want %q", got, DefaultLabel)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "Hello, World!", want: []string{"hello", "world"}},
		{in: "crawl f1.com", want: []string{"crawl", "f1", "com"}},
		{in: "", want: nil},
	}

	for _, tt := range tests {
		got := tokenize(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("tokenize(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}
