// Package intent classifies free-text queries into a fixed set of
// coarse intent labels used to bias backend selection. The model is a
// bag-of-words multinomial naive Bayes trained once at construction
// from a small seed corpus; there is no online learning at request
// time.
package intent

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Intent labels. The router maps these to backends.
const (
	LabelWebSearch   = "web_search"
	LabelTechnical   = "technical"
	LabelConceptual  = "conceptual"
	LabelComparative = "comparative"
	LabelGeneral     = "general"
)

// DefaultLabel is the fail-closed prediction used when the model could
// not be trained or the query shares no vocabulary with the corpus.
// Routing must never block on classifier unavailability.
const DefaultLabel = LabelConceptual

// Corpus maps labels to example queries.
type Corpus map[string][]string

// SeedCorpus returns the built-in training corpus.
func SeedCorpus() Corpus {
	return Corpus{
		LabelWebSearch: {
			"weather today",
			"news update",
			"crawl f1.com",
			"recent events",
			"latest headlines this week",
			"current stock price",
		},
		LabelTechnical: {
			"code python",
			"debug script",
			"build algorithm",
			"fix compile error",
			"write a sorting function",
		},
		LabelConceptual: {
			"explain quantum",
			"what is agi",
			"how does ai work",
			"why do neural networks generalize",
		},
		LabelComparative: {
			"compare deepmind vs openai",
			"verstappen vs hamilton",
			"difference between tcp and udp",
		},
		LabelGeneral: {
			"hello there",
			"tell me a joke",
			"good morning",
			"what should i cook tonight",
		},
	}
}

// Classifier predicts an intent label for a query. It is immutable
// after construction and safe for concurrent use.
type Classifier struct {
	logger *slog.Logger

	trained bool
	labels  []string
	// priors[i] is the log prior of labels[i].
	priors []float64
	// tokenLogProb[i][token] is the smoothed log likelihood of token
	// under labels[i].
	tokenLogProb []map[string]float64
	// unseenLogProb[i] is the smoothed log likelihood of a token absent
	// from labels[i]'s training examples.
	unseenLogProb []float64
}

// New trains a classifier from the corpus. Training failure (empty or
// degenerate corpus) does not error: the classifier falls closed and
// Predict returns DefaultLabel for everything.
func New(corpus Corpus, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{logger: logger}

	vocab := make(map[string]struct{})
	totalDocs := 0
	for _, examples := range corpus {
		for _, ex := range examples {
			for _, tok := range tokenize(ex) {
				vocab[tok] = struct{}{}
			}
			totalDocs++
		}
	}

	if totalDocs == 0 || len(vocab) == 0 {
		logger.Error("intent classifier training failed, falling back to default label",
			"default", DefaultLabel)
		return c
	}

	// Fixed label order keeps tie-breaking stable across runs.
	names := make([]string, 0, len(corpus))
	for label := range corpus {
		names = append(names, label)
	}
	sort.Strings(names)

	vocabSize := float64(len(vocab))
	for _, label := range names {
		examples := corpus[label]
		if len(examples) == 0 {
			continue
		}

		counts := make(map[string]float64)
		var total float64
		for _, ex := range examples {
			for _, tok := range tokenize(ex) {
				counts[tok]++
				total++
			}
		}

		// Laplace smoothing over the shared vocabulary.
		logProbs := make(map[string]float64, len(counts))
		for tok, n := range counts {
			logProbs[tok] = math.Log((n + 1) / (total + vocabSize))
		}

		c.labels = append(c.labels, label)
		c.priors = append(c.priors, math.Log(float64(len(examples))/float64(totalDocs)))
		c.tokenLogProb = append(c.tokenLogProb, logProbs)
		c.unseenLogProb = append(c.unseenLogProb, math.Log(1/(total+vocabSize)))
	}

	c.trained = len(c.labels) > 0
	if c.trained {
		logger.Debug("intent classifier trained",
			"labels", len(c.labels),
			"vocabulary", len(vocab))
	}
	return c
}

// Trained reports whether the model trained successfully.
func (c *Classifier) Trained() bool {
	return c.trained
}

// Predict returns the most likely intent label for the query. It never
// fails: an untrained model or a query with no usable tokens yields
// DefaultLabel.
func (c *Classifier) Predict(query string) string {
	if !c.trained {
		return DefaultLabel
	}

	toks := tokenize(query)
	if len(toks) == 0 {
		return DefaultLabel
	}

	scores := make([]float64, len(c.labels))
	anyKnown := false
	for i := range c.labels {
		perToken := make([]float64, 0, len(toks)+1)
		perToken = append(perToken, c.priors[i])
		for _, tok := range toks {
			if lp, ok := c.tokenLogProb[i][tok]; ok {
				perToken = append(perToken, lp)
				anyKnown = true
			} else {
				perToken = append(perToken, c.unseenLogProb[i])
			}
		}
		scores[i] = floats.Sum(perToken)
	}

	// A query sharing zero vocabulary with the corpus carries no signal;
	// the argmax would just reflect priors. Fall closed instead.
	if !anyKnown {
		return DefaultLabel
	}

	return c.labels[floats.MaxIdx(scores)]
}

// tokenize lower-cases and splits on non-letter/digit boundaries.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		default:
			return true
		}
	})
}
