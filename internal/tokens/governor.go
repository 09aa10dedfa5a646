// Package tokens provides token counting, truncation, and chunking
// utilities parameterized by backend tokenizer profile. Counting is
// estimation-based (word and character heuristics per profile) with a
// bounded memoizing cache, so repeated counts of the same context block
// are free.
package tokens

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Profile describes a backend's tokenizer characteristics and pricing.
type Profile struct {
	// Name identifies the profile (matches the backend name).
	Name string

	// CharsPerToken is the average character-to-token ratio. English
	// prose on modern BPE tokenizers lands near 4.
	CharsPerToken float64

	// InputCostPerToken and OutputCostPerToken are USD per token.
	// Zero for local backends.
	InputCostPerToken  float64
	OutputCostPerToken float64
}

// Well-known profiles for the built-in backends.
var (
	ProfileLocal      = Profile{Name: "local", CharsPerToken: 4}
	ProfilePerplexity = Profile{Name: "perplexity", CharsPerToken: 4, InputCostPerToken: 0.0000005, OutputCostPerToken: 0.0000015}
	ProfileDeepSeek   = Profile{Name: "deepseek", CharsPerToken: 4, InputCostPerToken: 0.0000010, OutputCostPerToken: 0.0000020}
)

// ProfileFor returns the profile for a backend name, falling back to
// the local profile for unknown names.
func ProfileFor(backend string) Profile {
	switch backend {
	case ProfilePerplexity.Name:
		return ProfilePerplexity
	case ProfileDeepSeek.Name:
		return ProfileDeepSeek
	default:
		return ProfileLocal
	}
}

// Governor counts and budgets tokens. It is safe for concurrent use;
// the only shared state is the bounded memoization cache.
type Governor struct {
	cache *lru.Cache[string, int]
}

// DefaultCacheSize bounds the count memoization cache.
const DefaultCacheSize = 1024

// NewGovernor creates a Governor with a memoization cache of the given
// size. Size <= 0 uses DefaultCacheSize.
func NewGovernor(cacheSize int) *Governor {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	// lru.New only fails for non-positive sizes, which we just excluded.
	cache, _ := lru.New[string, int](cacheSize)
	return &Governor{cache: cache}
}

// Count estimates the token count of text under the given profile.
// Results are memoized by (text hash, profile name).
func (g *Governor) Count(text string, p Profile) int {
	if text == "" {
		return 0
	}

	key := cacheKey(text, p.Name)
	if n, ok := g.cache.Get(key); ok {
		return n
	}

	n := estimate(text, p)
	g.cache.Add(key, n)
	return n
}

// Truncate cuts text so that it fits within maxTokens under the given
// profile. Truncation is word-aligned where possible and never splits
// a multi-byte character.
func (g *Governor) Truncate(text string, maxTokens int, p Profile) string {
	if maxTokens <= 0 {
		return ""
	}
	if g.Count(text, p) <= maxTokens {
		return text
	}

	words := strings.Fields(text)
	// Binary search the largest word prefix that fits the budget.
	lo, hi := 0, len(words)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if estimate(strings.Join(words[:mid], " "), p) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return strings.Join(words[:lo], " ")
}

// Chunk splits text into pieces of roughly chunkSize tokens with
// overlap tokens of continuity between consecutive chunks. The final
// chunk may be shorter. Overlap must be smaller than chunkSize; larger
// values are clamped.
func (g *Governor) Chunk(text string, chunkSize, overlap int, p Profile) []string {
	if text == "" || chunkSize <= 0 {
		return nil
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}
	if overlap < 0 {
		overlap = 0
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	// Convert token budgets to word windows using the profile's density.
	wordsPerToken := wordDensity(text, p)
	step := int(float64(chunkSize-overlap) * wordsPerToken)
	if step < 1 {
		step = 1
	}
	window := int(float64(chunkSize) * wordsPerToken)
	if window < 1 {
		window = 1
	}

	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + window
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// EstimateCost returns the USD cost of a call under the profile's
// pricing. Local profiles cost nothing.
func (g *Governor) EstimateCost(inputTokens, outputTokens int, p Profile) float64 {
	return float64(inputTokens)*p.InputCostPerToken + float64(outputTokens)*p.OutputCostPerToken
}

// estimate is the uncached token estimator: character count divided by
// the profile's chars-per-token density, for backends whose exact
// tokenizer is unavailable. Never returns 0 for non-empty text.
func estimate(text string, p Profile) int {
	if text == "" {
		return 0
	}
	charsPerToken := p.CharsPerToken
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	n := int(float64(len(text)) / charsPerToken)
	if n < 1 {
		n = 1
	}
	return n
}

// wordDensity returns the average number of words per token for the
// given text, used to translate token windows into word windows.
func wordDensity(text string, p Profile) float64 {
	tokens := estimate(text, p)
	words := len(strings.Fields(text))
	if tokens == 0 || words == 0 {
		return 1
	}
	return float64(words) / float64(tokens)
}

func cacheKey(text, profile string) string {
	sum := sha256.Sum256([]byte(text))
	return profile + ":" + hex.EncodeToString(sum[:16])
}
