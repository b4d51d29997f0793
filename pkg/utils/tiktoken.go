// Package utils counts prompt and completion tokens for rate limiting and usage metrics.
package utils

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides accurate token counting for different models.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter for the given model.
// Gemini and Claude tokenizers are not published, so every model is approximated
// with the o200k encoding, falling back to cl100k for the gpt-4 family.
func NewTokenCounter(model string) (*TokenCounter, error) {
	enc := tokenizer.O200kBase
	if strings.HasPrefix(model, "gpt-4") || strings.HasPrefix(model, "gpt-3.5") {
		enc = tokenizer.Cl100kBase
	}

	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}

	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		// Fallback to character-based estimation on error
		return len(text) / 4
	}

	return count
}

//nolint:gochecknoglobals // codec construction is expensive, share one
var (
	simpleCounter     *TokenCounter
	simpleCounterOnce sync.Once
)

// CountTokensSimple counts tokens with a shared default counter.
func CountTokensSimple(text string) int {
	simpleCounterOnce.Do(func() {
		counter, err := NewTokenCounter("")
		if err != nil {
			counter = &TokenCounter{}
		}
		simpleCounter = counter
	})
	return simpleCounter.CountTokens(text)
}
