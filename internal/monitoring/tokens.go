package monitoring

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

// TokenCounter estimates token counts for served responses. The encoder is
// initialized lazily; when it cannot be loaded (no cached BPE data) the
// counter degrades to the chars/4 heuristic.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter returns a counter using the cl100k_base encoding.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// Count estimates the number of tokens in text.
func (tc *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	tc.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Warn().Err(err).Msg("tiktoken unavailable, using heuristic token counts")
			return
		}
		tc.enc = enc
	})
	if tc.enc == nil {
		return heuristicCount(text)
	}
	return len(tc.enc.Encode(text, nil, nil))
}

// heuristicCount approximates four characters per token, floor one token
// for any non-empty text.
func heuristicCount(text string) int {
	n := len(strings.TrimSpace(text))
	if n == 0 {
		return 0
	}
	tokens := n / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}
