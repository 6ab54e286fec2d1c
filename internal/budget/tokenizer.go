package budget

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// encoder is the narrow slice of *tiktoken.Tiktoken the estimator needs.
type encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
}

var (
	tokenizerMu    sync.Mutex
	tokenizerCache = map[string]encoder{}
	tokenizerMiss  = map[string]bool{}
)

// tokenizerFor returns a cached tiktoken encoder for model, or ok=false when
// the model has no known encoding (tiktoken-go fetches BPE ranks from a
// remote cache on first use; a network-less environment fails the same way
// an unrecognised model would, and both land on the char-count fallback).
func tokenizerFor(model string) (encoder, bool) {
	tokenizerMu.Lock()
	defer tokenizerMu.Unlock()

	if enc, ok := tokenizerCache[model]; ok {
		return enc, true
	}
	if tokenizerMiss[model] {
		return nil, false
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tokenizerMiss[model] = true
		return nil, false
	}

	tokenizerCache[model] = enc
	return enc, true
}
