package tokenizer

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// WordsPerToken is the whitespace-word to model-token ratio used for every
// estimate in the ingestion path. The chunker derives its window sizes from it.
const WordsPerToken = 0.75

// CountWords returns the number of whitespace-delimited words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// EstimateTokenCount returns round(words / WordsPerToken). Blank text is 0.
func EstimateTokenCount(text string) int {
	words := CountWords(text)
	if words == 0 {
		return 0
	}
	return int(math.Round(float64(words) / WordsPerToken))
}

// Counter counts tokens for budgeting prompts.
type Counter interface {
	Count(text string) int
}

// EstimateCounter is the deterministic word-ratio counter.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	return EstimateTokenCount(text)
}

// TiktokenCounter gives exact BPE counts for OpenAI-family models.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding for %s: %w", model, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
