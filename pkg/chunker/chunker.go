package chunker

import (
	"strings"

	"github.com/nikhilbhutani/docassist/pkg/tokenizer"
)

const (
	DefaultMaxTokens     = 500
	DefaultOverlapTokens = 50
)

// Segment is one chunk of a document, annotated for persistence.
type Segment struct {
	Index      int
	Content    string
	TokenCount int
}

// Chunker holds the token budgets so callers don't pass them around.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

func New(maxTokens, overlapTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlapTokens < 0 {
		overlapTokens = DefaultOverlapTokens
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}
}

func (c *Chunker) Chunk(text string) []string {
	return Chunk(text, c.maxTokens, c.overlapTokens)
}

// Segments chunks text and numbers the pieces from zero in production order.
func (c *Chunker) Segments(text string) []Segment {
	chunks := c.Chunk(text)
	segments := make([]Segment, len(chunks))
	for i, content := range chunks {
		segments[i] = Segment{
			Index:      i,
			Content:    content,
			TokenCount: tokenizer.EstimateTokenCount(content),
		}
	}
	return segments
}

// Chunk splits text into word windows of floor(maxTokens*0.75) words, each
// window starting floor(overlapTokens*0.75) words before the previous one
// ended. The last window may be short. Blank text yields no chunks.
func Chunk(text string, maxTokens, overlapTokens int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	wordsPerChunk := int(float64(maxTokens) * tokenizer.WordsPerToken)
	overlapWords := int(float64(overlapTokens) * tokenizer.WordsPerToken)
	if wordsPerChunk < 1 {
		wordsPerChunk = 1
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	// The window must advance by at least one word.
	if overlapWords >= wordsPerChunk {
		overlapWords = wordsPerChunk - 1
	}

	chunks := make([]string, 0, len(words)/(wordsPerChunk-overlapWords)+1)
	start := 0
	for {
		end := min(start+wordsPerChunk, len(words))

		content := strings.TrimSpace(strings.Join(words[start:end], " "))
		if content != "" {
			chunks = append(chunks, content)
		}

		if end >= len(words) {
			break
		}
		start = end - overlapWords
	}

	return chunks
}
