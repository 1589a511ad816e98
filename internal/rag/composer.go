package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/docassist/internal/models"
	"github.com/nikhilbhutani/docassist/internal/vectorstore"
	"github.com/nikhilbhutani/docassist/pkg/tokenizer"
)

const (
	NoContextAnswer  = "I couldn't find any relevant information in your documents to answer this question."
	contextSeparator = "\n\n---\n\n"

	systemPrompt = `You are DocAssist, an assistant that answers questions about the user's documents.
Use ONLY the provided context to answer. If the context does not contain enough
information, say so clearly. Do not make up information.

Be concise and accurate, and cite which parts of the context support your answer.`

	userPromptTemplate = `Context from documents:
%s

Question: %s

Answer based on the context above:`
)

type Answer struct {
	Text    string
	Sources []models.SourceChunk
}

type ComposerConfig struct {
	// MaxContextTokens caps the context sent to the generator; zero means no cap.
	MaxContextTokens int
	ExcerptLength    int
}

type Composer struct {
	retriever *Retriever
	generator Generator
	counter   tokenizer.Counter
	cfg       ComposerConfig
}

// NewComposer uses the word-ratio estimate when counter is nil.
func NewComposer(retriever *Retriever, generator Generator, counter tokenizer.Counter, cfg ComposerConfig) *Composer {
	if counter == nil {
		counter = tokenizer.EstimateCounter{}
	}
	if cfg.ExcerptLength <= 0 {
		cfg.ExcerptLength = 200
	}
	return &Composer{retriever: retriever, generator: generator, counter: counter, cfg: cfg}
}

// Compose answers question from the caller's documents. With nothing relevant
// it returns the fixed fallback answer without calling the generator.
func (c *Composer) Compose(ctx context.Context, question string, userID uuid.UUID, documentID *uuid.UUID) (*Answer, error) {
	results, err := c.retriever.Retrieve(ctx, question, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	if len(results) == 0 {
		return &Answer{Text: NoContextAnswer, Sources: []models.SourceChunk{}}, nil
	}

	userPrompt := fmt.Sprintf(userPromptTemplate, c.buildContext(results), question)
	text, err := c.generator.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		if !errors.Is(err, models.ErrGeneration) {
			err = fmt.Errorf("%w: %w", models.ErrGeneration, err)
		}
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	sources := make([]models.SourceChunk, len(results))
	for i, r := range results {
		sources[i] = models.SourceChunk{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			Excerpt:    excerpt(r.Content, c.cfg.ExcerptLength),
			Score:      r.Score,
		}
	}
	return &Answer{Text: text, Sources: sources}, nil
}

// buildContext joins chunk texts in rank order. A chunk that would push the
// context past the budget is left out; the first chunk always goes in.
func (c *Composer) buildContext(results []vectorstore.SearchResult) string {
	sepTokens := c.counter.Count(contextSeparator)
	parts := make([]string, 0, len(results))
	used := 0
	for i, r := range results {
		cost := c.counter.Count(r.Content)
		if i > 0 {
			cost += sepTokens
		}
		if i > 0 && c.cfg.MaxContextTokens > 0 && used+cost > c.cfg.MaxContextTokens {
			continue
		}
		parts = append(parts, r.Content)
		used += cost
	}
	return strings.Join(parts, contextSeparator)
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
