package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nikhilbhutani/docassist/internal/llm"
	"github.com/nikhilbhutani/docassist/internal/models"
)

// Generator produces an answer from a system and a user prompt. Errors wrap
// models.ErrGeneration.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ChatGateway is the slice of llm.Gateway the generator needs.
type ChatGateway interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

type GeneratorOptions struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
}

// LLMGenerator sends the prompts through the provider gateway, which owns
// retries and fallback.
type LLMGenerator struct {
	gateway ChatGateway
	opts    GeneratorOptions
}

var _ Generator = (*LLMGenerator)(nil)

func NewLLMGenerator(gw ChatGateway, opts GeneratorOptions) *LLMGenerator {
	return &LLMGenerator{gateway: gw, opts: opts}
}

func (g *LLMGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := g.gateway.Chat(ctx, llm.ChatRequest{
		Provider: g.opts.Provider,
		Model:    g.opts.Model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrGeneration, err)
	}

	slog.Debug("answer generated",
		"provider", resp.Provider,
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"cost_usd", resp.CostUSD,
		"latency_ms", resp.LatencyMs,
	)
	return resp.Content, nil
}
