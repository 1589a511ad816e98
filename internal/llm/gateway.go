package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/docassist/internal/config"
)

// Gateway routes chat and embedding calls to configured providers, retrying
// with quadratic backoff and falling back to a second provider for chat.
type Gateway struct {
	providers         map[string]Provider
	defaultProvider   string
	fallbackProvider  string
	embeddingProvider string
	maxRetries        int
	backoff           func(attempt int) time.Duration
}

func NewGateway(cfg config.LLMConfig) *Gateway {
	var providers []Provider
	if cfg.OpenAIKey != "" {
		providers = append(providers, NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIBaseURL))
	}
	if cfg.AnthropicKey != "" {
		providers = append(providers, NewAnthropicProvider(cfg.AnthropicKey))
	}
	if cfg.OllamaURL != "" {
		providers = append(providers, NewOllamaProvider(cfg.OllamaURL))
	}
	return NewGatewayWithProviders(cfg, providers...)
}

func NewGatewayWithProviders(cfg config.LLMConfig, providers ...Provider) *Gateway {
	g := &Gateway{
		providers:         make(map[string]Provider, len(providers)),
		defaultProvider:   cfg.DefaultProvider,
		fallbackProvider:  cfg.FallbackProvider,
		embeddingProvider: cfg.EmbeddingProvider,
		maxRetries:        cfg.MaxRetries,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * 500 * time.Millisecond
		},
	}
	if g.embeddingProvider == "" {
		g.embeddingProvider = g.defaultProvider
	}
	for _, p := range providers {
		g.providers[p.Name()] = p
	}
	return g
}

func (g *Gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

func (g *Gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	resp, err := g.chatWithRetry(ctx, providerName, req)
	if err != nil && g.fallbackProvider != "" && g.fallbackProvider != providerName && ctx.Err() == nil {
		slog.Warn("primary provider failed, trying fallback",
			"primary", providerName,
			"fallback", g.fallbackProvider,
			"error", err,
		)
		return g.chatWithRetry(ctx, g.fallbackProvider, req)
	}
	return resp, err
}

func (g *Gateway) chatWithRetry(ctx context.Context, providerName string, req ChatRequest) (*ChatResponse, error) {
	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}

	resp, err := retry(ctx, g, providerName, func() (*ChatResponse, error) {
		return p.ChatCompletion(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("llm chat completed",
		"provider", resp.Provider,
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"cost_usd", resp.CostUSD,
		"latency_ms", resp.LatencyMs,
	)
	return resp, nil
}

func (g *Gateway) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.embeddingProvider
	}

	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}

	return retry(ctx, g, providerName, func() (*EmbeddingResponse, error) {
		return p.GenerateEmbedding(ctx, req)
	})
}

func retry[T any](ctx context.Context, g *Gateway, providerName string, call func() (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(g.backoff(attempt)):
			}
			slog.Debug("retrying LLM call", "provider", providerName, "attempt", attempt)
		}

		resp, err := call()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if errors.Is(err, ErrEmbeddingsUnsupported) || ctx.Err() != nil {
			break
		}
	}
	return zero, fmt.Errorf("all retries exhausted for %s: %w", providerName, lastErr)
}
