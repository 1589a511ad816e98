package embedding

import (
	"context"
	"fmt"

	"github.com/nikhilbhutani/docassist/internal/llm"
	"github.com/nikhilbhutani/docassist/internal/models"
)

// Embedder turns text into a fixed-length vector. Errors wrap models.ErrEmbedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Gateway is the slice of llm.Gateway the service needs.
type Gateway interface {
	Embed(ctx context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error)
}

type Service struct {
	gateway    Gateway
	model      string
	dimensions int
}

var _ Embedder = (*Service)(nil)

func NewService(gw Gateway, model string, dimensions int) *Service {
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &Service{gateway: gw, model: model, dimensions: dimensions}
}

func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch embeds texts in groups of 100 to stay under provider input limits.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	const batchSize = 100
	all := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += batchSize {
		batch := texts[i:min(i+batchSize, len(texts))]

		resp, err := s.gateway.Embed(ctx, llm.EmbeddingRequest{
			Model:      s.model,
			Input:      batch,
			Dimensions: s.dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d: %w", models.ErrEmbedding, i/batchSize, err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("%w: batch %d: got %d vectors for %d inputs",
				models.ErrEmbedding, i/batchSize, len(resp.Embeddings), len(batch))
		}
		for j, v := range resp.Embeddings {
			if len(v) == 0 {
				return nil, fmt.Errorf("%w: empty vector for input %d", models.ErrEmbedding, i+j)
			}
			if s.dimensions > 0 && len(v) != s.dimensions {
				return nil, fmt.Errorf("%w: vector for input %d has %d dimensions, want %d",
					models.ErrEmbedding, i+j, len(v), s.dimensions)
			}
		}
		all = append(all, resp.Embeddings...)
	}

	return all, nil
}
