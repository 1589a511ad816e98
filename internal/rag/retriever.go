package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/docassist/internal/embedding"
	"github.com/nikhilbhutani/docassist/internal/models"
	"github.com/nikhilbhutani/docassist/internal/vectorstore"
)

type Retriever struct {
	store    vectorstore.EmbeddingStore
	embedder embedding.Embedder
	topK     int
}

func NewRetriever(store vectorstore.EmbeddingStore, embedder embedding.Embedder, topK int) *Retriever {
	return &Retriever{store: store, embedder: embedder, topK: topK}
}

// Retrieve returns the caller's chunks closest to question, best first. A
// non-nil documentID restricts the search to that document.
func (r *Retriever) Retrieve(ctx context.Context, question string, userID uuid.UUID, documentID *uuid.UUID) ([]vectorstore.SearchResult, error) {
	queryVec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		if !errors.Is(err, models.ErrEmbedding) {
			err = fmt.Errorf("%w: %w", models.ErrEmbedding, err)
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.store.SearchSimilar(ctx, queryVec, vectorstore.SearchOptions{
		UserID:     userID,
		DocumentID: documentID,
		TopK:       r.topK,
	})
	if err != nil {
		return nil, fmt.Errorf("search similar chunks: %w", err)
	}
	return results, nil
}
