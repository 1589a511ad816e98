package vectorstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/docassist/internal/models"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

type SearchOptions struct {
	// UserID is mandatory; a search never crosses owners.
	UserID     uuid.UUID
	DocumentID *uuid.UUID
	TopK       int
}

type SearchResult struct {
	EmbeddingID uuid.UUID `json:"embedding_id"`
	ChunkID     uuid.UUID `json:"chunk_id"`
	DocumentID  uuid.UUID `json:"document_id"`
	UserID      uuid.UUID `json:"user_id"`
	Content     string    `json:"content"`
	Distance    float64   `json:"distance"`
	Score       float64   `json:"score"`
}

// EmbeddingStore persists chunk vectors and ranks them by cosine distance.
// Results are ordered by ascending distance, ties by embedding id.
type EmbeddingStore interface {
	Store(ctx context.Context, e models.ChunkEmbedding) error
	SearchSimilar(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error)
	DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) error
}
