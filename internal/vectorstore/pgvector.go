package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/docassist/internal/models"
	"github.com/pgvector/pgvector-go"
)

type PgVectorStore struct {
	db *pgxpool.Pool
}

func NewPgVectorStore(db *pgxpool.Pool) *PgVectorStore {
	return &PgVectorStore{db: db}
}

func (s *PgVectorStore) Store(ctx context.Context, e models.ChunkEmbedding) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO chunk_embeddings (id, chunk_id, document_id, user_id, content, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ChunkID, e.DocumentID, e.UserID, e.Content, pgvector.NewVector(e.Vector), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert embedding for chunk %s: %w", e.ChunkID, err)
	}
	return nil
}

func (s *PgVectorStore) SearchSimilar(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error) {
	if opts.TopK <= 0 {
		return []SearchResult{}, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, chunk_id, document_id, user_id, content,
		        COALESCE(NULLIF(embedding <=> $1, 'NaN'::float8), 1) AS distance
		 FROM chunk_embeddings
		 WHERE user_id = $2
		   AND ($3::uuid IS NULL OR document_id = $3)
		 ORDER BY distance, id
		 LIMIT $4`,
		pgvector.NewVector(query), opts.UserID, opts.DocumentID, opts.TopK,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0, opts.TopK)
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.EmbeddingID, &r.ChunkID, &r.DocumentID, &r.UserID, &r.Content, &r.Distance); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Score = 1 - r.Distance
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return results, nil
}

func (s *PgVectorStore) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM chunk_embeddings WHERE document_id = $1", documentID); err != nil {
		return fmt.Errorf("delete embeddings for document %s: %w", documentID, err)
	}
	return nil
}
