package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/docassist/internal/models"
)

// SQLiteStore keeps vectors as little-endian float32 blobs. Candidates are
// filtered by owner in SQL and ranked in process.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Store(ctx context.Context, e models.ChunkEmbedding) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunk_embeddings (id, chunk_id, document_id, user_id, content, embedding, dimensions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.ChunkID.String(), e.DocumentID.String(), e.UserID.String(),
		e.Content, encodeVector(e.Vector), len(e.Vector), e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert embedding for chunk %s: %w", e.ChunkID, err)
	}
	return nil
}

func (s *SQLiteStore) SearchSimilar(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error) {
	if opts.TopK <= 0 {
		return []SearchResult{}, nil
	}

	q := `SELECT id, chunk_id, document_id, user_id, content, embedding
	      FROM chunk_embeddings WHERE user_id = ?`
	args := []any{opts.UserID.String()}
	if opts.DocumentID != nil {
		q += " AND document_id = ?"
		args = append(args, opts.DocumentID.String())
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var candidates []models.ChunkEmbedding
	for rows.Next() {
		var (
			e    models.ChunkEmbedding
			blob []byte
		)
		if err := rows.Scan(&e.ID, &e.ChunkID, &e.DocumentID, &e.UserID, &e.Content, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		e.Vector, err = decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decode embedding %s: %w", e.ID, err)
		}
		candidates = append(candidates, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	return Rank(query, candidates, opts.TopK)
}

func (s *SQLiteStore) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunk_embeddings WHERE document_id = ?", documentID.String()); err != nil {
		return fmt.Errorf("delete embeddings for document %s: %w", documentID, err)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
