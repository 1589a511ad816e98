package vectorstore

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/nikhilbhutani/docassist/internal/models"
)

// CosineDistance returns 1 - cos(a, b), matching pgvector's <=> operator.
// A zero vector is treated as orthogonal to everything; pgvector yields NaN
// there, which PgVectorStore maps to 1 as well.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 1, nil
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)), nil
}

// Rank scores candidates against query and keeps the topK closest.
// Candidates of another dimension are skipped; if none share the query's
// dimension the query itself is wrong and ErrDimensionMismatch is returned.
func Rank(query []float32, candidates []models.ChunkEmbedding, topK int) ([]SearchResult, error) {
	results := make([]SearchResult, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		d, err := CosineDistance(query, c.Vector)
		if err != nil {
			slog.Warn("skipping embedding with unexpected dimension",
				"embedding_id", c.ID, "document_id", c.DocumentID, "want", len(query), "got", len(c.Vector))
			skipped++
			continue
		}
		results = append(results, SearchResult{
			EmbeddingID: c.ID,
			ChunkID:     c.ChunkID,
			DocumentID:  c.DocumentID,
			UserID:      c.UserID,
			Content:     c.Content,
			Distance:    d,
			Score:       1 - d,
		})
	}

	if skipped > 0 && len(results) == 0 {
		return nil, fmt.Errorf("%w: query has %d dimensions, no stored embedding does", ErrDimensionMismatch, len(query))
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return bytes.Compare(results[i].EmbeddingID[:], results[j].EmbeddingID[:]) < 0
	})

	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}
