package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/docassist/internal/database"
	"github.com/nikhilbhutani/docassist/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db)
}

func embedding(userID, docID uuid.UUID, content string, vec ...float32) models.ChunkEmbedding {
	return models.ChunkEmbedding{
		ChunkID:    uuid.New(),
		DocumentID: docID,
		UserID:     userID,
		Content:    content,
		Vector:     vec,
	}
}

func TestSQLiteStore_OwnerIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	alice, bob := uuid.New(), uuid.New()
	aliceDoc, bobDoc := uuid.New(), uuid.New()

	require.NoError(t, s.Store(ctx, embedding(alice, aliceDoc, "alice one", 1, 0)))
	require.NoError(t, s.Store(ctx, embedding(alice, aliceDoc, "alice two", 0.9, 0.1)))
	// Bob's vector is the exact query; it must still never surface for Alice.
	require.NoError(t, s.Store(ctx, embedding(bob, bobDoc, "bob secret", 1, 0)))

	results, err := s.SearchSimilar(ctx, []float32{1, 0}, SearchOptions{UserID: alice, TopK: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, alice, r.UserID)
		assert.NotEqual(t, "bob secret", r.Content)
	}
	assert.Equal(t, "alice one", results[0].Content)
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
}

func TestSQLiteStore_DocumentFilterAndTopK(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	user := uuid.New()
	docA, docB := uuid.New(), uuid.New()
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Store(ctx, embedding(user, docA, "a", 1, float32(i))))
		require.NoError(t, s.Store(ctx, embedding(user, docB, "b", 1, float32(i))))
	}

	results, err := s.SearchSimilar(ctx, []float32{1, 0}, SearchOptions{UserID: user, DocumentID: &docB, TopK: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, docB, r.DocumentID)
	}

	results, err = s.SearchSimilar(ctx, []float32{1, 0}, SearchOptions{UserID: user, TopK: 100})
	require.NoError(t, err)
	assert.Len(t, results, 8)
}

func TestSQLiteStore_EmptyAndZeroTopK(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	results, err := s.SearchSimilar(ctx, []float32{1, 0}, SearchOptions{UserID: uuid.New(), TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, results)

	user := uuid.New()
	require.NoError(t, s.Store(ctx, embedding(user, uuid.New(), "x", 1, 0)))
	results, err = s.SearchSimilar(ctx, []float32{1, 0}, SearchOptions{UserID: user, TopK: 0})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteStore_DeleteByDocumentID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	user := uuid.New()
	keep, drop := uuid.New(), uuid.New()
	require.NoError(t, s.Store(ctx, embedding(user, keep, "keep", 1, 0)))
	require.NoError(t, s.Store(ctx, embedding(user, drop, "drop", 1, 0)))
	require.NoError(t, s.Store(ctx, embedding(user, drop, "drop", 0, 1)))

	require.NoError(t, s.DeleteByDocumentID(ctx, drop))

	results, err := s.SearchSimilar(ctx, []float32{1, 0}, SearchOptions{UserID: user, TopK: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, keep, results[0].DocumentID)
}

func TestSQLiteStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	user := uuid.New()
	require.NoError(t, s.Store(ctx, embedding(user, uuid.New(), "x", 1, 0, 0)))

	_, err := s.SearchSimilar(ctx, []float32{1, 0}, SearchOptions{UserID: user, TopK: 1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSQLiteStore_OneBadRowDoesNotBreakSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	user, doc := uuid.New(), uuid.New()
	require.NoError(t, s.Store(ctx, embedding(user, uuid.New(), "old", 1, 0, 0)))
	require.NoError(t, s.Store(ctx, embedding(user, doc, "new", 1, 0)))

	results, err := s.SearchSimilar(ctx, []float32{1, 0}, SearchOptions{UserID: user, TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, doc, results[0].DocumentID)
}
