package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/docassist/internal/database"
	"github.com/nikhilbhutani/docassist/internal/models"
	"github.com/nikhilbhutani/docassist/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newDocument(userID uuid.UUID, createdAt time.Time) *models.Document {
	return &models.Document{
		ID:          uuid.New(),
		UserID:      userID,
		Filename:    "notes.txt",
		ContentType: "text/plain",
		FileSize:    42,
		Status:      models.DocStatusUploading,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestDocumentRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(openDB(t))

	owner := uuid.New()
	doc := newDocument(owner, repository.Now())
	require.NoError(t, repo.Create(ctx, doc))

	got, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Filename, got.Filename)
	assert.Equal(t, models.DocStatusUploading, got.Status)
	assert.Nil(t, got.PageCount)
	assert.True(t, doc.CreatedAt.Equal(got.CreatedAt))

	pages := 3
	got.Status = models.DocStatusReady
	got.PageCount = &pages
	got.StorageKey = "key"
	got.UpdatedAt = repository.Now()
	moved, err := repo.Transition(ctx, got, models.DocStatusUploading)
	require.NoError(t, err)
	require.True(t, moved)

	got, err = repo.GetForUser(ctx, doc.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusReady, got.Status)
	require.NotNil(t, got.PageCount)
	assert.Equal(t, 3, *got.PageCount)
	assert.Equal(t, "key", got.StorageKey)

	require.NoError(t, repo.Delete(ctx, doc.ID))
	_, err = repo.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, doc.ID), models.ErrNotFound)
}

func TestDocumentRepository_OwnershipScoping(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(openDB(t))

	owner, other := uuid.New(), uuid.New()
	doc := newDocument(owner, repository.Now())
	require.NoError(t, repo.Create(ctx, doc))

	_, err := repo.GetForUser(ctx, doc.ID, other)
	assert.ErrorIs(t, err, models.ErrNotFound)

	docs, err := repo.ListByUser(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDocumentRepository_ListNewestFirstWithChunkCounts(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	docs := NewDocumentRepository(db)
	chunks := NewChunkRepository(db)

	owner := uuid.New()
	base := repository.Now()
	older := newDocument(owner, base.Add(-time.Hour))
	newer := newDocument(owner, base)
	require.NoError(t, docs.Create(ctx, older))
	require.NoError(t, docs.Create(ctx, newer))

	require.NoError(t, chunks.CreateChunks(ctx, []models.DocumentChunk{
		{ID: uuid.New(), DocumentID: older.ID, ChunkIndex: 0, Content: "a", TokenCount: 1, CreatedAt: base},
		{ID: uuid.New(), DocumentID: older.ID, ChunkIndex: 1, Content: "b", TokenCount: 1, CreatedAt: base},
	}))

	list, err := docs.ListByUser(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, 0, list[0].ChunkCount)
	assert.Equal(t, older.ID, list[1].ID)
	assert.Equal(t, 2, list[1].ChunkCount)
}

func TestDocumentRepository_TransitionMissing(t *testing.T) {
	repo := NewDocumentRepository(openDB(t))
	moved, err := repo.Transition(context.Background(), newDocument(uuid.New(), repository.Now()), models.DocStatusUploading)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestDocumentRepository_TransitionRequiresExpectedStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(openDB(t))

	doc := newDocument(uuid.New(), repository.Now())
	doc.Status = models.DocStatusFailed
	require.NoError(t, repo.Create(ctx, doc))

	doc.Status = models.DocStatusReady
	moved, err := repo.Transition(ctx, doc, models.DocStatusProcessing)
	require.NoError(t, err)
	assert.False(t, moved)

	got, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, got.Status)
}

func TestDocumentRepository_FailStale(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(openDB(t))

	now := repository.Now()
	owner := uuid.New()

	stuck := newDocument(owner, now.Add(-2*time.Hour))
	stuck.Status = models.DocStatusProcessing
	fresh := newDocument(owner, now.Add(-time.Minute))
	fresh.Status = models.DocStatusProcessing
	ready := newDocument(owner, now.Add(-2*time.Hour))
	ready.Status = models.DocStatusReady
	abandoned := newDocument(owner, now.Add(-2*time.Hour))
	for _, d := range []*models.Document{stuck, fresh, ready, abandoned} {
		require.NoError(t, repo.Create(ctx, d))
	}

	ids, err := repo.FailStale(ctx, now.Add(-30*time.Minute), now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{stuck.ID, abandoned.ID}, ids)

	got, err := repo.Get(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, got.Status)

	got, err = repo.Get(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, got.Status)

	got, err = repo.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusProcessing, got.Status)
}

func TestChunkRepository_OrderAndCascade(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	docs := NewDocumentRepository(db)
	chunks := NewChunkRepository(db)

	doc := newDocument(uuid.New(), repository.Now())
	require.NoError(t, docs.Create(ctx, doc))

	var in []models.DocumentChunk
	for i := 0; i < 5; i++ {
		in = append(in, models.DocumentChunk{
			ID: uuid.New(), DocumentID: doc.ID, ChunkIndex: i,
			Content: "chunk", TokenCount: 1, CreatedAt: repository.Now(),
		})
	}
	require.NoError(t, chunks.CreateChunks(ctx, in))

	out, err := chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, c := range out {
		assert.Equal(t, i, c.ChunkIndex)
	}

	require.NoError(t, docs.Delete(ctx, doc.ID))
	n, err := chunks.CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChatRepository_SaveTurnAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(openDB(t))

	owner := uuid.New()
	docID := uuid.New()
	now := repository.Now()
	session := &models.ChatSession{
		ID: uuid.New(), UserID: owner, DocumentID: &docID, Title: "What colour is the sky?", CreatedAt: now,
	}

	turn := repository.Turn{
		NewSession: session,
		User: models.ChatMessage{
			ID: uuid.New(), SessionID: session.ID, Role: models.RoleUser,
			Content: "What colour is the sky?", CreatedAt: now,
		},
		Assistant: models.ChatMessage{
			ID: uuid.New(), SessionID: session.ID, Role: models.RoleAssistant,
			Content: "Blue.", CreatedAt: now.Add(time.Microsecond),
			Sources: []models.SourceChunk{{ChunkID: uuid.New(), DocumentID: docID, Excerpt: "The sky is blue.", Score: 0.9}},
		},
	}
	require.NoError(t, repo.SaveTurn(ctx, turn))

	got, err := repo.GetSession(ctx, session.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)
	require.NotNil(t, got.DocumentID)
	assert.Equal(t, docID, *got.DocumentID)

	messages, err := repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Empty(t, messages[0].Sources)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)
	require.Len(t, messages[1].Sources, 1)
	assert.Equal(t, "The sky is blue.", messages[1].Sources[0].Excerpt)

	sessions, err := repo.ListSessions(ctx, owner)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].MessageCount)

	_, err = repo.GetSession(ctx, session.ID, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestChatRepository_SaveTurnIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(openDB(t))

	owner := uuid.New()
	now := repository.Now()
	session := &models.ChatSession{ID: uuid.New(), UserID: owner, Title: "q", CreatedAt: now}
	dup := uuid.New()

	// Reusing the message id makes the second insert fail after the session
	// and first message were written.
	err := repo.SaveTurn(ctx, repository.Turn{
		NewSession: session,
		User:       models.ChatMessage{ID: dup, SessionID: session.ID, Role: models.RoleUser, Content: "q", CreatedAt: now},
		Assistant:  models.ChatMessage{ID: dup, SessionID: session.ID, Role: models.RoleAssistant, Content: "a", CreatedAt: now},
	})
	require.Error(t, err)

	sessions, err := repo.ListSessions(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestChatRepository_DeleteSessionCascades(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(openDB(t))

	owner := uuid.New()
	now := repository.Now()
	session := &models.ChatSession{ID: uuid.New(), UserID: owner, Title: "q", CreatedAt: now}
	require.NoError(t, repo.SaveTurn(ctx, repository.Turn{
		NewSession: session,
		User:       models.ChatMessage{ID: uuid.New(), SessionID: session.ID, Role: models.RoleUser, Content: "q", CreatedAt: now},
		Assistant:  models.ChatMessage{ID: uuid.New(), SessionID: session.ID, Role: models.RoleAssistant, Content: "a", CreatedAt: now.Add(time.Microsecond)},
	}))

	assert.ErrorIs(t, repo.DeleteSession(ctx, session.ID, uuid.New()), models.ErrNotFound)
	require.NoError(t, repo.DeleteSession(ctx, session.ID, owner))

	messages, err := repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}
