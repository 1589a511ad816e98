// Package repository declares the persistence ports for documents, chunks and
// conversations. Implementations live in the postgres and sqlite subpackages.
//
// Lookups that miss return an error wrapping models.ErrNotFound. Lookups
// scoped by user treat another user's row as missing.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/docassist/internal/models"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id uuid.UUID) (*models.Document, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Document, error)
	// ListByUser returns newest first, with ChunkCount populated.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Document, error)
	// Transition persists Status, PageCount, StorageKey and UpdatedAt only if
	// the stored status is still from. It reports false when the document is
	// missing or has already moved on.
	Transition(ctx context.Context, doc *models.Document, from models.DocumentStatus) (bool, error)
	// Delete removes the document row; its chunks go with it.
	Delete(ctx context.Context, id uuid.UUID) error
	// FailStale moves every UPLOADING or PROCESSING document last updated
	// before cutoff to FAILED and returns their ids.
	FailStale(ctx context.Context, cutoff, now time.Time) ([]uuid.UUID, error)
}

type ChunkRepository interface {
	// CreateChunks inserts the chunks in slice order.
	CreateChunks(ctx context.Context, chunks []models.DocumentChunk) error
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]models.DocumentChunk, error)
	CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error)
}

// Turn is everything one question/answer exchange writes.
// NewSession is nil when the turn continues an existing session.
type Turn struct {
	NewSession *models.ChatSession
	User       models.ChatMessage
	Assistant  models.ChatMessage
}

type ChatRepository interface {
	GetSession(ctx context.Context, id, userID uuid.UUID) (*models.ChatSession, error)
	// ListSessions returns newest first, with MessageCount populated.
	ListSessions(ctx context.Context, userID uuid.UUID) ([]models.ChatSession, error)
	// ListMessages returns oldest first.
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.ChatMessage, error)
	// SaveTurn writes the turn atomically.
	SaveTurn(ctx context.Context, turn Turn) error
	DeleteSession(ctx context.Context, id, userID uuid.UUID) error
}

// Now is the timestamp source for persisted rows. Postgres keeps microseconds,
// so finer precision would not survive a round trip.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
