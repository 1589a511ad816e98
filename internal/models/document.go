package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	DocStatusUploading  DocumentStatus = "UPLOADING"
	DocStatusProcessing DocumentStatus = "PROCESSING"
	DocStatusReady      DocumentStatus = "READY"
	DocStatusFailed     DocumentStatus = "FAILED"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case DocStatusUploading, DocStatusProcessing, DocStatusReady, DocStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the pipeline will never move the document again.
func (s DocumentStatus) Terminal() bool {
	return s == DocStatusReady || s == DocStatusFailed
}

func ParseDocumentStatus(v string) (DocumentStatus, error) {
	s := DocumentStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown document status %q", v)
	}
	return s, nil
}

type Document struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	UserID      uuid.UUID      `json:"user_id" db:"user_id"`
	Filename    string         `json:"filename" db:"filename"`
	ContentType string         `json:"content_type" db:"content_type"`
	FileSize    int64          `json:"file_size" db:"file_size"`
	Status      DocumentStatus `json:"status" db:"status"`
	PageCount   *int           `json:"page_count,omitempty" db:"page_count"`
	StorageKey  string         `json:"-" db:"storage_key"`
	ChunkCount  int            `json:"chunk_count" db:"-"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

type DocumentChunk struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DocumentID uuid.UUID `json:"document_id" db:"document_id"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Content    string    `json:"content" db:"content"`
	TokenCount int       `json:"token_count" db:"token_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ChunkEmbedding carries the owner and document of its chunk so similarity
// search can filter without a join.
type ChunkEmbedding struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ChunkID    uuid.UUID `json:"chunk_id" db:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id" db:"document_id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	Content    string    `json:"content" db:"content"`
	Vector     []float32 `json:"-" db:"embedding"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type DocumentStatusSummary struct {
	ID         uuid.UUID      `json:"id"`
	Status     DocumentStatus `json:"status"`
	ChunkCount int            `json:"chunk_count"`
}
