package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

func (r MessageRole) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant:
		return true
	}
	return false
}

func ParseMessageRole(v string) (MessageRole, error) {
	r := MessageRole(v)
	if !r.Valid() {
		return "", fmt.Errorf("unknown message role %q", v)
	}
	return r, nil
}

type ChatSession struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	UserID       uuid.UUID  `json:"user_id" db:"user_id"`
	DocumentID   *uuid.UUID `json:"document_id,omitempty" db:"document_id"`
	Title        string     `json:"title" db:"title"`
	MessageCount int        `json:"message_count" db:"-"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

type ChatMessage struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	SessionID uuid.UUID     `json:"session_id" db:"session_id"`
	Role      MessageRole   `json:"role" db:"role"`
	Content   string        `json:"content" db:"content"`
	Sources   []SourceChunk `json:"sources,omitempty" db:"sources"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// SourceChunk is a citation; it is only ever stored inside an assistant message.
type SourceChunk struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Excerpt    string    `json:"excerpt"`
	Score      float64   `json:"score"`
}
