package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/docassist/internal/models"
	"github.com/nikhilbhutani/docassist/internal/repository"
)

type ChatRepository struct {
	db *sql.DB
}

var _ repository.ChatRepository = (*ChatRepository)(nil)

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

const sessionColumns = `s.id, s.user_id, s.document_id, s.title, s.created_at,
	(SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.id)`

func (r *ChatRepository) GetSession(ctx context.Context, id, userID uuid.UUID) (*models.ChatSession, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM chat_sessions s WHERE s.id = ? AND s.user_id = ?",
		id.String(), userID.String())
	return scanSession(row)
}

func (r *ChatRepository) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.ChatSession, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM chat_sessions s WHERE s.user_id = ? ORDER BY s.created_at DESC, s.id",
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.ChatSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *ChatRepository) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, sources, created_at
		 FROM chat_messages WHERE session_id = ? ORDER BY created_at, id`,
		sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.ChatMessage{}
	for rows.Next() {
		var (
			m         models.ChatMessage
			role      string
			sources   sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &sources, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.Role, err = models.ParseMessageRole(role); err != nil {
			return nil, fmt.Errorf("scan message %s: %w", m.ID, err)
		}
		if sources.Valid && sources.String != "" {
			if err := json.Unmarshal([]byte(sources.String), &m.Sources); err != nil {
				return nil, fmt.Errorf("decode sources of message %s: %w", m.ID, err)
			}
		}
		m.CreatedAt = fromNanos(createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *ChatRepository) SaveTurn(ctx context.Context, turn repository.Turn) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if s := turn.NewSession; s != nil {
		var docID any
		if s.DocumentID != nil {
			docID = s.DocumentID.String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_sessions (id, user_id, document_id, title, created_at) VALUES (?, ?, ?, ?, ?)`,
			s.ID.String(), s.UserID.String(), docID, s.Title, s.CreatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
	}

	for _, m := range []models.ChatMessage{turn.User, turn.Assistant} {
		var sources any
		if len(m.Sources) > 0 {
			data, err := json.Marshal(m.Sources)
			if err != nil {
				return fmt.Errorf("encode sources: %w", err)
			}
			sources = string(data)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_messages (id, session_id, role, content, sources, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID.String(), m.SessionID.String(), string(m.Role), m.Content, sources, m.CreatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert %s message: %w", m.Role, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	return nil
}

func (r *ChatRepository) DeleteSession(ctx context.Context, id, userID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM chat_sessions WHERE id = ? AND user_id = ?", id.String(), userID.String())
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return expectOne(res, "session", id)
}

func scanSession(s scanner) (*models.ChatSession, error) {
	var (
		session   models.ChatSession
		docID     uuid.NullUUID
		createdAt int64
	)
	err := s.Scan(&session.ID, &session.UserID, &docID, &session.Title, &createdAt, &session.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if docID.Valid {
		session.DocumentID = &docID.UUID
	}
	session.CreatedAt = fromNanos(createdAt)
	return &session, nil
}
