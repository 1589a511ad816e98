package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/docassist/internal/models"
	"github.com/nikhilbhutani/docassist/internal/repository"
)

type ChatRepository struct {
	db *pgxpool.Pool
}

var _ repository.ChatRepository = (*ChatRepository)(nil)

func NewChatRepository(db *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{db: db}
}

const sessionColumns = `s.id, s.user_id, s.document_id, s.title, s.created_at,
	(SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.id)`

func (r *ChatRepository) GetSession(ctx context.Context, id, userID uuid.UUID) (*models.ChatSession, error) {
	row := r.db.QueryRow(ctx,
		"SELECT "+sessionColumns+" FROM chat_sessions s WHERE s.id = $1 AND s.user_id = $2", id, userID)
	return scanSession(row)
}

func (r *ChatRepository) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.ChatSession, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+sessionColumns+" FROM chat_sessions s WHERE s.user_id = $1 ORDER BY s.created_at DESC, s.id",
		userID)
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
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, role, content, sources, created_at
		 FROM chat_messages WHERE session_id = $1 ORDER BY created_at, id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ChatMessage, error) {
		var (
			m       models.ChatMessage
			role    string
			sources []byte
		)
		if err := row.Scan(&m.ID, &m.SessionID, &role, &m.Content, &sources, &m.CreatedAt); err != nil {
			return m, err
		}
		var err error
		if m.Role, err = models.ParseMessageRole(role); err != nil {
			return m, err
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &m.Sources); err != nil {
				return m, fmt.Errorf("decode sources: %w", err)
			}
		}
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	return messages, nil
}

func (r *ChatRepository) SaveTurn(ctx context.Context, turn repository.Turn) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if s := turn.NewSession; s != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO chat_sessions (id, user_id, document_id, title, created_at) VALUES ($1, $2, $3, $4, $5)`,
			s.ID, s.UserID, s.DocumentID, s.Title, s.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
	}

	for _, m := range []models.ChatMessage{turn.User, turn.Assistant} {
		var sources *string
		if len(m.Sources) > 0 {
			data, err := json.Marshal(m.Sources)
			if err != nil {
				return fmt.Errorf("encode sources: %w", err)
			}
			encoded := string(data)
			sources = &encoded
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO chat_messages (id, session_id, role, content, sources, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.SessionID, string(m.Role), m.Content, sources, m.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert %s message: %w", m.Role, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	return nil
}

func (r *ChatRepository) DeleteSession(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM chat_sessions WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func scanSession(row pgx.Row) (*models.ChatSession, error) {
	var s models.ChatSession
	err := row.Scan(&s.ID, &s.UserID, &s.DocumentID, &s.Title, &s.CreatedAt, &s.MessageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}
