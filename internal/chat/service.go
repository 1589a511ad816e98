// Package chat runs question-and-answer turns and keeps their history.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/docassist/internal/models"
	"github.com/nikhilbhutani/docassist/internal/rag"
	"github.com/nikhilbhutani/docassist/internal/repository"
)

const maxTitleRunes = 100

// Answerer composes a grounded answer; *rag.Composer satisfies it.
type Answerer interface {
	Compose(ctx context.Context, question string, userID uuid.UUID, documentID *uuid.UUID) (*rag.Answer, error)
}

type Service struct {
	repo     repository.ChatRepository
	answerer Answerer
	now      func() time.Time
}

func NewService(repo repository.ChatRepository, answerer Answerer) *Service {
	return &Service{repo: repo, answerer: answerer, now: repository.Now}
}

type AskRequest struct {
	Question   string
	UserID     uuid.UUID
	SessionID  *uuid.UUID
	DocumentID *uuid.UUID
}

type AskResponse struct {
	SessionID uuid.UUID            `json:"session_id"`
	Answer    string               `json:"answer"`
	Sources   []models.SourceChunk `json:"sources"`
}

// Ask answers one question and records the turn. Nothing is persisted unless
// the answer was produced, and then the session, question and answer are
// written together.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", models.ErrBadRequest)
	}

	var (
		session    *models.ChatSession
		newSession *models.ChatSession
		err        error
	)
	if req.SessionID != nil {
		session, err = s.repo.GetSession(ctx, *req.SessionID, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("load session %s: %w", *req.SessionID, err)
		}
	} else {
		newSession = &models.ChatSession{
			ID:         uuid.New(),
			UserID:     req.UserID,
			DocumentID: req.DocumentID,
			Title:      title(question),
			CreatedAt:  s.now(),
		}
		session = newSession
	}

	scope := req.DocumentID
	if scope == nil {
		scope = session.DocumentID
	}

	asked := s.now()
	answer, err := s.answerer.Compose(ctx, question, req.UserID, scope)
	if err != nil {
		return nil, fmt.Errorf("answer question: %w", err)
	}

	answered := s.now()
	if !answered.After(asked) {
		answered = asked.Add(time.Microsecond)
	}

	turn := repository.Turn{
		NewSession: newSession,
		User: models.ChatMessage{
			ID:        uuid.New(),
			SessionID: session.ID,
			Role:      models.RoleUser,
			Content:   question,
			CreatedAt: asked,
		},
		Assistant: models.ChatMessage{
			ID:        uuid.New(),
			SessionID: session.ID,
			Role:      models.RoleAssistant,
			Content:   answer.Text,
			Sources:   answer.Sources,
			CreatedAt: answered,
		},
	}
	if err := s.repo.SaveTurn(ctx, turn); err != nil {
		return nil, fmt.Errorf("save chat turn: %w", err)
	}

	slog.Info("question answered",
		"session_id", session.ID,
		"user_id", req.UserID,
		"new_session", newSession != nil,
		"sources", len(answer.Sources),
	)
	return &AskResponse{SessionID: session.ID, Answer: answer.Text, Sources: answer.Sources}, nil
}

func (s *Service) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.ChatSession, error) {
	sessions, err := s.repo.ListSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// ListMessages returns the session's messages oldest first, if the session
// belongs to userID.
func (s *Service) ListMessages(ctx context.Context, sessionID, userID uuid.UUID) ([]models.ChatMessage, error) {
	if _, err := s.repo.GetSession(ctx, sessionID, userID); err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	messages, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (s *Service) DeleteSession(ctx context.Context, sessionID, userID uuid.UUID) error {
	if err := s.repo.DeleteSession(ctx, sessionID, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	slog.Info("chat session deleted", "session_id", sessionID, "user_id", userID)
	return nil
}

func title(question string) string {
	if utf8.RuneCountInString(question) <= maxTitleRunes {
		return question
	}
	return string([]rune(question)[:maxTitleRunes])
}
