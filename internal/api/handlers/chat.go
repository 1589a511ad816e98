package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/docassist/internal/chat"
	"github.com/nikhilbhutani/docassist/internal/models"
)

const maxChatBody = 64 << 10

// ChatService is what the handler needs from *chat.Service.
type ChatService interface {
	Ask(ctx context.Context, req chat.AskRequest) (*chat.AskResponse, error)
	ListSessions(ctx context.Context, userID uuid.UUID) ([]models.ChatSession, error)
	ListMessages(ctx context.Context, sessionID, userID uuid.UUID) ([]models.ChatMessage, error)
	DeleteSession(ctx context.Context, sessionID, userID uuid.UUID) error
}

type ChatHandler struct {
	svc      ChatService
	validate *validator.Validate
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc, validate: validator.New(validator.WithRequiredStructEnabled())}
}

type askRequest struct {
	Question   string     `json:"question" validate:"required,max=4000"`
	SessionID  *uuid.UUID `json:"session_id"`
	DocumentID *uuid.UUID `json:"document_id"`
}

func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	resp, err := h.svc.Ask(r.Context(), chat.AskRequest{
		Question:   req.Question,
		UserID:     userID,
		SessionID:  req.SessionID,
		DocumentID: req.DocumentID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if resp.Sources == nil {
		resp.Sources = []models.SourceChunk{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	sessions, err := h.svc.ListSessions(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, chi.URLParam(r, "id"), "session")
	if !ok {
		return
	}

	messages, err := h.svc.ListMessages(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages, "count": len(messages)})
}

func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, chi.URLParam(r, "id"), "session")
	if !ok {
		return
	}

	if err := h.svc.DeleteSession(r.Context(), id, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	parts := make([]string, len(verrs))
	for i, e := range verrs {
		parts[i] = fmt.Sprintf("%s failed on '%s'", strings.ToLower(e.Field()), e.Tag())
	}
	return strings.Join(parts, "; ")
}
