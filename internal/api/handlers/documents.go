package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/docassist/internal/document"
	"github.com/nikhilbhutani/docassist/internal/models"
)

// multipartOverhead is slack for form boundaries and headers on top of the file limit.
const multipartOverhead = 1 << 20

// DocumentService is what the handler needs from *document.Service.
type DocumentService interface {
	Upload(ctx context.Context, req document.UploadRequest) (*models.Document, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Document, error)
	Get(ctx context.Context, id, userID uuid.UUID) (*models.Document, error)
	Status(ctx context.Context, id, userID uuid.UUID) (*models.DocumentStatusSummary, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

type DocumentHandler struct {
	svc      DocumentService
	maxBytes int64
}

func NewDocumentHandler(svc DocumentService, maxBytes int64) *DocumentHandler {
	return &DocumentHandler{svc: svc, maxBytes: maxBytes}
}

type documentResponse struct {
	ID          uuid.UUID             `json:"id"`
	Filename    string                `json:"filename"`
	ContentType string                `json:"content_type"`
	FileSize    int64                 `json:"file_size"`
	Status      models.DocumentStatus `json:"status"`
	PageCount   *int                  `json:"page_count,omitempty"`
	ChunkCount  int                   `json:"chunk_count"`
	CreatedAt   time.Time             `json:"created_at"`
}

func toDocumentResponse(d *models.Document) documentResponse {
	return documentResponse{
		ID:          d.ID,
		Filename:    d.Filename,
		ContentType: d.ContentType,
		FileSize:    d.FileSize,
		Status:      d.Status,
		PageCount:   d.PageCount,
		ChunkCount:  d.ChunkCount,
		CreatedAt:   d.CreatedAt,
	}
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	doc, err := h.svc.Upload(r.Context(), document.UploadRequest{
		UserID:      userID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        file,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	docs, err := h.svc.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]documentResponse, len(docs))
	for i := range docs {
		out[i] = toDocumentResponse(&docs[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out, "count": len(out)})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, chi.URLParam(r, "id"), "document")
	if !ok {
		return
	}

	doc, err := h.svc.Get(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, chi.URLParam(r, "id"), "document")
	if !ok {
		return
	}

	status, err := h.svc.Status(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, chi.URLParam(r, "id"), "document")
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
