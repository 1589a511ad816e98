package document

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/docassist/internal/models"
	"github.com/nikhilbhutani/docassist/internal/repository"
	"github.com/nikhilbhutani/docassist/internal/storage"
	"github.com/nikhilbhutani/docassist/internal/vectorstore"
	"github.com/nikhilbhutani/docassist/pkg/textextract"
)

// Dispatcher schedules background processing of an uploaded document.
type Dispatcher interface {
	DispatchProcessing(ctx context.Context, documentID uuid.UUID) error
}

type Service struct {
	docs       repository.DocumentRepository
	embeddings vectorstore.EmbeddingStore
	blobs      storage.Storage
	dispatcher Dispatcher
	maxBytes   int64
	now        func() time.Time
}

func NewService(
	docs repository.DocumentRepository,
	embeddings vectorstore.EmbeddingStore,
	blobs storage.Storage,
	dispatcher Dispatcher,
	maxBytes int64,
) *Service {
	return &Service{
		docs:       docs,
		embeddings: embeddings,
		blobs:      blobs,
		dispatcher: dispatcher,
		maxBytes:   maxBytes,
		now:        repository.Now,
	}
}

type UploadRequest struct {
	UserID      uuid.UUID
	Filename    string
	ContentType string
	Size        int64
	Data        io.Reader
}

func (s *Service) validate(req *UploadRequest) error {
	switch {
	case req.UserID == uuid.Nil:
		return fmt.Errorf("%w: user id is required", models.ErrBadRequest)
	case strings.TrimSpace(req.Filename) == "":
		return fmt.Errorf("%w: filename is required", models.ErrBadRequest)
	case req.Data == nil || req.Size == 0:
		return fmt.Errorf("%w: file is empty", models.ErrBadRequest)
	case s.maxBytes > 0 && req.Size > s.maxBytes:
		return fmt.Errorf("%w: file is %d bytes, limit is %d", models.ErrBadRequest, req.Size, s.maxBytes)
	}

	ct, ok := textextract.ResolveContentType(req.ContentType, req.Filename)
	if !ok {
		return fmt.Errorf("%w: unsupported file type %q", models.ErrBadRequest, req.ContentType)
	}
	req.ContentType = ct
	return nil
}

// Upload records the document, stores its bytes and hands it to background
// processing. It returns once the document is PROCESSING.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*models.Document, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	now := s.now()
	doc := &models.Document{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		FileSize:    req.Size,
		Status:      models.DocStatusUploading,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	key := storage.Key(doc.ID, doc.Filename)
	data := req.Data
	if s.maxBytes > 0 {
		data = io.LimitReader(data, s.maxBytes)
	}
	if err := s.blobs.Store(ctx, key, data, doc.ContentType); err != nil {
		s.markFailed(ctx, doc, "store bytes", err)
		return nil, fmt.Errorf("store document bytes: %w", err)
	}

	doc.Status = models.DocStatusProcessing
	doc.StorageKey = key
	doc.UpdatedAt = s.now()
	moved, err := s.docs.Transition(ctx, doc, models.DocStatusUploading)
	if err == nil && !moved {
		// Swept by the reconciler while the bytes were being stored.
		err = fmt.Errorf("document %s is no longer uploading", doc.ID)
	}
	if err != nil {
		doc.Status = models.DocStatusUploading
		s.markFailed(ctx, doc, "mark processing", err)
		return nil, fmt.Errorf("mark document processing: %w", err)
	}

	if err := s.dispatcher.DispatchProcessing(ctx, doc.ID); err != nil {
		s.markFailed(ctx, doc, "dispatch", err)
		return nil, fmt.Errorf("dispatch processing: %w", err)
	}

	slog.Info("document uploaded",
		"document_id", doc.ID,
		"user_id", doc.UserID,
		"content_type", doc.ContentType,
		"size", doc.FileSize,
	)
	return doc, nil
}

// markFailed moves doc from its current status to FAILED. A document that
// is not marked here is left for the reconciler.
func (s *Service) markFailed(ctx context.Context, doc *models.Document, stage string, cause error) {
	ctx = context.WithoutCancel(ctx)
	from := doc.Status
	doc.Status = models.DocStatusFailed
	doc.UpdatedAt = s.now()
	moved, err := s.docs.Transition(ctx, doc, from)
	if err != nil {
		slog.Error("failed to mark document failed",
			"document_id", doc.ID, "stage", stage, "cause", cause, "error", err)
		return
	}
	if !moved {
		slog.Info("document already left "+string(from), "document_id", doc.ID, "stage", stage)
	}
	slog.Warn("document upload failed", "document_id", doc.ID, "stage", stage, "error", cause)
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.Document, error) {
	docs, err := s.docs.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (s *Service) Get(ctx context.Context, id, userID uuid.UUID) (*models.Document, error) {
	doc, err := s.docs.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

func (s *Service) Status(ctx context.Context, id, userID uuid.UUID) (*models.DocumentStatusSummary, error) {
	doc, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return &models.DocumentStatusSummary{
		ID:         doc.ID,
		Status:     doc.Status,
		ChunkCount: doc.ChunkCount,
	}, nil
}

// Delete removes the document's embeddings, row (and with it the chunks) and
// stored bytes. Byte removal is best effort.
func (s *Service) Delete(ctx context.Context, id, userID uuid.UUID) error {
	doc, err := s.Get(ctx, id, userID)
	if err != nil {
		return err
	}

	if err := s.embeddings.DeleteByDocumentID(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	if err := s.docs.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	if doc.StorageKey != "" {
		if err := s.blobs.Delete(ctx, doc.StorageKey); err != nil {
			slog.Warn("failed to delete stored bytes", "document_id", doc.ID, "key", doc.StorageKey, "error", err)
		}
	}

	slog.Info("document deleted", "document_id", doc.ID, "user_id", userID)
	return nil
}
