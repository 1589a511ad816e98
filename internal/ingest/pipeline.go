// Package ingest turns an uploaded document into searchable chunks.
//
// A document moves UPLOADING -> PROCESSING -> READY, or to FAILED from
// PROCESSING on any error. READY and FAILED are terminal; a failed document
// has to be deleted and uploaded again.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/docassist/internal/document"
	"github.com/nikhilbhutani/docassist/internal/embedding"
	"github.com/nikhilbhutani/docassist/internal/models"
	"github.com/nikhilbhutani/docassist/internal/repository"
	"github.com/nikhilbhutani/docassist/internal/storage"
	"github.com/nikhilbhutani/docassist/internal/vectorstore"
	"github.com/nikhilbhutani/docassist/pkg/chunker"
	"golang.org/x/sync/errgroup"
)

// charsPerPage approximates a printed page for the page-count estimate.
const charsPerPage = 3000

type Config struct {
	MaxTokens        int
	OverlapTokens    int
	EmbedConcurrency int
}

type Pipeline struct {
	docs       repository.DocumentRepository
	chunks     repository.ChunkRepository
	embeddings vectorstore.EmbeddingStore
	blobs      storage.Storage
	extractor  document.Extractor
	embedder   embedding.Embedder
	chunker    *chunker.Chunker
	fanOut     int
	now        func() time.Time
}

func NewPipeline(
	docs repository.DocumentRepository,
	chunks repository.ChunkRepository,
	embeddings vectorstore.EmbeddingStore,
	blobs storage.Storage,
	extractor document.Extractor,
	embedder embedding.Embedder,
	cfg Config,
) *Pipeline {
	fanOut := cfg.EmbedConcurrency
	if fanOut <= 0 {
		fanOut = 1
	}
	return &Pipeline{
		docs:       docs,
		chunks:     chunks,
		embeddings: embeddings,
		blobs:      blobs,
		extractor:  extractor,
		embedder:   embedder,
		chunker:    chunker.New(cfg.MaxTokens, cfg.OverlapTokens),
		fanOut:     fanOut,
		now:        repository.Now,
	}
}

// Process runs every ingestion step for one document. A document that no
// longer exists, or is not PROCESSING, is skipped. On failure the document
// is moved to FAILED and the returned error wraps models.ErrPipelineFailure;
// already written chunks and embeddings are left in place.
func (p *Pipeline) Process(ctx context.Context, documentID uuid.UUID) error {
	start := time.Now()

	doc, err := p.docs.Get(ctx, documentID)
	if errors.Is(err, models.ErrNotFound) {
		slog.Info("document gone before processing, skipping", "document_id", documentID)
		return nil
	}
	if err != nil {
		return p.fail(ctx, documentID, fmt.Errorf("load document: %w", err))
	}
	if doc.Status != models.DocStatusProcessing {
		slog.Info("document not awaiting processing, skipping", "document_id", documentID, "status", doc.Status)
		return nil
	}

	text, err := p.extract(ctx, doc)
	if err != nil {
		return p.fail(ctx, documentID, err)
	}

	chunks, err := p.persistChunks(ctx, doc, text)
	if err != nil {
		return p.fail(ctx, documentID, err)
	}

	if err := p.embedAndStore(ctx, doc, chunks); err != nil {
		return p.fail(ctx, documentID, err)
	}

	pages := max(1, utf8.RuneCountInString(text)/charsPerPage)
	doc.Status = models.DocStatusReady
	doc.PageCount = &pages
	doc.UpdatedAt = p.now()
	moved, err := p.docs.Transition(ctx, doc, models.DocStatusProcessing)
	if err != nil {
		return p.fail(ctx, documentID, fmt.Errorf("mark document ready: %w", err))
	}
	// The document was deleted, or failed by the reconciler, while we were
	// embedding. Either way its status is final.
	if !moved {
		if _, err := p.docs.Get(ctx, documentID); errors.Is(err, models.ErrNotFound) {
			p.dropOrphaned(ctx, documentID)
			return nil
		}
		slog.Warn("document left PROCESSING during the run, keeping its status", "document_id", documentID)
		return nil
	}

	slog.Info("document processed",
		"document_id", documentID,
		"chunks", len(chunks),
		"pages", pages,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *Pipeline) extract(ctx context.Context, doc *models.Document) (string, error) {
	rc, err := p.blobs.Load(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("load document bytes: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read document bytes: %w", err)
	}

	text, err := p.extractor.Extract(ctx, data, doc.ContentType)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return text, nil
}

func (p *Pipeline) persistChunks(ctx context.Context, doc *models.Document, text string) ([]models.DocumentChunk, error) {
	segments := p.chunker.Segments(text)
	now := p.now()

	chunks := make([]models.DocumentChunk, len(segments))
	for i, seg := range segments {
		chunks[i] = models.DocumentChunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			ChunkIndex: seg.Index,
			Content:    seg.Content,
			TokenCount: seg.TokenCount,
			CreatedAt:  now,
		}
	}

	if err := p.chunks.CreateChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("persist chunks: %w", err)
	}
	return chunks, nil
}

// embedAndStore embeds chunks concurrently but stores them in index order.
func (p *Pipeline) embedAndStore(ctx context.Context, doc *models.Document, chunks []models.DocumentChunk) error {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.fanOut)
	for i := range chunks {
		g.Go(func() error {
			v, err := p.embedder.Embed(gctx, chunks[i].Content)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", chunks[i].ChunkIndex, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, c := range chunks {
		if err := p.embeddings.Store(ctx, models.ChunkEmbedding{
			ID:         uuid.New(),
			ChunkID:    c.ID,
			DocumentID: doc.ID,
			UserID:     doc.UserID,
			Content:    c.Content,
			Vector:     vectors[i],
			CreatedAt:  p.now(),
		}); err != nil {
			return fmt.Errorf("store embedding for chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return nil
}

// dropOrphaned removes embeddings written for a document deleted mid-run.
func (p *Pipeline) dropOrphaned(ctx context.Context, documentID uuid.UUID) {
	slog.Info("document deleted during processing, dropping embeddings", "document_id", documentID)
	if err := p.embeddings.DeleteByDocumentID(context.WithoutCancel(ctx), documentID); err != nil {
		slog.Error("failed to drop orphaned embeddings", "document_id", documentID, "error", err)
	}
}

// fail records FAILED on a fresh copy of the document, but only while it is
// still PROCESSING. If the write itself fails the document stays PROCESSING
// until the reconciler sweeps it.
func (p *Pipeline) fail(ctx context.Context, documentID uuid.UUID, cause error) error {
	ctx = context.WithoutCancel(ctx)
	slog.Error("document processing failed", "document_id", documentID, "error", cause)

	doc, err := p.docs.Get(ctx, documentID)
	if err != nil {
		slog.Error("could not reload document to mark it failed", "document_id", documentID, "error", err)
		return fmt.Errorf("%w: %w", models.ErrPipelineFailure, cause)
	}

	doc.Status = models.DocStatusFailed
	doc.UpdatedAt = p.now()
	moved, err := p.docs.Transition(ctx, doc, models.DocStatusProcessing)
	switch {
	case err != nil:
		slog.Error("could not mark document failed", "document_id", documentID, "error", err)
	case !moved:
		slog.Info("document already left PROCESSING, not marking failed", "document_id", documentID)
	}
	return fmt.Errorf("%w: %w", models.ErrPipelineFailure, cause)
}
