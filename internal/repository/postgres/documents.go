package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/docassist/internal/models"
	"github.com/nikhilbhutani/docassist/internal/repository"
)

type DocumentRepository struct {
	db *pgxpool.Pool
}

var _ repository.DocumentRepository = (*DocumentRepository)(nil)

func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `d.id, d.user_id, d.filename, d.content_type, d.file_size, d.status,
	d.page_count, d.storage_key, d.created_at, d.updated_at,
	(SELECT COUNT(*) FROM document_chunks c WHERE c.document_id = d.id)`

func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, user_id, filename, content_type, file_size, status, page_count, storage_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		doc.ID, doc.UserID, doc.Filename, doc.ContentType, doc.FileSize,
		string(doc.Status), doc.PageCount, doc.StorageKey, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	row := r.db.QueryRow(ctx, "SELECT "+documentColumns+" FROM documents d WHERE d.id = $1", id)
	return scanDocument(row)
}

func (r *DocumentRepository) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Document, error) {
	row := r.db.QueryRow(ctx,
		"SELECT "+documentColumns+" FROM documents d WHERE d.id = $1 AND d.user_id = $2", id, userID)
	return scanDocument(row)
}

func (r *DocumentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Document, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+documentColumns+" FROM documents d WHERE d.user_id = $1 ORDER BY d.created_at DESC, d.id",
		userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) Transition(ctx context.Context, doc *models.Document, from models.DocumentStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $1, page_count = $2, storage_key = $3, updated_at = $4
		 WHERE id = $5 AND status = $6`,
		string(doc.Status), doc.PageCount, doc.StorageKey, doc.UpdatedAt, doc.ID, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("move document %s from %s to %s: %w", doc.ID, from, doc.Status, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *DocumentRepository) FailStale(ctx context.Context, cutoff, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE documents SET status = $1, updated_at = $2
		 WHERE status IN ($3, $4) AND updated_at < $5
		 RETURNING id`,
		string(models.DocStatusFailed), now,
		string(models.DocStatusUploading), string(models.DocStatusProcessing), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("fail stale documents: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("fail stale documents: %w", err)
	}
	return ids, nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var (
		doc    models.Document
		status string
	)
	err := row.Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.ContentType, &doc.FileSize, &status,
		&doc.PageCount, &doc.StorageKey, &doc.CreatedAt, &doc.UpdatedAt, &doc.ChunkCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if doc.Status, err = models.ParseDocumentStatus(status); err != nil {
		return nil, fmt.Errorf("scan document %s: %w", doc.ID, err)
	}
	return &doc, nil
}
