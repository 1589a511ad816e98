package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/docassist/internal/models"
	"github.com/nikhilbhutani/docassist/internal/repository"
)

type DocumentRepository struct {
	db *sql.DB
}

var _ repository.DocumentRepository = (*DocumentRepository)(nil)

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `d.id, d.user_id, d.filename, d.content_type, d.file_size, d.status,
	d.page_count, d.storage_key, d.created_at, d.updated_at,
	(SELECT COUNT(*) FROM document_chunks c WHERE c.document_id = d.id)`

func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, user_id, filename, content_type, file_size, status, page_count, storage_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID.String(), doc.UserID.String(), doc.Filename, doc.ContentType, doc.FileSize,
		string(doc.Status), nullableInt(doc.PageCount), doc.StorageKey,
		doc.CreatedAt.UnixNano(), doc.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents d WHERE d.id = ?", id.String())
	return scanDocument(row)
}

func (r *DocumentRepository) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Document, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents d WHERE d.id = ? AND d.user_id = ?",
		id.String(), userID.String())
	return scanDocument(row)
}

func (r *DocumentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents d WHERE d.user_id = ? ORDER BY d.created_at DESC, d.id",
		userID.String())
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
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, page_count = ?, storage_key = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(doc.Status), nullableInt(doc.PageCount), doc.StorageKey, doc.UpdatedAt.UnixNano(),
		doc.ID.String(), string(from),
	)
	if err != nil {
		return false, fmt.Errorf("move document %s from %s to %s: %w", doc.ID, from, doc.Status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("document %s rows affected: %w", doc.ID, err)
	}
	return n == 1, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return expectOne(res, "document", id)
}

func (r *DocumentRepository) FailStale(ctx context.Context, cutoff, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE documents SET status = ?, updated_at = ?
		 WHERE status IN (?, ?) AND updated_at < ?
		 RETURNING id`,
		string(models.DocStatusFailed), now.UnixNano(),
		string(models.DocStatusUploading), string(models.DocStatusProcessing), cutoff.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("fail stale documents: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*models.Document, error) {
	var (
		doc                  models.Document
		status               string
		pageCount            sql.NullInt64
		createdAt, updatedAt int64
	)
	err := s.Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.ContentType, &doc.FileSize, &status,
		&pageCount, &doc.StorageKey, &createdAt, &updatedAt, &doc.ChunkCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if doc.Status, err = models.ParseDocumentStatus(status); err != nil {
		return nil, fmt.Errorf("scan document %s: %w", doc.ID, err)
	}
	if pageCount.Valid {
		n := int(pageCount.Int64)
		doc.PageCount = &n
	}
	doc.CreatedAt = fromNanos(createdAt)
	doc.UpdatedAt = fromNanos(updatedAt)
	return &doc, nil
}

func expectOne(res sql.Result, what string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s rows affected: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, models.ErrNotFound)
	}
	return nil
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
