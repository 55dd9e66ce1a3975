package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/assaytrack/apiserver/internal/apperr"
	"github.com/assaytrack/apiserver/types"
)

// DocumentRepository handles persistence for sample document metadata.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, sample_id, key, filename, content_type, size, uploaded_by, created_at`

func scanDocument(row interface{ Scan(...any) error }) (types.Document, error) {
	var d types.Document
	err := row.Scan(
		&d.ID,
		&d.SampleID,
		&d.Key,
		&d.Filename,
		&d.ContentType,
		&d.Size,
		&d.UploadedBy,
		&d.CreatedAt,
	)
	return d, err
}

func (r *DocumentRepository) Create(ctx context.Context, doc types.Document) (types.Document, error) {
	doc.CreatedAt = time.Now()

	const query = `
		INSERT INTO documents (sample_id, key, filename, content_type, size, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		doc.SampleID,
		doc.Key,
		doc.Filename,
		doc.ContentType,
		doc.Size,
		doc.UploadedBy,
		doc.CreatedAt,
	).Scan(&doc.ID); err != nil {
		return types.Document{}, mapWriteErr(err, "document", "document key already exists")
	}
	return doc, nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id int) (types.Document, error) {
	const query = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return types.Document{}, mapNotFound(err, "document")
	}
	return doc, nil
}

func (r *DocumentRepository) GetByKey(ctx context.Context, key string) (types.Document, error) {
	const query = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE key = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, strings.TrimSpace(key)))
	if err != nil {
		return types.Document{}, mapNotFound(err, "document")
	}
	return doc, nil
}

func (r *DocumentRepository) ListBySample(ctx context.Context, sampleID int) ([]types.Document, error) {
	const query = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE sample_id = $1
		ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, sampleID)
	if err != nil {
		return nil, mapUpstream(err, "documents")
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, mapUpstream(err, "documents")
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapUpstream(err, "documents")
	}
	return docs, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM documents WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return mapUpstream(err, "document")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return mapUpstream(err, "document")
	}
	if affected == 0 {
		return apperr.NotFound("document")
	}
	return nil
}
