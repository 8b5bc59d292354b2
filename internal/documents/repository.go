package documents

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tramitex/tramitex/internal/shared"
)

// Repository provides PostgreSQL backed persistence for document metadata.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a document row.
func (r *Repository) Create(ctx context.Context, d *Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now()
	_, err := r.pool.Exec(ctx, `INSERT INTO documents (id, case_id, kind, filename, path, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.CaseID, d.Kind, d.Filename, d.Path, d.SizeBytes, d.CreatedAt)
	return err
}

// Get returns a document by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, case_id, kind, filename, path, size_bytes, created_at FROM documents WHERE id = $1`, id)
	var d Document
	if err := row.Scan(&d.ID, &d.CaseID, &d.Kind, &d.Filename, &d.Path, &d.SizeBytes, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.E(shared.ErrNotFound, "document not found", map[string]any{"document_id": id})
		}
		return nil, err
	}
	return &d, nil
}

// ListByCase returns a case's documents, oldest first.
func (r *Repository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]Document, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, case_id, kind, filename, path, size_bytes, created_at FROM documents WHERE case_id = $1 ORDER BY created_at`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.CaseID, &d.Kind, &d.Filename, &d.Path, &d.SizeBytes, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Delete removes a document row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.ErrNotFound, "document not found", map[string]any{"document_id": id})
	}
	return nil
}
