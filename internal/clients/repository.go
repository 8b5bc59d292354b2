package clients

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tramitex/tramitex/internal/shared"
)

// Repository provides PostgreSQL backed persistence for clients. The table
// stores doc_key and name_key alongside the raw values so resolution is a
// plain indexed lookup.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const clientColumns = `id, name, document_type, document_number, phone, email, address, city_id, created_at, updated_at`

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.DocumentType, &c.DocumentNumber, &c.Phone, &c.Email, &c.Address, &c.CityID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.E(shared.ErrNotFound, "client not found", nil)
		}
		return nil, err
	}
	return &c, nil
}

// Get returns a client by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Client, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	return scanClient(row)
}

// GetByDocument returns the client whose raw document number matches exactly.
func (r *Repository) GetByDocument(ctx context.Context, documentNumber string) (*Client, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE document_number = $1`, documentNumber)
	return scanClient(row)
}

// GetByDocumentKey returns the client matching the normalized document key.
func (r *Repository) GetByDocumentKey(ctx context.Context, docKey string) (*Client, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE doc_key = $1`, docKey)
	return scanClient(row)
}

// FindByNameKey returns all clients whose normalized name matches.
func (r *Repository) FindByNameKey(ctx context.Context, nameKey string) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+clientColumns+` FROM clients WHERE name_key = $1 ORDER BY created_at`, nameKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.DocumentType, &c.DocumentNumber, &c.Phone, &c.Email, &c.Address, &c.CityID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Create inserts a client, deriving its lookup keys.
func (r *Repository) Create(ctx context.Context, c *Client) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO clients (id, name, document_type, document_number, doc_key, name_key, phone, email, address, city_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.Name, c.DocumentType, c.DocumentNumber, DocumentKey(c.DocumentNumber), NameKey(c.Name), c.Phone, c.Email, c.Address, c.CityID, c.CreatedAt, c.UpdatedAt)
	return err
}

// Update rewrites the mutable fields and re-derives lookup keys.
func (r *Repository) Update(ctx context.Context, c *Client) error {
	c.UpdatedAt = time.Now()
	tag, err := r.pool.Exec(ctx, `UPDATE clients SET name = $2, document_type = $3, document_number = $4, doc_key = $5, name_key = $6, phone = $7, email = $8, address = $9, city_id = $10, updated_at = $11 WHERE id = $1`,
		c.ID, c.Name, c.DocumentType, c.DocumentNumber, DocumentKey(c.DocumentNumber), NameKey(c.Name), c.Phone, c.Email, c.Address, c.CityID, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.ErrNotFound, "client not found", map[string]any{"client_id": c.ID})
	}
	return nil
}

// List returns clients ordered by name, newest first within equal names.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name, created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.DocumentType, &c.DocumentNumber, &c.Phone, &c.Email, &c.Address, &c.CityID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
