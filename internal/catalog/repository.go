package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tramitex/tramitex/internal/shared"
)

// Repository provides PostgreSQL backed persistence for catalog entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetDealer returns a dealer by id.
func (r *Repository) GetDealer(ctx context.Context, id uuid.UUID) (*Dealer, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, code, name, nit, active, created_at FROM dealers WHERE id = $1`, id)
	var d Dealer
	if err := row.Scan(&d.ID, &d.Code, &d.Name, &d.NIT, &d.Active, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.E(shared.ErrNotFound, "dealer not found", map[string]any{"dealer_id": id})
		}
		return nil, err
	}
	return &d, nil
}

// ListDealers returns active dealers ordered by name.
func (r *Repository) ListDealers(ctx context.Context) ([]Dealer, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, nit, active, created_at FROM dealers WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Dealer
	for rows.Next() {
		var d Dealer
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.NIT, &d.Active, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CreateDealer inserts a dealer.
func (r *Repository) CreateDealer(ctx context.Context, d *Dealer) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now()
	d.Active = true
	_, err := r.pool.Exec(ctx, `INSERT INTO dealers (id, code, name, nit, active, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.Code, d.Name, d.NIT, d.Active, d.CreatedAt)
	return err
}

// GetCity returns a city by id.
func (r *Repository) GetCity(ctx context.Context, id uuid.UUID) (*City, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, active, created_at FROM cities WHERE id = $1`, id)
	var c City
	if err := row.Scan(&c.ID, &c.Name, &c.Active, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.E(shared.ErrNotFound, "city not found", map[string]any{"city_id": id})
		}
		return nil, err
	}
	return &c, nil
}

// ListCities returns active cities ordered by name.
func (r *Repository) ListCities(ctx context.Context) ([]City, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, active, created_at FROM cities WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []City
	for rows.Next() {
		var c City
		if err := rows.Scan(&c.ID, &c.Name, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCity inserts a city.
func (r *Repository) CreateCity(ctx context.Context, c *City) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	c.Active = true
	_, err := r.pool.Exec(ctx, `INSERT INTO cities (id, name, active, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Active, c.CreatedAt)
	return err
}
