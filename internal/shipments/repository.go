package shipments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tramitex/tramitex/internal/platform/db"
	"github.com/tramitex/tramitex/internal/shared"
)

// Repository provides PostgreSQL backed persistence for shipments. Case
// links live in shipment_cases so one dispatch can cover many cases.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a shipment together with its case links.
func (r *Repository) Create(ctx context.Context, s *Shipment) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO shipments (id, dealer_id, direction, carrier, tracking_number, notes, sent_at, received_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			s.ID, s.DealerID, s.Direction, s.Carrier, s.TrackingNumber, s.Notes, s.SentAt, s.ReceivedAt, s.CreatedAt)
		if err != nil {
			return err
		}
		for _, caseID := range s.CaseIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO shipment_cases (shipment_id, case_id) VALUES ($1, $2)`, s.ID, caseID); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns a shipment with its case links.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Shipment, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, dealer_id, direction, carrier, tracking_number, notes, sent_at, received_at, created_at FROM shipments WHERE id = $1`, id)
	var s Shipment
	err := row.Scan(&s.ID, &s.DealerID, &s.Direction, &s.Carrier, &s.TrackingNumber, &s.Notes, &s.SentAt, &s.ReceivedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.E(shared.ErrNotFound, "shipment not found", map[string]any{"shipment_id": id})
		}
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT case_id FROM shipment_cases WHERE shipment_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var caseID uuid.UUID
		if err := rows.Scan(&caseID); err != nil {
			return nil, err
		}
		s.CaseIDs = append(s.CaseIDs, caseID)
	}
	return &s, rows.Err()
}

// ListByCase returns shipments linked to a case, newest first.
func (r *Repository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]Shipment, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.dealer_id, s.direction, s.carrier, s.tracking_number, s.notes, s.sent_at, s.received_at, s.created_at
		FROM shipments s JOIN shipment_cases sc ON sc.shipment_id = s.id
		WHERE sc.case_id = $1 ORDER BY s.sent_at DESC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Shipment
	for rows.Next() {
		var s Shipment
		if err := rows.Scan(&s.ID, &s.DealerID, &s.Direction, &s.Carrier, &s.TrackingNumber, &s.Notes, &s.SentAt, &s.ReceivedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkReceived stamps the reception time once.
func (r *Repository) MarkReceived(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE shipments SET received_at = $2 WHERE id = $1 AND received_at IS NULL`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return shared.E(shared.ErrConflict, "shipment already received", map[string]any{"shipment_id": id})
	}
	return nil
}
