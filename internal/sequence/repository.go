package sequence

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

// Repository provides PostgreSQL backed persistence for reservations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const reservationColumns = `id, dealer_id, year, number, status, case_id, released_at, created_at`

func scanReservation(row pgx.Row) (*Reservation, error) {
	var res Reservation
	err := row.Scan(&res.ID, &res.DealerID, &res.Year, &res.Number, &res.Status, &res.CaseID, &res.ReleasedAt, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.E(shared.ErrNotFound, "reservation not found", nil)
		}
		return nil, err
	}
	return &res, nil
}

// ReserveOnce runs a single serializable read-scan-insert attempt. The caller
// owns the retry loop; serialization conflicts surface unchanged so they can
// be classified with db.IsSerializationFailure.
func (r *Repository) ReserveOnce(ctx context.Context, dealerID uuid.UUID, year int) (*Reservation, error) {
	var res *Reservation
	err := db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT number FROM sequence_reservations WHERE dealer_id = $1 AND year = $2 AND status IN ('RESERVED','BOUND') ORDER BY number`, dealerID, year)
		if err != nil {
			return err
		}
		defer rows.Close()
		var claimed []int
		for rows.Next() {
			var n int
			if err := rows.Scan(&n); err != nil {
				return err
			}
			claimed = append(claimed, n)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		res = &Reservation{
			ID:        uuid.New(),
			DealerID:  dealerID,
			Year:      year,
			Number:    NextFree(claimed),
			Status:    StatusReserved,
			CreatedAt: time.Now(),
		}
		_, err = tx.Exec(ctx, `INSERT INTO sequence_reservations (id, dealer_id, year, number, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			res.ID, res.DealerID, res.Year, res.Number, res.Status, res.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Get returns a reservation by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM sequence_reservations WHERE id = $1`, id)
	return scanReservation(row)
}

// ActiveByCase returns the BOUND reservation for a case, if any.
func (r *Repository) ActiveByCase(ctx context.Context, caseID uuid.UUID) (*Reservation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM sequence_reservations WHERE case_id = $1 AND status = 'BOUND'`, caseID)
	return scanReservation(row)
}

// Bind attaches a RESERVED reservation to a case.
func (r *Repository) Bind(ctx context.Context, id, caseID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sequence_reservations SET status = 'BOUND', case_id = $2 WHERE id = $1 AND status = 'RESERVED'`, id, caseID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	existing, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return shared.E(shared.ErrConflict, "reservation is not reservable", map[string]any{
		"reservation_id": id, "status": existing.Status,
	})
}

// Release returns a reservation to the pool. Releasing an already-released
// reservation is a no-op so compensation paths can call it blindly.
func (r *Repository) Release(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sequence_reservations SET status = 'RELEASED', released_at = NOW(), case_id = NULL WHERE id = $1 AND status <> 'RELEASED'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	_, err = r.Get(ctx, id)
	return err
}
