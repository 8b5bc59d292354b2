package cases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tramitex/tramitex/internal/platform/db"
	"github.com/tramitex/tramitex/internal/shared"
)

// Repository provides PostgreSQL backed persistence for cases. Reservation
// binds and releases happen inside the same transaction as the case write so
// the "sequence number equals the bound reservation" invariant holds.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const caseColumns = `id, kind, status, year, number, dealer_id, dealer_code, prev_dealer_id, prev_number,
	city_id, client_id, reservation_id, COALESCE(plate, ''), payload, fees, deposit, COALESCE(label_override, ''),
	filed_at, created_at, finalized_at, canceled_at`

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.Kind, &c.Status, &c.Year, &c.Number, &c.DealerID, &c.DealerCode,
		&c.PrevDealerID, &c.PrevNumber, &c.CityID, &c.ClientID, &c.ReservationID, &c.Plate,
		&c.Payload, &c.Fees, &c.Deposit, &c.LabelOverride, &c.FiledAt, &c.CreatedAt,
		&c.FinalizedAt, &c.CanceledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.E(shared.ErrNotFound, "case not found", nil)
		}
		return nil, err
	}
	return &c, nil
}

// Get returns a case by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Case, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id)
	c, err := scanCase(row)
	if err != nil {
		var de *shared.Error
		if errors.As(err, &de) && de.Meta == nil {
			de.Meta = map[string]any{"case_id": id}
		}
		return nil, err
	}
	return c, nil
}

func bindReservationTx(ctx context.Context, tx pgx.Tx, reservationID, caseID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `UPDATE sequence_reservations SET status = 'BOUND', case_id = $2 WHERE id = $1 AND status = 'RESERVED'`, reservationID, caseID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.ErrConflict, "reservation is not reservable", map[string]any{"reservation_id": reservationID})
	}
	return nil
}

func releaseReservationTx(ctx context.Context, tx pgx.Tx, reservationID uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE sequence_reservations SET status = 'RELEASED', released_at = NOW(), case_id = NULL WHERE id = $1 AND status <> 'RELEASED'`, reservationID)
	return err
}

func insertTransitionTx(ctx context.Context, tx pgx.Tx, tr *Transition) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	if tr.OccurredAt.IsZero() {
		tr.OccurredAt = time.Now()
	}
	_, err := tx.Exec(ctx, `INSERT INTO case_transitions (id, case_id, from_status, to_status, action, notes, actor, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tr.ID, tr.CaseID, tr.From, tr.To, tr.Action, tr.Notes, tr.Actor, tr.OccurredAt)
	return err
}

// CreateBound inserts the case, binds its reservation and records the
// creation transition in one transaction.
func (r *Repository) CreateBound(ctx context.Context, c *Case, tr *Transition) error {
	c.CreatedAt = time.Now()
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO cases (id, kind, status, year, number, dealer_id, dealer_code, city_id, client_id,
			reservation_id, plate, payload, service_label, fees, deposit, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, $14, $15, $16)`,
			c.ID, c.Kind, c.Status, c.Year, c.Number, c.DealerID, c.DealerCode, c.CityID, c.ClientID,
			c.ReservationID, c.Plate, c.Payload, c.Kind.ServiceLabel(), c.Fees, c.Deposit, c.CreatedAt)
		if err != nil {
			return err
		}
		if err := bindReservationTx(ctx, tx, c.ReservationID, c.ID); err != nil {
			return err
		}
		return insertTransitionTx(ctx, tx, tr)
	})
}

// UpdateStatus writes the case's mutable lifecycle columns and the transition
// record atomically. When releaseReservation is set, the bound reservation is
// released in the same transaction.
func (r *Repository) UpdateStatus(ctx context.Context, c *Case, tr *Transition, releaseReservation bool) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE cases SET status = $2, plate = NULLIF($3, ''), filed_at = $4, finalized_at = $5, canceled_at = $6 WHERE id = $1`,
			c.ID, c.Status, c.Plate, c.FiledAt, c.FinalizedAt, c.CanceledAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.E(shared.ErrNotFound, "case not found", map[string]any{"case_id": c.ID})
		}
		if releaseReservation {
			if err := releaseReservationTx(ctx, tx, c.ReservationID); err != nil {
				return err
			}
		}
		return insertTransitionTx(ctx, tx, tr)
	})
}

// Reassign rebinds the case to a reservation in a new dealer scope and
// releases the old one, all in one transaction.
func (r *Repository) Reassign(ctx context.Context, c *Case, tr *Transition, oldReservationID uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := bindReservationTx(ctx, tx, c.ReservationID, c.ID); err != nil {
			return err
		}
		if err := releaseReservationTx(ctx, tx, oldReservationID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE cases SET dealer_id = $2, dealer_code = $3, number = $4, reservation_id = $5, prev_dealer_id = $6, prev_number = $7 WHERE id = $1`,
			c.ID, c.DealerID, c.DealerCode, c.Number, c.ReservationID, c.PrevDealerID, c.PrevNumber)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.E(shared.ErrNotFound, "case not found", map[string]any{"case_id": c.ID})
		}
		return insertTransitionTx(ctx, tx, tr)
	})
}

// Delete removes the case row and every dependent record, releasing its
// reservations. It returns the storage paths of the case's documents so the
// caller can attempt file deletion after the transaction commits.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) ([]string, error) {
	var paths []string
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE sequence_reservations SET status = 'RELEASED', released_at = NOW(), case_id = NULL WHERE case_id = $1 AND status <> 'RELEASED'`, id); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `SELECT path FROM documents WHERE case_id = $1`, id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return err
			}
			paths = append(paths, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, stmt := range []string{
			`DELETE FROM documents WHERE case_id = $1`,
			`DELETE FROM payments WHERE case_id = $1`,
			`DELETE FROM case_transitions WHERE case_id = $1`,
			`DELETE FROM case_alerts WHERE case_id = $1`,
			`DELETE FROM shipment_cases WHERE case_id = $1`,
		} {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return err
			}
		}
		// Shipments whose membership became empty go with the case.
		if _, err := tx.Exec(ctx, `DELETE FROM shipments s WHERE NOT EXISTS (SELECT 1 FROM shipment_cases sc WHERE sc.shipment_id = s.id)`); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM cases WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.E(shared.ErrNotFound, "case not found", map[string]any{"case_id": id})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// ListTransitions returns a case's transition history, oldest first.
func (r *Repository) ListTransitions(ctx context.Context, caseID uuid.UUID) ([]Transition, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, case_id, from_status, to_status, action, COALESCE(notes, ''), actor, occurred_at
		FROM case_transitions WHERE case_id = $1 ORDER BY occurred_at, id`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transition
	for rows.Next() {
		var tr Transition
		if err := rows.Scan(&tr.ID, &tr.CaseID, &tr.From, &tr.To, &tr.Action, &tr.Notes, &tr.Actor, &tr.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// ListFilter narrows a case listing.
type ListFilter struct {
	Kind            Kind
	Year            int
	DealerID        *uuid.UUID
	Status          Status
	Plate           string
	ClientID        *uuid.UUID
	IncludeCanceled bool
	Limit           int
	Offset          int
}

// List returns cases matching the filter, newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Kind != "" {
		query += ` AND kind = ` + arg(f.Kind)
	}
	if f.Year > 0 {
		query += ` AND year = ` + arg(f.Year)
	}
	if f.DealerID != nil {
		query += ` AND dealer_id = ` + arg(*f.DealerID)
	}
	if f.Status != "" {
		query += ` AND status = ` + arg(f.Status)
	}
	if f.Plate != "" {
		query += ` AND plate = ` + arg(NormalizePlate(f.Plate))
	}
	if f.ClientID != nil {
		query += ` AND client_id = ` + arg(*f.ClientID)
	}
	if !f.IncludeCanceled {
		query += ` AND status <> 'CANCELED'`
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	query += ` ORDER BY created_at DESC LIMIT ` + arg(limit) + ` OFFSET ` + arg(offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
