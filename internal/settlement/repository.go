package settlement

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

// Repository provides PostgreSQL backed persistence for payments and the
// settlement fields stored on the case row.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const paymentColumns = `id, case_id, category, base_amount, surcharge_amount, concept_key, label, year, paid_at, notes, actor, created_at`

// CaseHeader loads the settlement-relevant case fields.
func (r *Repository) CaseHeader(ctx context.Context, caseID uuid.UUID) (*CaseHeader, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, year, number, dealer_code, service_label, COALESCE(label_override, ''), fees, deposit FROM cases WHERE id = $1`, caseID)
	var h CaseHeader
	err := row.Scan(&h.ID, &h.Year, &h.Number, &h.DealerCode, &h.ServiceLabel, &h.LabelOverride, &h.Fees, &h.Deposit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.E(shared.ErrNotFound, "case not found", map[string]any{"case_id": caseID})
		}
		return nil, err
	}
	return &h, nil
}

// ListPayments returns all payments for a case, oldest first.
func (r *Repository) ListPayments(ctx context.Context, caseID uuid.UUID) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE case_id = $1 ORDER BY created_at, id`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.CaseID, &p.Category, &p.Base, &p.Surcharge, &p.Key, &p.Label, &p.Year, &p.Date, &p.Notes, &p.Actor, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ApplyLineChanges executes a SaveLines plan atomically: managed rows under
// removeKeys are deleted, each upsert updates its row in place (the row id is
// chosen by the service as the earliest survivor) or inserts a fresh one, and
// duplicate managed rows beyond the survivor are dropped.
func (r *Repository) ApplyLineChanges(ctx context.Context, caseID uuid.UUID, upserts []Payment, removeKeys []ConceptKey) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, key := range removeKeys {
			if _, err := tx.Exec(ctx, `DELETE FROM payments WHERE case_id = $1 AND concept_key = $2`, caseID, key); err != nil {
				return err
			}
		}
		for _, p := range upserts {
			tag, err := tx.Exec(ctx, `UPDATE payments SET category = $3, base_amount = $4, surcharge_amount = $5, label = $6, year = $7, paid_at = $8, notes = $9, actor = $10
				WHERE id = $1 AND case_id = $2`,
				p.ID, caseID, p.Category, p.Base, p.Surcharge, p.Label, p.Year, p.Date, p.Notes, p.Actor)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				_, err = tx.Exec(ctx, `INSERT INTO payments (`+paymentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
					p.ID, caseID, p.Category, p.Base, p.Surcharge, p.Key, p.Label, p.Year, p.Date, p.Notes, p.Actor, p.CreatedAt)
				if err != nil {
					return err
				}
			}
			if _, err := tx.Exec(ctx, `DELETE FROM payments WHERE case_id = $1 AND concept_key = $2 AND id <> $3`, caseID, *p.Key, p.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddPayment inserts a manual (legacy-style) payment entry.
func (r *Repository) AddPayment(ctx context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	_, err := r.pool.Exec(ctx, `INSERT INTO payments (`+paymentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.CaseID, p.Category, p.Base, p.Surcharge, p.Key, p.Label, p.Year, p.Date, p.Notes, p.Actor, p.CreatedAt)
	return err
}

// DeletePayment removes one payment row.
func (r *Repository) DeletePayment(ctx context.Context, caseID, paymentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM payments WHERE id = $1 AND case_id = $2`, paymentID, caseID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.ErrNotFound, "payment not found", map[string]any{"payment_id": paymentID})
	}
	return nil
}

// SetFees persists the fees value on the case.
func (r *Repository) SetFees(ctx context.Context, caseID uuid.UUID, value int64) error {
	return r.setCaseColumn(ctx, caseID, `fees`, value)
}

// SetDeposit persists the deposit value on the case.
func (r *Repository) SetDeposit(ctx context.Context, caseID uuid.UUID, value int64) error {
	return r.setCaseColumn(ctx, caseID, `deposit`, value)
}

func (r *Repository) setCaseColumn(ctx context.Context, caseID uuid.UUID, column string, value int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE cases SET `+column+` = $2 WHERE id = $1`, caseID, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.ErrNotFound, "case not found", map[string]any{"case_id": caseID})
	}
	return nil
}

// Header carries the printable statement override fields.
type Header struct {
	LabelOverride string
	ClientName    string
	Plate         string
	CityName      string
	DealerName    string
	StatementDate *time.Time
}

// SetHeader snapshots the statement header overrides on the case.
func (r *Repository) SetHeader(ctx context.Context, caseID uuid.UUID, h Header) error {
	tag, err := r.pool.Exec(ctx, `UPDATE cases SET label_override = NULLIF($2, ''), stmt_client_name = $3, stmt_plate = $4, stmt_city_name = $5, stmt_dealer_name = $6, stmt_date = $7 WHERE id = $1`,
		caseID, h.LabelOverride, h.ClientName, h.Plate, h.CityName, h.DealerName, h.StatementDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.ErrNotFound, "case not found", map[string]any{"case_id": caseID})
	}
	return nil
}
