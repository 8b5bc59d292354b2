package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads case staleness and persists alert findings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListStaleCandidates returns open cases with the time they entered their
// current state, taken from the latest transition or case creation.
func (r *Repository) ListStaleCandidates(ctx context.Context) ([]StaleCase, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.status, COALESCE(MAX(t.occurred_at), c.created_at)
		FROM cases c
		LEFT JOIN case_transitions t ON t.case_id = c.id
		WHERE c.finalized_at IS NULL AND c.status <> 'CANCELED'
		GROUP BY c.id, c.status, c.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StaleCase
	for rows.Next() {
		var sc StaleCase
		if err := rows.Scan(&sc.CaseID, &sc.Status, &sc.EnteredAt); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// SaveAlerts upserts findings keyed by (case, status) so a repeated scan
// refreshes the age instead of stacking duplicates.
func (r *Repository) SaveAlerts(ctx context.Context, found []Alert) error {
	for _, a := range found {
		_, err := r.pool.Exec(ctx, `INSERT INTO case_alerts (id, case_id, status, age_seconds, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (case_id, status) DO UPDATE SET age_seconds = EXCLUDED.age_seconds, created_at = EXCLUDED.created_at`,
			a.ID, a.CaseID, a.Status, int64(a.Age/time.Second), a.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListOpenAlerts returns current findings, oldest case first.
func (r *Repository) ListOpenAlerts(ctx context.Context) ([]Alert, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, case_id, status, age_seconds, created_at FROM case_alerts ORDER BY age_seconds DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Alert
	for rows.Next() {
		var a Alert
		var ageSeconds int64
		if err := rows.Scan(&a.ID, &a.CaseID, &a.Status, &ageSeconds, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Age = time.Duration(ageSeconds) * time.Second
		out = append(out, a)
	}
	return out, rows.Err()
}

// ClearForCase drops findings once a case moves or closes.
func (r *Repository) ClearForCase(ctx context.Context, caseID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM case_alerts WHERE case_id = $1`, caseID)
	return err
}
