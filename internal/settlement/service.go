package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tramitex/tramitex/internal/shared"
)

// RepositoryPort abstracts settlement persistence.
type RepositoryPort interface {
	CaseHeader(ctx context.Context, caseID uuid.UUID) (*CaseHeader, error)
	ListPayments(ctx context.Context, caseID uuid.UUID) ([]Payment, error)
	ApplyLineChanges(ctx context.Context, caseID uuid.UUID, upserts []Payment, removeKeys []ConceptKey) error
	AddPayment(ctx context.Context, p *Payment) error
	DeletePayment(ctx context.Context, caseID, paymentID uuid.UUID) error
	SetFees(ctx context.Context, caseID uuid.UUID, value int64) error
	SetDeposit(ctx context.Context, caseID uuid.UUID, value int64) error
	SetHeader(ctx context.Context, caseID uuid.UUID, h Header) error
}

// LifecycleGuard rejects writes against locked cases. Implemented by the
// case lifecycle service.
type LifecycleGuard interface {
	AssertMutable(ctx context.Context, caseID uuid.UUID) error
}

// Service is the statement aggregator.
type Service struct {
	repo   RepositoryPort
	guard  LifecycleGuard
	logger *slog.Logger
}

// NewService wires the settlement service.
func NewService(repo RepositoryPort, guard LifecycleGuard, logger *slog.Logger) *Service {
	return &Service{repo: repo, guard: guard, logger: logger}
}

// ComputeSettlement builds the statement view for a case.
func (s *Service) ComputeSettlement(ctx context.Context, caseID uuid.UUID) (*View, error) {
	header, err := s.repo.CaseHeader(ctx, caseID)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, caseID)
	if err != nil {
		return nil, err
	}
	view := Compute(*header, payments)
	return &view, nil
}

// LineInput is one incoming statement row. An empty Key assigns the line to
// the next unfilled template slot in order.
type LineInput struct {
	Key       ConceptKey
	Label     string
	Year      *int
	Base      int64
	Surcharge int64
	Date      *time.Time
	Notes     string
}

// SaveLines replaces the managed payment rows with the incoming line set and
// returns the recomputed view. Validation happens entirely before the write;
// the row changes for all template slots commit in one transaction.
func (s *Service) SaveLines(ctx context.Context, caseID uuid.UUID, lines []LineInput, actor string) (*View, error) {
	if err := s.guard.AssertMutable(ctx, caseID); err != nil {
		return nil, err
	}
	resolved, err := resolveLines(lines)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.ListPayments(ctx, caseID)
	if err != nil {
		return nil, err
	}
	SortPaymentsByCreation(existing)
	earliestByKey := map[ConceptKey]Payment{}
	for _, p := range existing {
		if !p.IsManaged() {
			continue
		}
		if _, ok := earliestByKey[*p.Key]; !ok {
			earliestByKey[*p.Key] = p
		}
	}
	excluded := ExcludedKeys(existing)

	var upserts []Payment
	var removeKeys []ConceptKey
	now := time.Now()
	for _, c := range Concepts {
		if excluded[c.Key] {
			continue
		}
		line, ok := resolved[c.Key]
		if !ok || line.Base+line.Surcharge <= 0 {
			removeKeys = append(removeKeys, c.Key)
			continue
		}
		key := c.Key
		p := Payment{
			ID:        uuid.New(),
			CaseID:    caseID,
			Category:  c.Category,
			Base:      line.Base,
			Surcharge: line.Surcharge,
			Key:       &key,
			Label:     line.Label,
			Year:      line.Year,
			Date:      now,
			Notes:     line.Notes,
			Actor:     actor,
			CreatedAt: now,
		}
		if line.Date != nil {
			p.Date = *line.Date
		}
		// Update the earliest existing row in place, inheriting the fields
		// the incoming line omitted.
		if prev, has := earliestByKey[key]; has {
			p.ID = prev.ID
			p.CreatedAt = prev.CreatedAt
			if p.Label == "" {
				p.Label = prev.Label
			}
			if p.Year == nil {
				p.Year = prev.Year
			}
			if line.Date == nil {
				p.Date = prev.Date
			}
			if p.Notes == "" {
				p.Notes = prev.Notes
			}
		}
		if !c.HasYear {
			p.Year = nil
		}
		upserts = append(upserts, p)
	}

	if err := s.repo.ApplyLineChanges(ctx, caseID, upserts, removeKeys); err != nil {
		return nil, err
	}
	s.logger.Info("settlement lines saved", "case_id", caseID, "rows", len(upserts), "actor", actor)
	return s.ComputeSettlement(ctx, caseID)
}

// resolveLines maps incoming lines onto template keys, by explicit key or by
// position, and rejects malformed input before anything is written.
func resolveLines(lines []LineInput) (map[ConceptKey]LineInput, error) {
	if len(lines) > len(Concepts) {
		return nil, shared.E(shared.ErrValidation, "too many statement lines", map[string]any{
			"lines": len(lines), "max": len(Concepts),
		})
	}
	out := make(map[ConceptKey]LineInput, len(lines))
	for i, line := range lines {
		key := line.Key
		if key == "" {
			for _, c := range Concepts {
				if _, taken := out[c.Key]; !taken {
					key = c.Key
					break
				}
			}
		}
		concept, ok := ConceptFor(key)
		if !ok {
			return nil, shared.E(shared.ErrValidation, "unknown concept key", map[string]any{"key": line.Key, "line": i})
		}
		if _, dup := out[key]; dup {
			return nil, shared.E(shared.ErrValidation, "duplicate concept key", map[string]any{"key": key})
		}
		if line.Base < 0 || line.Surcharge < 0 {
			return nil, shared.E(shared.ErrValidation, "amounts must be non-negative", map[string]any{"key": key})
		}
		if !concept.HasSurcharge && line.Surcharge != 0 {
			return nil, shared.E(shared.ErrValidation, "row does not support a surcharge", map[string]any{"key": key})
		}
		out[key] = line
	}
	return out, nil
}

// SetFees stores the fees value, clamping negative input to 0.
func (s *Service) SetFees(ctx context.Context, caseID uuid.UUID, value int64, actor string) error {
	if err := s.guard.AssertMutable(ctx, caseID); err != nil {
		return err
	}
	if value < 0 {
		value = 0
	}
	if err := s.repo.SetFees(ctx, caseID, value); err != nil {
		return err
	}
	s.logger.Info("settlement fees set", "case_id", caseID, "fees", value, "actor", actor)
	return nil
}

// SetDeposit stores the deposit value, clamping negative input to 0.
func (s *Service) SetDeposit(ctx context.Context, caseID uuid.UUID, value int64, actor string) error {
	if err := s.guard.AssertMutable(ctx, caseID); err != nil {
		return err
	}
	if value < 0 {
		value = 0
	}
	if err := s.repo.SetDeposit(ctx, caseID, value); err != nil {
		return err
	}
	s.logger.Info("settlement deposit set", "case_id", caseID, "deposit", value, "actor", actor)
	return nil
}

// SetHeader stores the printable header overrides.
func (s *Service) SetHeader(ctx context.Context, caseID uuid.UUID, h Header, actor string) error {
	if err := s.guard.AssertMutable(ctx, caseID); err != nil {
		return err
	}
	if err := s.repo.SetHeader(ctx, caseID, h); err != nil {
		return err
	}
	s.logger.Info("settlement header set", "case_id", caseID, "actor", actor)
	return nil
}

// AddPayment records a manual payment entry outside the managed template.
func (s *Service) AddPayment(ctx context.Context, caseID uuid.UUID, category Category, base, surcharge int64, notes, actor string) (*Payment, error) {
	if err := s.guard.AssertMutable(ctx, caseID); err != nil {
		return nil, err
	}
	if !category.IsValid() {
		return nil, shared.E(shared.ErrValidation, "invalid payment category", map[string]any{"category": category})
	}
	if base < 0 || surcharge < 0 {
		return nil, shared.E(shared.ErrValidation, "amounts must be non-negative", nil)
	}
	p := &Payment{
		CaseID:    caseID,
		Category:  category,
		Base:      base,
		Surcharge: surcharge,
		Date:      time.Now(),
		Notes:     notes,
		Actor:     actor,
	}
	if err := s.repo.AddPayment(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RemovePayment deletes a manual payment entry.
func (s *Service) RemovePayment(ctx context.Context, caseID, paymentID uuid.UUID, actor string) error {
	if err := s.guard.AssertMutable(ctx, caseID); err != nil {
		return err
	}
	if err := s.repo.DeletePayment(ctx, caseID, paymentID); err != nil {
		return err
	}
	s.logger.Info("payment removed", "case_id", caseID, "payment_id", paymentID, "actor", actor)
	return nil
}
