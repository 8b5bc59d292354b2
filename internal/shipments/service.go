package shipments

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tramitex/tramitex/internal/shared"
)

// RepositoryPort abstracts shipment persistence.
type RepositoryPort interface {
	Create(ctx context.Context, s *Shipment) error
	Get(ctx context.Context, id uuid.UUID) (*Shipment, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]Shipment, error)
	MarkReceived(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Service manages courier dispatches.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService wires the shipment service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateInput carries the dispatch form fields.
type CreateInput struct {
	DealerID       uuid.UUID   `validate:"required"`
	Direction      Direction   `validate:"required"`
	Carrier        string      `validate:"required"`
	TrackingNumber string      `validate:"required"`
	Notes          string
	SentAt         time.Time
	CaseIDs        []uuid.UUID `validate:"min=1"`
}

// Create records a dispatch covering one or more cases.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Shipment, error) {
	if !in.Direction.IsValid() {
		return nil, shared.E(shared.ErrValidation, "invalid shipment direction", map[string]any{"direction": in.Direction})
	}
	if len(in.CaseIDs) == 0 {
		return nil, shared.E(shared.ErrValidation, "shipment needs at least one case", nil)
	}
	if in.Carrier == "" || in.TrackingNumber == "" {
		return nil, shared.E(shared.ErrValidation, "carrier and tracking number are required", nil)
	}
	sentAt := in.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	sh := &Shipment{
		DealerID:       in.DealerID,
		Direction:      in.Direction,
		Carrier:        in.Carrier,
		TrackingNumber: in.TrackingNumber,
		Notes:          in.Notes,
		SentAt:         sentAt,
		CaseIDs:        in.CaseIDs,
	}
	if err := s.repo.Create(ctx, sh); err != nil {
		return nil, err
	}
	s.logger.Info("shipment created",
		"shipment_id", sh.ID, "direction", sh.Direction, "cases", len(sh.CaseIDs))
	return sh, nil
}

// Get looks up a shipment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Shipment, error) {
	return s.repo.Get(ctx, id)
}

// ListByCase returns a case's shipment history.
func (s *Service) ListByCase(ctx context.Context, caseID uuid.UUID) ([]Shipment, error) {
	return s.repo.ListByCase(ctx, caseID)
}

// MarkReceived records reception at the destination.
func (s *Service) MarkReceived(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkReceived(ctx, id, time.Now())
}
