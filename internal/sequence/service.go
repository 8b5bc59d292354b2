package sequence

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tramitex/tramitex/internal/platform/db"
	"github.com/tramitex/tramitex/internal/shared"
)

// reserveAttempts bounds how often a reservation is retried when concurrent
// allocators collide on the same (dealer, year) scope.
const reserveAttempts = 6

// RepositoryPort abstracts reservation persistence.
type RepositoryPort interface {
	ReserveOnce(ctx context.Context, dealerID uuid.UUID, year int) (*Reservation, error)
	Get(ctx context.Context, id uuid.UUID) (*Reservation, error)
	ActiveByCase(ctx context.Context, caseID uuid.UUID) (*Reservation, error)
	Bind(ctx context.Context, id, caseID uuid.UUID) error
	Release(ctx context.Context, id uuid.UUID) error
}

// Service coordinates gapless number allocation.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService wires the allocator service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// ReserveNext claims the lowest free number for (dealer, year). Each attempt
// is one serializable transaction; concurrent winners force a retry, anything
// else aborts immediately. Two successful calls never return the same number
// unless a release happened in between.
func (s *Service) ReserveNext(ctx context.Context, dealerID uuid.UUID, year int) (*Reservation, error) {
	if year <= 0 {
		return nil, shared.E(shared.ErrValidation, "year must be positive", map[string]any{"year": year})
	}
	for attempt := 1; attempt <= reserveAttempts; attempt++ {
		res, err := s.repo.ReserveOnce(ctx, dealerID, year)
		if err == nil {
			s.logger.Info("sequence reserved",
				"dealer_id", dealerID, "year", year, "number", res.Number, "attempt", attempt)
			return res, nil
		}
		if !db.IsSerializationFailure(err) {
			return nil, err
		}
		s.logger.Warn("sequence reservation collided, retrying",
			"dealer_id", dealerID, "year", year, "attempt", attempt)
	}
	return nil, shared.E(shared.ErrAllocationExhausted, "could not reserve a sequence number", map[string]any{
		"dealer_id": dealerID, "year": year, "attempts": reserveAttempts,
	})
}

// Bind attaches a RESERVED reservation to a case. Binding anything else is a
// conflict; the repository reports the current status.
func (s *Service) Bind(ctx context.Context, reservationID, caseID uuid.UUID) error {
	return s.repo.Bind(ctx, reservationID, caseID)
}

// Release returns the number to the pool so a later reservation can fill the
// gap. Safe to call repeatedly.
func (s *Service) Release(ctx context.Context, reservationID uuid.UUID) error {
	return s.repo.Release(ctx, reservationID)
}

// Get looks up a reservation.
func (s *Service) Get(ctx context.Context, reservationID uuid.UUID) (*Reservation, error) {
	return s.repo.Get(ctx, reservationID)
}

// ActiveByCase returns the reservation currently bound to a case.
func (s *Service) ActiveByCase(ctx context.Context, caseID uuid.UUID) (*Reservation, error) {
	return s.repo.ActiveByCase(ctx, caseID)
}
