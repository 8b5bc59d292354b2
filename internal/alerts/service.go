package alerts

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RepositoryPort abstracts alert persistence.
type RepositoryPort interface {
	ListStaleCandidates(ctx context.Context) ([]StaleCase, error)
	SaveAlerts(ctx context.Context, found []Alert) error
	ListOpenAlerts(ctx context.Context) ([]Alert, error)
	ClearForCase(ctx context.Context, caseID uuid.UUID) error
}

// Service runs overdue scans against the configured rules.
type Service struct {
	repo   RepositoryPort
	rules  []Rule
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the alert service. Empty rules fall back to DefaultRules.
func NewService(repo RepositoryPort, rules []Rule, logger *slog.Logger) *Service {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Service{repo: repo, rules: rules, logger: logger, now: time.Now}
}

// Scan evaluates every open case against the rules and stores the findings.
// Returns the number of overdue cases found.
func (s *Service) Scan(ctx context.Context) (int, error) {
	candidates, err := s.repo.ListStaleCandidates(ctx)
	if err != nil {
		return 0, err
	}
	found := Evaluate(s.rules, candidates, s.now())
	if len(found) == 0 {
		s.logger.Info("overdue scan clean", "candidates", len(candidates))
		return 0, nil
	}
	if err := s.repo.SaveAlerts(ctx, found); err != nil {
		return 0, err
	}
	s.logger.Warn("overdue scan found stalled cases", "candidates", len(candidates), "overdue", len(found))
	return len(found), nil
}

// Open returns the current findings.
func (s *Service) Open(ctx context.Context) ([]Alert, error) {
	return s.repo.ListOpenAlerts(ctx)
}

// ClearForCase drops findings for a case that moved on.
func (s *Service) ClearForCase(ctx context.Context, caseID uuid.UUID) error {
	return s.repo.ClearForCase(ctx, caseID)
}
