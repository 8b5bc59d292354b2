package alerts

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	candidates []StaleCase
	saved      map[uuid.UUID]Alert
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{saved: map[uuid.UUID]Alert{}}
}

func (m *memoryRepo) ListStaleCandidates(_ context.Context) ([]StaleCase, error) {
	return m.candidates, nil
}

func (m *memoryRepo) SaveAlerts(_ context.Context, found []Alert) error {
	for _, a := range found {
		m.saved[a.CaseID] = a
	}
	return nil
}

func (m *memoryRepo) ListOpenAlerts(_ context.Context) ([]Alert, error) {
	var out []Alert
	for _, a := range m.saved {
		out = append(out, a)
	}
	return out, nil
}

func (m *memoryRepo) ClearForCase(_ context.Context, caseID uuid.UUID) error {
	delete(m.saved, caseID)
	return nil
}

func TestEvaluateFlagsOnlyOverdueCases(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	rules := []Rule{{Status: "PLATE_ASSIGNED", MaxAge: 3 * day}}
	fresh := uuid.New()
	stale := uuid.New()
	cases := []StaleCase{
		{CaseID: fresh, Status: "PLATE_ASSIGNED", EnteredAt: now.Add(-2 * day)},
		{CaseID: stale, Status: "PLATE_ASSIGNED", EnteredAt: now.Add(-5 * day)},
		{CaseID: uuid.New(), Status: "FINALIZED", EnteredAt: now.Add(-90 * day)},
	}

	found := Evaluate(rules, cases, now)
	require.Len(t, found, 1)
	require.Equal(t, stale, found[0].CaseID)
	require.Equal(t, 5*day, found[0].Age)
}

func TestEvaluateAtExactThresholdDoesNotFlag(t *testing.T) {
	now := time.Now()
	rules := []Rule{{Status: "RECEIVED", MaxAge: 3 * day}}
	cases := []StaleCase{{CaseID: uuid.New(), Status: "RECEIVED", EnteredAt: now.Add(-3 * day)}}

	require.Empty(t, Evaluate(rules, cases, now))
}

func TestScanPersistsFindings(t *testing.T) {
	repo := newMemoryRepo()
	caseID := uuid.New()
	repo.candidates = []StaleCase{
		{CaseID: caseID, Status: "DOCS_PENDING", EnteredAt: time.Now().Add(-20 * day)},
	}
	svc := NewService(repo, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := svc.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	open, err := svc.Open(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, caseID, open[0].CaseID)
}

func TestScanCleanBoard(t *testing.T) {
	repo := newMemoryRepo()
	repo.candidates = []StaleCase{
		{CaseID: uuid.New(), Status: "RECEIVED", EnteredAt: time.Now().Add(-time.Hour)},
	}
	svc := NewService(repo, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := svc.Scan(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, repo.saved)
}

func TestClearForCase(t *testing.T) {
	repo := newMemoryRepo()
	caseID := uuid.New()
	repo.saved[caseID] = Alert{ID: uuid.New(), CaseID: caseID}
	svc := NewService(repo, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, svc.ClearForCase(context.Background(), caseID))
	open, err := svc.Open(context.Background())
	require.NoError(t, err)
	require.Empty(t, open)
}
