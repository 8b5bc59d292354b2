package settlement

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tramitex/tramitex/internal/shared"
)

type memoryRepo struct {
	header   CaseHeader
	payments map[uuid.UUID]*Payment
	seq      int
}

func newMemoryRepo(header CaseHeader) *memoryRepo {
	return &memoryRepo{header: header, payments: map[uuid.UUID]*Payment{}}
}

func (m *memoryRepo) CaseHeader(_ context.Context, caseID uuid.UUID) (*CaseHeader, error) {
	if caseID != m.header.ID {
		return nil, shared.E(shared.ErrNotFound, "case not found", nil)
	}
	h := m.header
	return &h, nil
}

func (m *memoryRepo) ListPayments(_ context.Context, caseID uuid.UUID) ([]Payment, error) {
	var out []Payment
	for _, p := range m.payments {
		if p.CaseID == caseID {
			out = append(out, *p)
		}
	}
	SortPaymentsByCreation(out)
	return out, nil
}

func (m *memoryRepo) ApplyLineChanges(_ context.Context, caseID uuid.UUID, upserts []Payment, removeKeys []ConceptKey) error {
	for _, key := range removeKeys {
		for id, p := range m.payments {
			if p.CaseID == caseID && p.Key != nil && *p.Key == key {
				delete(m.payments, id)
			}
		}
	}
	for i := range upserts {
		p := upserts[i]
		for id, existing := range m.payments {
			if existing.CaseID == caseID && existing.Key != nil && *existing.Key == *p.Key && id != p.ID {
				delete(m.payments, id)
			}
		}
		m.payments[p.ID] = &p
	}
	return nil
}

func (m *memoryRepo) AddPayment(_ context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	// Monotonic timestamps so "earliest" is deterministic.
	m.seq++
	p.CreatedAt = time.Unix(int64(m.seq), 0)
	m.payments[p.ID] = p
	return nil
}

func (m *memoryRepo) DeletePayment(_ context.Context, caseID, paymentID uuid.UUID) error {
	p, ok := m.payments[paymentID]
	if !ok || p.CaseID != caseID {
		return shared.E(shared.ErrNotFound, "payment not found", nil)
	}
	delete(m.payments, paymentID)
	return nil
}

func (m *memoryRepo) SetFees(_ context.Context, _ uuid.UUID, value int64) error {
	m.header.Fees = value
	return nil
}

func (m *memoryRepo) SetDeposit(_ context.Context, _ uuid.UUID, value int64) error {
	m.header.Deposit = value
	return nil
}

func (m *memoryRepo) SetHeader(_ context.Context, _ uuid.UUID, h Header) error {
	m.header.LabelOverride = h.LabelOverride
	return nil
}

func (m *memoryRepo) managedByKey(key ConceptKey) []*Payment {
	var out []*Payment
	for _, p := range m.payments {
		if p.Key != nil && *p.Key == key {
			out = append(out, p)
		}
	}
	return out
}

type allowAllGuard struct{ err error }

func (g allowAllGuard) AssertMutable(context.Context, uuid.UUID) error { return g.err }

func newTestService(repo RepositoryPort, guard LifecycleGuard) *Service {
	return NewService(repo, guard, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testHeader() CaseHeader {
	return CaseHeader{
		ID:           uuid.New(),
		Year:         2026,
		Number:       7,
		DealerCode:   "BOG01",
		ServiceLabel: "Traspaso",
	}
}

func TestComputeEmptyCase(t *testing.T) {
	header := testHeader()
	svc := newTestService(newMemoryRepo(header), allowAllGuard{})

	view, err := svc.ComputeSettlement(context.Background(), header.ID)
	require.NoError(t, err)
	require.Len(t, view.Lines, len(Concepts))
	require.Zero(t, view.Totals.TotalRefundable)
	require.Equal(t, "007 -BOG01-2026", view.StatementID)

	// Year-bearing rows default to the case year even with no data.
	require.NotNil(t, view.Lines[0].Year)
	require.Equal(t, 2026, *view.Lines[0].Year)
	require.Nil(t, view.Lines[5].Year)
}

func TestSaveLinesPrimaryServiceScenario(t *testing.T) {
	header := testHeader()
	repo := newMemoryRepo(header)
	svc := newTestService(repo, allowAllGuard{})
	ctx := context.Background()

	view, err := svc.SaveLines(ctx, header.ID, []LineInput{
		{Key: ConceptPrimaryService, Base: 100000, Surcharge: 400},
	}, "u1")
	require.NoError(t, err)

	var primary Line
	for _, l := range view.Lines {
		if l.Key == ConceptPrimaryService {
			primary = l
		}
	}
	require.Equal(t, int64(100400), primary.Total)
	require.Equal(t, "Traspaso", primary.Label)
	require.Equal(t, int64(100400), view.Totals.TotalRefundable)

	require.NoError(t, svc.SetFees(ctx, header.ID, 50000, "u1"))
	require.NoError(t, svc.SetDeposit(ctx, header.ID, 20000, "u1"))
	view, err = svc.ComputeSettlement(ctx, header.ID)
	require.NoError(t, err)
	require.Equal(t, int64(150400), view.Totals.TotalDue)
	require.Equal(t, int64(20000), view.Totals.LessDeposit)
	require.Equal(t, int64(130400), view.Totals.BalanceDue)
}

func TestSaveLinesIdempotent(t *testing.T) {
	header := testHeader()
	repo := newMemoryRepo(header)
	svc := newTestService(repo, allowAllGuard{})
	ctx := context.Background()
	lines := []LineInput{
		{Key: ConceptStampTax, Base: 50000, Surcharge: 200},
		{Key: ConceptPrimaryService, Base: 100000, Surcharge: 400},
	}

	first, err := svc.SaveLines(ctx, header.ID, lines, "u1")
	require.NoError(t, err)
	second, err := svc.SaveLines(ctx, header.ID, lines, "u1")
	require.NoError(t, err)

	require.Equal(t, first.Totals, second.Totals)
	require.Len(t, repo.managedByKey(ConceptStampTax), 1)
	require.Len(t, repo.managedByKey(ConceptPrimaryService), 1)
}

func TestSaveLinesPositionalResolution(t *testing.T) {
	header := testHeader()
	repo := newMemoryRepo(header)
	svc := newTestService(repo, allowAllGuard{})

	// Keyless lines fill template slots in order: stamp tax, then road tax.
	view, err := svc.SaveLines(context.Background(), header.ID, []LineInput{
		{Base: 10000},
		{Base: 20000},
	}, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(10000), view.Lines[0].Total)
	require.Equal(t, int64(20000), view.Lines[1].Total)
	require.Len(t, repo.managedByKey(ConceptStampTax), 1)
	require.Len(t, repo.managedByKey(ConceptRoadTax), 1)
}

func TestSaveLinesDropsOmittedAndZeroRows(t *testing.T) {
	header := testHeader()
	repo := newMemoryRepo(header)
	svc := newTestService(repo, allowAllGuard{})
	ctx := context.Background()

	_, err := svc.SaveLines(ctx, header.ID, []LineInput{
		{Key: ConceptStampTax, Base: 50000},
		{Key: ConceptFines, Base: 30000},
	}, "u1")
	require.NoError(t, err)

	_, err = svc.SaveLines(ctx, header.ID, []LineInput{
		{Key: ConceptStampTax, Base: 0},
	}, "u1")
	require.NoError(t, err)
	require.Empty(t, repo.managedByKey(ConceptStampTax))
	require.Empty(t, repo.managedByKey(ConceptFines))
}

func TestSaveLinesValidation(t *testing.T) {
	header := testHeader()
	svc := newTestService(newMemoryRepo(header), allowAllGuard{})
	ctx := context.Background()

	_, err := svc.SaveLines(ctx, header.ID, []LineInput{{Key: "BOGUS", Base: 1}}, "u1")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.SaveLines(ctx, header.ID, []LineInput{
		{Key: ConceptStampTax, Base: 1},
		{Key: ConceptStampTax, Base: 2},
	}, "u1")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.SaveLines(ctx, header.ID, []LineInput{{Key: ConceptStampTax, Base: -1}}, "u1")
	require.ErrorIs(t, err, shared.ErrValidation)

	// SHIPPING_2 does not support a surcharge.
	_, err = svc.SaveLines(ctx, header.ID, []LineInput{{Key: ConceptShipping2, Base: 1, Surcharge: 5}}, "u1")
	require.ErrorIs(t, err, shared.ErrValidation)

	tooMany := make([]LineInput, len(Concepts)+1)
	_, err = svc.SaveLines(ctx, header.ID, tooMany, "u1")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSaveLinesRejectedWhenLocked(t *testing.T) {
	header := testHeader()
	locked := allowAllGuard{err: shared.E(shared.ErrLockedState, "case is finalized", nil)}
	repo := newMemoryRepo(header)
	svc := newTestService(repo, locked)

	_, err := svc.SaveLines(context.Background(), header.ID, []LineInput{{Key: ConceptStampTax, Base: 1}}, "u1")
	require.ErrorIs(t, err, shared.ErrLockedState)
	require.Empty(t, repo.payments)

	require.ErrorIs(t, svc.SetFees(context.Background(), header.ID, 1, "u1"), shared.ErrLockedState)
	require.ErrorIs(t, svc.SetDeposit(context.Background(), header.ID, 1, "u1"), shared.ErrLockedState)
}

func TestLegacyExclusionDoubleRow(t *testing.T) {
	header := testHeader()
	repo := newMemoryRepo(header)
	svc := newTestService(repo, allowAllGuard{})
	ctx := context.Background()

	// Managed record under a row the legacy DERECHOS entry will exclude.
	_, err := svc.SaveLines(ctx, header.ID, []LineInput{
		{Key: ConceptRoadTax, Base: 40000},
		{Key: ConceptFines, Base: 30000},
	}, "u1")
	require.NoError(t, err)

	_, err = svc.AddPayment(ctx, header.ID, CategoryDerechos, 90000, 0, "paid at transit office", "u1")
	require.NoError(t, err)

	view, err := svc.ComputeSettlement(ctx, header.ID)
	require.NoError(t, err)
	require.Len(t, view.Lines, len(Concepts)-2)
	for _, l := range view.Lines {
		require.NotEqual(t, ConceptRoadTax, l.Key)
		require.NotEqual(t, ConceptRegistration, l.Key)
	}
	// The managed road-tax amount still exists but stays off the statement.
	require.Len(t, repo.managedByKey(ConceptRoadTax), 1)
	require.Equal(t, int64(30000), view.Totals.TotalRefundable)
}

func TestLegacyExclusionSingleRow(t *testing.T) {
	header := testHeader()
	repo := newMemoryRepo(header)
	svc := newTestService(repo, allowAllGuard{})
	ctx := context.Background()

	_, err := svc.AddPayment(ctx, header.ID, CategoryTimbre, 25000, 0, "", "u1")
	require.NoError(t, err)

	view, err := svc.ComputeSettlement(ctx, header.ID)
	require.NoError(t, err)
	require.Len(t, view.Lines, len(Concepts)-1)
	for _, l := range view.Lines {
		require.NotEqual(t, ConceptStampTax, l.Key)
	}
}

func TestLegacyZeroAmountDoesNotExclude(t *testing.T) {
	header := testHeader()
	repo := newMemoryRepo(header)
	svc := newTestService(repo, allowAllGuard{})
	ctx := context.Background()

	_, err := svc.AddPayment(ctx, header.ID, CategoryTimbre, 0, 0, "", "u1")
	require.NoError(t, err)

	view, err := svc.ComputeSettlement(ctx, header.ID)
	require.NoError(t, err)
	require.Len(t, view.Lines, len(Concepts))
}

func TestLabelOverrideWinsForPrimaryService(t *testing.T) {
	header := testHeader()
	header.LabelOverride = "Matricula moto 0km"
	svc := newTestService(newMemoryRepo(header), allowAllGuard{})

	view, err := svc.ComputeSettlement(context.Background(), header.ID)
	require.NoError(t, err)
	for _, l := range view.Lines {
		if l.Key == ConceptPrimaryService {
			require.Equal(t, "Matricula moto 0km", l.Label)
		}
	}
}

func TestSaveLinesKeepsPriorSnapshotFields(t *testing.T) {
	header := testHeader()
	repo := newMemoryRepo(header)
	svc := newTestService(repo, allowAllGuard{})
	ctx := context.Background()

	_, err := svc.SaveLines(ctx, header.ID, []LineInput{
		{Key: ConceptStampTax, Base: 1000, Notes: "window 3"},
	}, "u1")
	require.NoError(t, err)

	view, err := svc.SaveLines(ctx, header.ID, []LineInput{
		{Key: ConceptStampTax, Base: 2000},
	}, "u1")
	require.NoError(t, err)
	require.Equal(t, "window 3", view.Lines[0].Notes)
	require.Equal(t, int64(2000), view.Lines[0].Total)
}
