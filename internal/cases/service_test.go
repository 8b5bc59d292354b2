package cases

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tramitex/tramitex/internal/catalog"
	"github.com/tramitex/tramitex/internal/clients"
	"github.com/tramitex/tramitex/internal/documents"
	"github.com/tramitex/tramitex/internal/sequence"
	"github.com/tramitex/tramitex/internal/shared"
)

type fakeAllocator struct {
	reservations map[uuid.UUID]*sequence.Reservation
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{reservations: map[uuid.UUID]*sequence.Reservation{}}
}

func (f *fakeAllocator) ReserveNext(_ context.Context, dealerID uuid.UUID, year int) (*sequence.Reservation, error) {
	var claimed []int
	for _, r := range f.reservations {
		if r.DealerID == dealerID && r.Year == year && r.Status != sequence.StatusReleased {
			claimed = append(claimed, r.Number)
		}
	}
	sort.Ints(claimed)
	res := &sequence.Reservation{
		ID:       uuid.New(),
		DealerID: dealerID,
		Year:     year,
		Number:   sequence.NextFree(claimed),
		Status:   sequence.StatusReserved,
	}
	f.reservations[res.ID] = res
	return res, nil
}

func (f *fakeAllocator) Release(_ context.Context, id uuid.UUID) error {
	res, ok := f.reservations[id]
	if !ok {
		return shared.E(shared.ErrNotFound, "reservation not found", nil)
	}
	res.Status = sequence.StatusReleased
	res.CaseID = nil
	return nil
}

func (f *fakeAllocator) ActiveByCase(_ context.Context, caseID uuid.UUID) (*sequence.Reservation, error) {
	for _, r := range f.reservations {
		if r.Status == sequence.StatusBound && r.CaseID != nil && *r.CaseID == caseID {
			return r, nil
		}
	}
	return nil, shared.E(shared.ErrNotFound, "reservation not found", nil)
}

func (f *fakeAllocator) bind(id, caseID uuid.UUID) error {
	res, ok := f.reservations[id]
	if !ok || res.Status != sequence.StatusReserved {
		return shared.E(shared.ErrConflict, "reservation is not reservable", nil)
	}
	res.Status = sequence.StatusBound
	res.CaseID = &caseID
	return nil
}

type memoryRepo struct {
	alloc       *fakeAllocator
	cases       map[uuid.UUID]*Case
	transitions []Transition
	docPaths    map[uuid.UUID][]string
	failCreate  error
}

func newMemoryRepo(alloc *fakeAllocator) *memoryRepo {
	return &memoryRepo{alloc: alloc, cases: map[uuid.UUID]*Case{}, docPaths: map[uuid.UUID][]string{}}
}

func (m *memoryRepo) Get(_ context.Context, id uuid.UUID) (*Case, error) {
	c, ok := m.cases[id]
	if !ok {
		return nil, shared.E(shared.ErrNotFound, "case not found", nil)
	}
	copied := *c
	return &copied, nil
}

func (m *memoryRepo) CreateBound(_ context.Context, c *Case, tr *Transition) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	if err := m.alloc.bind(c.ReservationID, c.ID); err != nil {
		return err
	}
	c.CreatedAt = time.Now()
	copied := *c
	m.cases[c.ID] = &copied
	m.appendTransition(tr)
	return nil
}

func (m *memoryRepo) UpdateStatus(_ context.Context, c *Case, tr *Transition, releaseReservation bool) error {
	if _, ok := m.cases[c.ID]; !ok {
		return shared.E(shared.ErrNotFound, "case not found", nil)
	}
	copied := *c
	m.cases[c.ID] = &copied
	if releaseReservation {
		if res, ok := m.alloc.reservations[c.ReservationID]; ok {
			res.Status = sequence.StatusReleased
			res.CaseID = nil
		}
	}
	m.appendTransition(tr)
	return nil
}

func (m *memoryRepo) Reassign(_ context.Context, c *Case, tr *Transition, oldReservationID uuid.UUID) error {
	if err := m.alloc.bind(c.ReservationID, c.ID); err != nil {
		return err
	}
	if res, ok := m.alloc.reservations[oldReservationID]; ok {
		res.Status = sequence.StatusReleased
		res.CaseID = nil
	}
	copied := *c
	m.cases[c.ID] = &copied
	m.appendTransition(tr)
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id uuid.UUID) ([]string, error) {
	c, ok := m.cases[id]
	if !ok {
		return nil, shared.E(shared.ErrNotFound, "case not found", nil)
	}
	for _, res := range m.alloc.reservations {
		if res.CaseID != nil && *res.CaseID == id {
			res.Status = sequence.StatusReleased
			res.CaseID = nil
		}
	}
	paths := m.docPaths[c.ID]
	delete(m.docPaths, c.ID)
	delete(m.cases, id)
	return paths, nil
}

func (m *memoryRepo) ListTransitions(_ context.Context, caseID uuid.UUID) ([]Transition, error) {
	var out []Transition
	for _, tr := range m.transitions {
		if tr.CaseID == caseID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (m *memoryRepo) List(_ context.Context, f ListFilter) ([]Case, error) {
	var out []Case
	for _, c := range m.cases {
		if f.Kind != "" && c.Kind != f.Kind {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if !f.IncludeCanceled && c.Status == StatusCanceled {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (m *memoryRepo) appendTransition(tr *Transition) {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	if tr.OccurredAt.IsZero() {
		tr.OccurredAt = time.Now()
	}
	m.transitions = append(m.transitions, *tr)
}

type fakeResolver struct{ client *clients.Client }

func (f *fakeResolver) Resolve(_ context.Context, in clients.ResolveInput) (*clients.Client, error) {
	if f.client == nil {
		f.client = &clients.Client{ID: uuid.New(), Name: in.Name}
	}
	return f.client, nil
}

type fakeDealers struct{ dealers map[uuid.UUID]*catalog.Dealer }

func (f *fakeDealers) GetDealer(_ context.Context, id uuid.UUID) (*catalog.Dealer, error) {
	d, ok := f.dealers[id]
	if !ok {
		return nil, shared.E(shared.ErrNotFound, "dealer not found", nil)
	}
	return d, nil
}

type fakeDocs struct{ created []*documents.Document }

func (f *fakeDocs) Create(_ context.Context, d *documents.Document) error {
	f.created = append(f.created, d)
	return nil
}

type memoryStore struct {
	files map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{files: map[string][]byte{}}
}

func (m *memoryStore) Write(relPath string, data []byte) error {
	m.files[relPath] = data
	return nil
}

func (m *memoryStore) DeleteIfExists(relPath string) error {
	delete(m.files, relPath)
	return nil
}

type fixture struct {
	svc      *Service
	repo     *memoryRepo
	alloc    *fakeAllocator
	store    *memoryStore
	docs     *fakeDocs
	dealerID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	alloc := newFakeAllocator()
	repo := newMemoryRepo(alloc)
	store := newMemoryStore()
	docs := &fakeDocs{}
	dealerID := uuid.New()
	dealers := &fakeDealers{dealers: map[uuid.UUID]*catalog.Dealer{
		dealerID: {ID: dealerID, Code: "BOG01", Name: "Autos Bogota"},
	}}
	svc := NewService(repo, alloc, &fakeResolver{}, dealers, docs, store, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &fixture{svc: svc, repo: repo, alloc: alloc, store: store, docs: docs, dealerID: dealerID}
}

func (f *fixture) addDealer(code string) uuid.UUID {
	id := uuid.New()
	dealers := f.svc.dealers.(*fakeDealers)
	dealers.dealers[id] = &catalog.Dealer{ID: id, Code: code}
	return id
}

func (f *fixture) create(t *testing.T, kind Kind) *Case {
	t.Helper()
	c, err := f.svc.Create(context.Background(), CreateInput{
		Kind:     kind,
		DealerID: f.dealerID,
		Year:     2026,
		Client:   clients.ResolveInput{Name: "Ana Ruiz", DocumentNumber: "900123"},
	}, "u1")
	require.NoError(t, err)
	return c
}

func TestCreateBindsSequence(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, KindFiling)

	require.Equal(t, 1, c.Number)
	require.Equal(t, StatusInvoiceReceived, c.Status)
	require.Equal(t, "2026-BOG01-0001", c.DisplayID())

	res, err := f.svc.Reservation(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, sequence.StatusBound, res.Status)
	require.Equal(t, 1, res.Number)

	history, err := f.svc.History(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Nil(t, history[0].From)
	require.Equal(t, StatusInvoiceReceived, history[0].To)

	second := f.create(t, KindFiling)
	require.Equal(t, 2, second.Number)
}

func TestCreateCompensatesOnRepositoryFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.failCreate = errors.New("insert failed")

	_, err := f.svc.Create(context.Background(), CreateInput{
		Kind:     KindFiling,
		DealerID: f.dealerID,
		Year:     2026,
		Client:   clients.ResolveInput{Name: "Ana Ruiz"},
		InvoiceFile: &FileInput{Filename: "invoice.pdf", Data: []byte("pdf")},
	}, "u1")
	require.Error(t, err)

	// The reservation was released and the pre-written file removed.
	for _, res := range f.alloc.reservations {
		require.Equal(t, sequence.StatusReleased, res.Status)
	}
	require.Empty(t, f.store.files)

	// The released number is reused by the next creation.
	f.repo.failCreate = nil
	c := f.create(t, KindFiling)
	require.Equal(t, 1, c.Number)
}

func TestCreateStoresInvoiceFile(t *testing.T) {
	f := newFixture(t)

	c, err := f.svc.Create(context.Background(), CreateInput{
		Kind:        KindFiling,
		DealerID:    f.dealerID,
		Year:        2026,
		Client:      clients.ResolveInput{Name: "Ana Ruiz"},
		InvoiceFile: &FileInput{Filename: "invoice.pdf", Data: []byte("pdf")},
	}, "u1")
	require.NoError(t, err)

	require.Contains(t, f.store.files, "2026/BOG01/0001/invoice.pdf")
	require.Len(t, f.docs.created, 1)
	require.Equal(t, c.ID, f.docs.created[0].CaseID)
	require.Equal(t, documents.KindDealerInvoice, f.docs.created[0].Kind)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateInput{Kind: "BOGUS", DealerID: f.dealerID, Year: 2026}, "u1")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(ctx, CreateInput{Kind: KindFiling, DealerID: f.dealerID, Year: 0}, "u1")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestChangeStateRecordsTransition(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, KindFiling)
	ctx := context.Background()

	updated, err := f.svc.ChangeState(ctx, c.ID, StatusPreassignmentRequested, "requested at window", "u1", "")
	require.NoError(t, err)
	require.Equal(t, StatusPreassignmentRequested, updated.Status)

	history, err := f.svc.History(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, StatusInvoiceReceived, *history[1].From)
	require.Equal(t, ActionNormal, history[1].Action)
}

func TestChangeStateRejectsForeignStatus(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, KindFiling)

	// RECEIVED belongs to the service pipeline, not to filings.
	_, err := f.svc.ChangeState(context.Background(), c.ID, StatusReceived, "", "u1", "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPlateAssignedRequiresPlate(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, KindFiling)
	ctx := context.Background()

	_, err := f.svc.ChangeState(ctx, c.ID, StatusPlateAssigned, "", "u1", "")
	require.ErrorIs(t, err, shared.ErrValidation)

	updated, err := f.svc.ChangeState(ctx, c.ID, StatusPlateAssigned, "", "u1", " abc 123 ")
	require.NoError(t, err)
	require.Equal(t, "ABC123", updated.Plate)
}

func TestFiledStampsFiledAtOnce(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, KindTransfer)
	ctx := context.Background()

	updated, err := f.svc.ChangeState(ctx, c.ID, StatusFiled, "", "u1", "")
	require.NoError(t, err)
	require.NotNil(t, updated.FiledAt)
	first := *updated.FiledAt

	_, err = f.svc.ChangeState(ctx, c.ID, StatusInProgress, "", "u1", "")
	require.NoError(t, err)
	updated, err = f.svc.ChangeState(ctx, c.ID, StatusFiled, "", "u1", "")
	require.NoError(t, err)
	require.Equal(t, first, *updated.FiledAt)
}

func TestFinalizeLocksCase(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, KindFiling)
	ctx := context.Background()

	finalized, err := f.svc.Finalize(ctx, c.ID, "", "u1")
	require.NoError(t, err)
	require.Equal(t, StatusFinalized, finalized.Status)
	require.NotNil(t, finalized.FinalizedAt)

	_, err = f.svc.ChangeState(ctx, c.ID, StatusDocsPending, "", "u1", "")
	require.ErrorIs(t, err, shared.ErrLockedState)
	require.ErrorIs(t, f.svc.AssertMutable(ctx, c.ID), shared.ErrLockedState)

	_, err = f.svc.Finalize(ctx, c.ID, "", "u1")
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestReopenFinalizedCase(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, KindFiling)
	ctx := context.Background()

	_, err := f.svc.Finalize(ctx, c.ID, "", "u1")
	require.NoError(t, err)

	_, err = f.svc.Reopen(ctx, c.ID, "", "u1", "")
	require.ErrorIs(t, err, shared.ErrValidation)

	reopened, err := f.svc.Reopen(ctx, c.ID, "missing stamp receipt", "u1", "")
	require.NoError(t, err)
	require.Equal(t, StatusDocsPending, reopened.Status)
	require.Nil(t, reopened.FinalizedAt)

	history, err := f.svc.History(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, ActionReopen, history[len(history)-1].Action)
}

func TestReopenRequiresFinalizedState(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, KindFiling)

	_, err := f.svc.Reopen(context.Background(), c.ID, "reason", "u1", "")
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCancelReleasesReservation(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, KindFiling)
	ctx := context.Background()

	canceled, err := f.svc.Cancel(ctx, c.ID, "client withdrew", "u1")
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledAt)

	_, err = f.svc.Reservation(ctx, c.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.Cancel(ctx, c.ID, "again", "u1")
	require.ErrorIs(t, err, shared.ErrConflict)

	// The released number is reusable.
	next := f.create(t, KindFiling)
	require.Equal(t, 1, next.Number)
}

func TestCancelAfterCompletionByKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A finalized filing can still be canceled.
	filing := f.create(t, KindFiling)
	_, err := f.svc.Finalize(ctx, filing.ID, "", "u1")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, filing.ID, "registration revoked", "u1")
	require.NoError(t, err)

	// A delivered service cannot.
	service := f.create(t, KindTransfer)
	_, err = f.svc.Finalize(ctx, service.ID, "", "u1")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, service.ID, "too late", "u1")
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestChangeStateDelegatesTerminalStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.create(t, KindTransfer)
	delivered, err := f.svc.ChangeState(ctx, c.ID, StatusDelivered, "picked up by owner", "u1", "")
	require.NoError(t, err)
	require.NotNil(t, delivered.FinalizedAt)

	history, err := f.svc.History(ctx, c.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	require.Equal(t, ActionFinalize, last.Action)
	require.Equal(t, "picked up by owner", last.Notes)

	c2 := f.create(t, KindFiling)
	canceled, err := f.svc.ChangeState(ctx, c2.ID, StatusCanceled, "dup", "u1", "")
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledAt)
}

func TestReassignDealer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	otherDealer := f.addDealer("MED02")

	c := f.create(t, KindFiling)
	oldReservation := c.ReservationID

	updated, err := f.svc.ReassignDealer(ctx, c.ID, otherDealer, "u1")
	require.NoError(t, err)
	require.Equal(t, otherDealer, updated.DealerID)
	require.Equal(t, "MED02", updated.DealerCode)
	require.Equal(t, 1, updated.Number)
	require.Equal(t, f.dealerID, *updated.PrevDealerID)
	require.Equal(t, 1, *updated.PrevNumber)

	require.Equal(t, sequence.StatusReleased, f.alloc.reservations[oldReservation].Status)
	res, err := f.svc.Reservation(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, updated.ReservationID, res.ID)

	// The old scope's number is free again.
	next := f.create(t, KindFiling)
	require.Equal(t, 1, next.Number)
}

func TestReassignDealerLockedCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	otherDealer := f.addDealer("MED02")

	c := f.create(t, KindFiling)
	_, err := f.svc.Finalize(ctx, c.ID, "", "u1")
	require.NoError(t, err)

	_, err = f.svc.ReassignDealer(ctx, c.ID, otherDealer, "u1")
	require.ErrorIs(t, err, shared.ErrLockedState)
}

func TestDeleteMutableCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.Create(ctx, CreateInput{
		Kind:        KindFiling,
		DealerID:    f.dealerID,
		Year:        2026,
		Client:      clients.ResolveInput{Name: "Ana Ruiz"},
		InvoiceFile: &FileInput{Filename: "invoice.pdf", Data: []byte("pdf")},
	}, "u1")
	require.NoError(t, err)
	f.repo.docPaths[c.ID] = []string{"2026/BOG01/0001/invoice.pdf"}

	require.NoError(t, f.svc.Delete(ctx, c.ID, "u1"))
	_, err = f.svc.Get(ctx, c.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, f.store.files)
	for _, res := range f.alloc.reservations {
		require.Equal(t, sequence.StatusReleased, res.Status)
	}
}

func TestDeleteLockedCaseFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.create(t, KindFiling)
	_, err := f.svc.Finalize(ctx, c.ID, "", "u1")
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(ctx, c.ID, "u1"), shared.ErrLockedState)
}

func TestValidatePlate(t *testing.T) {
	got, err := ValidatePlate(" abc 123 ")
	require.NoError(t, err)
	require.Equal(t, "ABC123", got)

	_, err = ValidatePlate("ab")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = ValidatePlate("abc-123!")
	require.ErrorIs(t, err, shared.ErrValidation)
}
