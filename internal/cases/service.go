package cases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tramitex/tramitex/internal/catalog"
	"github.com/tramitex/tramitex/internal/clients"
	"github.com/tramitex/tramitex/internal/documents"
	"github.com/tramitex/tramitex/internal/platform/storage"
	"github.com/tramitex/tramitex/internal/sequence"
	"github.com/tramitex/tramitex/internal/shared"
)

// RepositoryPort abstracts case persistence.
type RepositoryPort interface {
	Get(ctx context.Context, id uuid.UUID) (*Case, error)
	CreateBound(ctx context.Context, c *Case, tr *Transition) error
	UpdateStatus(ctx context.Context, c *Case, tr *Transition, releaseReservation bool) error
	Reassign(ctx context.Context, c *Case, tr *Transition, oldReservationID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) ([]string, error)
	ListTransitions(ctx context.Context, caseID uuid.UUID) ([]Transition, error)
	List(ctx context.Context, f ListFilter) ([]Case, error)
}

// Allocator is the sequence allocator surface the lifecycle needs.
type Allocator interface {
	ReserveNext(ctx context.Context, dealerID uuid.UUID, year int) (*sequence.Reservation, error)
	Release(ctx context.Context, reservationID uuid.UUID) error
	ActiveByCase(ctx context.Context, caseID uuid.UUID) (*sequence.Reservation, error)
}

// ClientResolver finds or creates the client behind an intake form.
type ClientResolver interface {
	Resolve(ctx context.Context, in clients.ResolveInput) (*clients.Client, error)
}

// DealerCatalog provides dealer snapshots for scope binding.
type DealerCatalog interface {
	GetDealer(ctx context.Context, id uuid.UUID) (*catalog.Dealer, error)
}

// DocumentRecorder stores file metadata rows.
type DocumentRecorder interface {
	Create(ctx context.Context, d *documents.Document) error
}

// AuditPort records audit trail entries. A nil port disables auditing.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements the case lifecycle.
type Service struct {
	repo      RepositoryPort
	allocator Allocator
	resolver  ClientResolver
	dealers   DealerCatalog
	docs      DocumentRecorder
	store     storage.Store
	audit     AuditPort
	logger    *slog.Logger
}

// NewService wires the case service.
func NewService(repo RepositoryPort, allocator Allocator, resolver ClientResolver, dealers DealerCatalog, docs DocumentRecorder, store storage.Store, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		allocator: allocator,
		resolver:  resolver,
		dealers:   dealers,
		docs:      docs,
		store:     store,
		audit:     audit,
		logger:    logger,
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, caseID uuid.UUID, actor string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "case",
		EntityID: caseID.String(),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Error("audit record failed", "action", action, "case_id", caseID, "error", err)
	}
}

// FileInput is an upload accompanying case creation.
type FileInput struct {
	Filename string
	Data     []byte
}

// CreateInput is the case intake form.
type CreateInput struct {
	Kind        Kind
	DealerID    uuid.UUID
	Year        int
	CityID      *uuid.UUID
	Client      clients.ResolveInput
	Plate       string
	Payload     json.RawMessage
	InvoiceFile *FileInput
}

// Create reserves a sequence number, stores the invoice file if supplied and
// writes the case bound to its reservation. Any failure after the
// reservation is taken compensates: the file is removed and the reservation
// released before the error is returned.
func (s *Service) Create(ctx context.Context, in CreateInput, actor string) (*Case, error) {
	if !in.Kind.IsValid() {
		return nil, shared.E(shared.ErrValidation, "invalid case kind", map[string]any{"kind": in.Kind})
	}
	if in.Year <= 0 {
		return nil, shared.E(shared.ErrValidation, "year must be positive", map[string]any{"year": in.Year})
	}
	dealer, err := s.dealers.GetDealer(ctx, in.DealerID)
	if err != nil {
		return nil, err
	}
	client, err := s.resolver.Resolve(ctx, in.Client)
	if err != nil {
		return nil, err
	}
	var plate string
	if in.Plate != "" {
		if plate, err = ValidatePlate(in.Plate); err != nil {
			return nil, err
		}
	}

	res, err := s.allocator.ReserveNext(ctx, in.DealerID, in.Year)
	if err != nil {
		return nil, err
	}

	var filePath string
	compensate := func() {
		if filePath != "" {
			if delErr := s.store.DeleteIfExists(filePath); delErr != nil {
				s.logger.Error("compensation file delete failed", "path", filePath, "error", delErr)
			}
		}
		if relErr := s.allocator.Release(ctx, res.ID); relErr != nil {
			s.logger.Error("compensation release failed", "reservation_id", res.ID, "error", relErr)
		}
	}

	if in.InvoiceFile != nil {
		filePath = storage.CasePath(in.Year, dealer.Code, res.Number, in.InvoiceFile.Filename)
		if err := s.store.Write(filePath, in.InvoiceFile.Data); err != nil {
			compensate()
			return nil, err
		}
	}

	c := &Case{
		ID:            uuid.New(),
		Kind:          in.Kind,
		Status:        InitialStatus(in.Kind),
		Year:          in.Year,
		Number:        res.Number,
		DealerID:      in.DealerID,
		DealerCode:    dealer.Code,
		CityID:        in.CityID,
		ClientID:      client.ID,
		ReservationID: res.ID,
		Plate:         plate,
		Payload:       in.Payload,
	}
	tr := &Transition{CaseID: c.ID, To: c.Status, Action: ActionNormal, Actor: actor}
	if err := s.repo.CreateBound(ctx, c, tr); err != nil {
		compensate()
		return nil, err
	}

	if in.InvoiceFile != nil && s.docs != nil {
		doc := &documents.Document{
			CaseID:    c.ID,
			Kind:      documents.KindDealerInvoice,
			Filename:  in.InvoiceFile.Filename,
			Path:      filePath,
			SizeBytes: int64(len(in.InvoiceFile.Data)),
		}
		if err := s.docs.Create(ctx, doc); err != nil {
			s.logger.Error("invoice metadata record failed", "case_id", c.ID, "path", filePath, "error", err)
		}
	}

	s.logger.Info("case created",
		"case_id", c.ID, "display_id", c.DisplayID(), "kind", c.Kind, "actor", actor)
	return c, nil
}

// AssertMutable fails with a locked-state error when the case is terminal.
func (s *Service) AssertMutable(ctx context.Context, caseID uuid.UUID) error {
	c, err := s.repo.Get(ctx, caseID)
	if err != nil {
		return err
	}
	return assertMutable(c)
}

func assertMutable(c *Case) error {
	if c.Locked() {
		return shared.E(shared.ErrLockedState, "case is locked", map[string]any{
			"case_id": c.ID, "status": c.Status,
		})
	}
	return nil
}

// ChangeState moves a case to a new status. CANCELED delegates to Cancel and
// the kind's done status delegates to Finalize so their side effects apply
// uniformly. Entering PLATE_ASSIGNED requires a plate, persisted atomically
// with the status; entering FILED stamps filedAt once.
func (s *Service) ChangeState(ctx context.Context, caseID uuid.UUID, to Status, notes, actor, plate string) (*Case, error) {
	c, err := s.repo.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !to.ValidFor(c.Kind) {
		return nil, shared.E(shared.ErrValidation, "status not valid for case kind", map[string]any{
			"status": to, "kind": c.Kind,
		})
	}
	if to == StatusCanceled {
		return s.Cancel(ctx, caseID, notes, actor)
	}
	if to == DoneStatus(c.Kind) {
		return s.Finalize(ctx, caseID, notes, actor)
	}
	if err := assertMutable(c); err != nil {
		return nil, err
	}

	if to == StatusPlateAssigned {
		normalized, err := ValidatePlate(plate)
		if err != nil {
			return nil, err
		}
		c.Plate = normalized
	}
	if to == StatusFiled && c.FiledAt == nil {
		now := time.Now()
		c.FiledAt = &now
	}

	from := c.Status
	c.Status = to
	tr := &Transition{CaseID: c.ID, From: &from, To: to, Action: ActionNormal, Notes: notes, Actor: actor}
	if err := s.repo.UpdateStatus(ctx, c, tr, false); err != nil {
		return nil, err
	}
	s.logger.Info("case state changed", "case_id", c.ID, "from", from, "to", to, "actor", actor)
	return c, nil
}

// Cancel terminates a case and releases its bound reservation. A filing may
// be canceled even after finalization; a delivered service may not.
func (s *Service) Cancel(ctx context.Context, caseID uuid.UUID, reason, actor string) (*Case, error) {
	c, err := s.repo.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusCanceled {
		return nil, shared.E(shared.ErrConflict, "case is already canceled", map[string]any{"case_id": c.ID})
	}
	if c.Kind.IsService() && c.Status == StatusDelivered {
		return nil, shared.E(shared.ErrConflict, "delivered case cannot be canceled", map[string]any{"case_id": c.ID})
	}

	from := c.Status
	now := time.Now()
	c.Status = StatusCanceled
	c.CanceledAt = &now
	tr := &Transition{CaseID: c.ID, From: &from, To: StatusCanceled, Action: ActionCancel, Notes: reason, Actor: actor}
	if err := s.repo.UpdateStatus(ctx, c, tr, true); err != nil {
		return nil, err
	}
	s.logger.Info("case canceled", "case_id", c.ID, "from", from, "actor", actor)
	return c, nil
}

// Finalize moves a case to its done status and stamps finalizedAt.
func (s *Service) Finalize(ctx context.Context, caseID uuid.UUID, notes, actor string) (*Case, error) {
	c, err := s.repo.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusCanceled {
		return nil, shared.E(shared.ErrConflict, "canceled case cannot be finalized", map[string]any{"case_id": c.ID})
	}
	done := DoneStatus(c.Kind)
	if c.Status == done {
		return nil, shared.E(shared.ErrConflict, "case is already finalized", map[string]any{"case_id": c.ID})
	}

	from := c.Status
	now := time.Now()
	c.Status = done
	c.FinalizedAt = &now
	tr := &Transition{CaseID: c.ID, From: &from, To: done, Action: ActionFinalize, Notes: notes, Actor: actor}
	if err := s.repo.UpdateStatus(ctx, c, tr, false); err != nil {
		return nil, err
	}
	s.logger.Info("case finalized", "case_id", c.ID, "actor", actor)
	return c, nil
}

// Reopen takes a finalized case back into the pipeline. The reason is
// mandatory; the target defaults to DOCS_PENDING.
func (s *Service) Reopen(ctx context.Context, caseID uuid.UUID, reason, actor string, target Status) (*Case, error) {
	if reason == "" {
		return nil, shared.E(shared.ErrValidation, "reopen reason is required", nil)
	}
	c, err := s.repo.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status != DoneStatus(c.Kind) {
		return nil, shared.E(shared.ErrConflict, "only a finalized case can be reopened", map[string]any{
			"case_id": c.ID, "status": c.Status,
		})
	}
	if target == "" {
		target = DefaultReopenTarget
	}
	if !target.ValidFor(c.Kind) || target.IsTerminal(c.Kind) {
		return nil, shared.E(shared.ErrValidation, "invalid reopen target", map[string]any{"target": target})
	}

	from := c.Status
	c.Status = target
	c.FinalizedAt = nil
	tr := &Transition{CaseID: c.ID, From: &from, To: target, Action: ActionReopen, Notes: reason, Actor: actor}
	if err := s.repo.UpdateStatus(ctx, c, tr, false); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "case.reopen", c.ID, actor, map[string]any{
		"target": target, "reason": reason,
	})
	s.logger.Info("case reopened", "case_id", c.ID, "target", target, "actor", actor)
	return c, nil
}

// ReassignDealer moves a mutable case to a new dealer scope: a fresh number
// is reserved there, the old reservation is released and the previous scope
// is kept on the case for audit.
func (s *Service) ReassignDealer(ctx context.Context, caseID, newDealerID uuid.UUID, actor string) (*Case, error) {
	c, err := s.repo.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := assertMutable(c); err != nil {
		return nil, err
	}
	if c.DealerID == newDealerID {
		return nil, shared.E(shared.ErrValidation, "case is already assigned to this dealer", map[string]any{"dealer_id": newDealerID})
	}
	dealer, err := s.dealers.GetDealer(ctx, newDealerID)
	if err != nil {
		return nil, err
	}

	res, err := s.allocator.ReserveNext(ctx, newDealerID, c.Year)
	if err != nil {
		return nil, err
	}

	prevDealerID := c.DealerID
	prevNumber := c.Number
	oldReservationID := c.ReservationID
	c.PrevDealerID = &prevDealerID
	c.PrevNumber = &prevNumber
	c.DealerID = newDealerID
	c.DealerCode = dealer.Code
	c.Number = res.Number
	c.ReservationID = res.ID

	tr := &Transition{
		CaseID: c.ID,
		From:   &c.Status,
		To:     c.Status,
		Action: ActionNormal,
		Notes:  fmt.Sprintf("reassigned to dealer %s, sequence %d (was %d)", dealer.Code, res.Number, prevNumber),
		Actor:  actor,
	}
	if err := s.repo.Reassign(ctx, c, tr, oldReservationID); err != nil {
		if relErr := s.allocator.Release(ctx, res.ID); relErr != nil {
			s.logger.Error("compensation release failed", "reservation_id", res.ID, "error", relErr)
		}
		return nil, err
	}
	s.recordAudit(ctx, "case.reassign_dealer", c.ID, actor, map[string]any{
		"prev_dealer_id": prevDealerID, "prev_number": prevNumber,
		"dealer_id": newDealerID, "number": res.Number,
	})
	s.logger.Info("case reassigned", "case_id", c.ID, "dealer", dealer.Code, "number", res.Number, "actor", actor)
	return c, nil
}

// Delete removes a mutable case with its dependents, releases its
// reservations and then best-effort deletes stored files. File deletion
// failures are logged and never fail the operation.
func (s *Service) Delete(ctx context.Context, caseID uuid.UUID, actor string) error {
	c, err := s.repo.Get(ctx, caseID)
	if err != nil {
		return err
	}
	if err := assertMutable(c); err != nil {
		return err
	}

	paths, err := s.repo.Delete(ctx, caseID)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := s.store.DeleteIfExists(p); err != nil {
			s.logger.Error("case file delete failed", "case_id", caseID, "path", p, "error", err)
		}
	}
	s.recordAudit(ctx, "case.delete", caseID, actor, map[string]any{
		"display_id": c.DisplayID(), "status": c.Status,
	})
	s.logger.Info("case deleted", "case_id", caseID, "display_id", c.DisplayID(), "actor", actor)
	return nil
}

// Get looks up a case.
func (s *Service) Get(ctx context.Context, caseID uuid.UUID) (*Case, error) {
	return s.repo.Get(ctx, caseID)
}

// History returns the transition records, oldest first.
func (s *Service) History(ctx context.Context, caseID uuid.UUID) ([]Transition, error) {
	if _, err := s.repo.Get(ctx, caseID); err != nil {
		return nil, err
	}
	return s.repo.ListTransitions(ctx, caseID)
}

// Reservation returns the reservation currently bound to the case.
func (s *Service) Reservation(ctx context.Context, caseID uuid.UUID) (*sequence.Reservation, error) {
	return s.allocator.ActiveByCase(ctx, caseID)
}

// List pages through cases matching a filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Case, error) {
	return s.repo.List(ctx, f)
}
