// Package cases owns the case record and its lifecycle state machine.
package cases

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tramitex/tramitex/internal/shared"
)

// Kind discriminates the case variants. FILING covers new-vehicle
// registrations driven by a dealer invoice; the rest are walk-in services.
type Kind string

const (
	KindFiling              Kind = "FILING"
	KindTransfer            Kind = "TRANSFER"
	KindInitialRegistration Kind = "INITIAL_REGISTRATION"
	KindPlateDuplicate      Kind = "PLATE_DUPLICATE"
	KindLienRelease         Kind = "LIEN_RELEASE"
	KindLienRegistration    Kind = "LIEN_REGISTRATION"
	KindTransferWithLien    Kind = "TRANSFER_WITH_LIEN"
	KindOther               Kind = "OTHER"
)

// IsValid checks membership in the kind enum.
func (k Kind) IsValid() bool {
	switch k {
	case KindFiling, KindTransfer, KindInitialRegistration, KindPlateDuplicate,
		KindLienRelease, KindLienRegistration, KindTransferWithLien, KindOther:
		return true
	}
	return false
}

// IsService reports whether the kind follows the service pipeline.
func (k Kind) IsService() bool {
	return k.IsValid() && k != KindFiling
}

// ServiceLabel is the human label used on statements for the primary
// service row.
func (k Kind) ServiceLabel() string {
	switch k {
	case KindFiling:
		return "Matricula vehiculo nuevo"
	case KindTransfer:
		return "Traspaso"
	case KindInitialRegistration:
		return "Matricula inicial"
	case KindPlateDuplicate:
		return "Duplicado de placa"
	case KindLienRelease:
		return "Levantamiento de prenda"
	case KindLienRegistration:
		return "Inscripcion de prenda"
	case KindTransferWithLien:
		return "Traspaso con prenda"
	default:
		return "Otro tramite"
	}
}

// Status is a lifecycle state. The valid domain depends on the case kind.
type Status string

// Filing pipeline states.
const (
	StatusInvoiceReceived        Status = "INVOICE_RECEIVED"
	StatusPreassignmentRequested Status = "PREASSIGNMENT_REQUESTED"
	StatusPlateAssigned          Status = "PLATE_ASSIGNED"
	StatusPlateSentToDealer      Status = "PLATE_SENT_TO_DEALER"
	StatusDocsPending            Status = "DOCS_PENDING"
	StatusDocsComplete           Status = "DOCS_COMPLETE"
	StatusSentToTransitAgent     Status = "SENT_TO_TRANSIT_AGENT"
	StatusStampTaxPaid           Status = "STAMP_TAX_PAID"
	StatusRoadTaxPaid            Status = "ROAD_TAX_PAID"
	StatusFinalized              Status = "FINALIZED"
	StatusCanceled               Status = "CANCELED"
)

// Service pipeline states. DOCS_PENDING and CANCELED are shared with the
// filing pipeline.
const (
	StatusReceived         Status = "RECEIVED"
	StatusInReview         Status = "IN_REVIEW"
	StatusPaymentsPending  Status = "PAYMENTS_PENDING"
	StatusFiled            Status = "FILED"
	StatusInProgress       Status = "IN_PROGRESS"
	StatusReadyForDelivery Status = "READY_FOR_DELIVERY"
	StatusDelivered        Status = "DELIVERED"
)

var filingStatuses = []Status{
	StatusInvoiceReceived, StatusPreassignmentRequested, StatusPlateAssigned,
	StatusPlateSentToDealer, StatusDocsPending, StatusDocsComplete,
	StatusSentToTransitAgent, StatusStampTaxPaid, StatusRoadTaxPaid,
	StatusFinalized, StatusCanceled,
}

var serviceStatuses = []Status{
	StatusReceived, StatusInReview, StatusDocsPending, StatusPaymentsPending,
	StatusFiled, StatusInProgress, StatusReadyForDelivery, StatusDelivered,
	StatusCanceled,
}

// StatusesFor returns the valid status domain for a kind.
func StatusesFor(kind Kind) []Status {
	if kind == KindFiling {
		return filingStatuses
	}
	return serviceStatuses
}

// ValidFor reports whether the status belongs to the kind's domain.
func (s Status) ValidFor(kind Kind) bool {
	for _, candidate := range StatusesFor(kind) {
		if s == candidate {
			return true
		}
	}
	return false
}

// InitialStatus is the state a fresh case of the kind starts in.
func InitialStatus(kind Kind) Status {
	if kind == KindFiling {
		return StatusInvoiceReceived
	}
	return StatusReceived
}

// DoneStatus is the kind's successful terminal state.
func DoneStatus(kind Kind) Status {
	if kind == KindFiling {
		return StatusFinalized
	}
	return StatusDelivered
}

// IsTerminal reports whether the status locks the case for the kind.
func (s Status) IsTerminal(kind Kind) bool {
	return s == StatusCanceled || s == DoneStatus(kind)
}

// DefaultReopenTarget is where a reopened case lands when no target is given.
const DefaultReopenTarget = StatusDocsPending

// TransitionAction classifies a transition record.
type TransitionAction string

const (
	ActionNormal   TransitionAction = "NORMAL"
	ActionReopen   TransitionAction = "REOPEN"
	ActionCancel   TransitionAction = "CANCEL"
	ActionFinalize TransitionAction = "FINALIZE"
)

// Transition is one append-only state change record. From is nil only for
// the creation event.
type Transition struct {
	ID         uuid.UUID        `json:"id"`
	CaseID     uuid.UUID        `json:"case_id"`
	From       *Status          `json:"from,omitempty"`
	To         Status           `json:"to"`
	Action     TransitionAction `json:"action"`
	Notes      string           `json:"notes,omitempty"`
	Actor      string           `json:"actor"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Case is one filing or service record.
type Case struct {
	ID            uuid.UUID
	Kind          Kind
	Status        Status
	Year          int
	Number        int
	DealerID      uuid.UUID
	DealerCode    string
	PrevDealerID  *uuid.UUID
	PrevNumber    *int
	CityID        *uuid.UUID
	ClientID      uuid.UUID
	ReservationID uuid.UUID
	Plate         string
	Payload       json.RawMessage
	Fees          int64
	Deposit       int64
	LabelOverride string
	FiledAt       *time.Time
	CreatedAt     time.Time
	FinalizedAt   *time.Time
	CanceledAt    *time.Time
}

// DisplayID renders the human case identifier, e.g. "2026-BOG01-0007".
func (c *Case) DisplayID() string {
	return fmt.Sprintf("%d-%s-%04d", c.Year, c.DealerCode, c.Number)
}

// Locked reports whether the case is in a terminal state.
func (c *Case) Locked() bool {
	return c.Status.IsTerminal(c.Kind)
}

var platePattern = regexp.MustCompile(`^[A-Z0-9]{5,7}$`)

// NormalizePlate strips whitespace and uppercases a plate identifier.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.Join(strings.Fields(plate), ""))
}

// ValidatePlate normalizes and validates a plate identifier.
func ValidatePlate(plate string) (string, error) {
	normalized := NormalizePlate(plate)
	if !platePattern.MatchString(normalized) {
		return "", shared.E(shared.ErrValidation, "invalid plate", map[string]any{"plate": plate})
	}
	return normalized, nil
}
