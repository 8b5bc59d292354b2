// Package documents records the files stored alongside a case: the scanned
// dealer invoice, payment receipts and the final registration card. Bytes
// live in the file store; this package owns the metadata rows.
package documents

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a stored file.
type Kind string

const (
	KindDealerInvoice    Kind = "DEALER_INVOICE"
	KindPaymentReceipt   Kind = "PAYMENT_RECEIPT"
	KindRegistrationCard Kind = "REGISTRATION_CARD"
	KindOther            Kind = "OTHER"
)

// IsValid checks membership in the kind enum.
func (k Kind) IsValid() bool {
	switch k {
	case KindDealerInvoice, KindPaymentReceipt, KindRegistrationCard, KindOther:
		return true
	}
	return false
}

// Document is the metadata for one stored file.
type Document struct {
	ID        uuid.UUID
	CaseID    uuid.UUID
	Kind      Kind
	Filename  string
	Path      string
	SizeBytes int64
	CreatedAt time.Time
}
