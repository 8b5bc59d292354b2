// Package shipments tracks courier dispatches of plates and paperwork
// between the office and dealers. One shipment can carry items for several
// cases at once.
package shipments

import (
	"time"

	"github.com/google/uuid"
)

// Direction says which way a shipment travels.
type Direction string

const (
	// DirectionToDealer covers assigned plates shipped out to a dealer.
	DirectionToDealer Direction = "TO_DEALER"
	// DirectionFromDealer covers physical documents returned by a dealer.
	DirectionFromDealer Direction = "FROM_DEALER"
)

// IsValid checks membership in the direction enum.
func (d Direction) IsValid() bool {
	return d == DirectionToDealer || d == DirectionFromDealer
}

// Shipment is a single courier dispatch.
type Shipment struct {
	ID             uuid.UUID   `json:"id"`
	DealerID       uuid.UUID   `json:"dealer_id"`
	Direction      Direction   `json:"direction"`
	Carrier        string      `json:"carrier"`
	TrackingNumber string      `json:"tracking_number"`
	Notes          string      `json:"notes,omitempty"`
	SentAt         time.Time   `json:"sent_at"`
	ReceivedAt     *time.Time  `json:"received_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	CaseIDs        []uuid.UUID `json:"case_ids,omitempty"`
}
