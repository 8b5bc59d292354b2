// Package catalog serves the reference data behind case intake: dealers and
// cities. Entries change rarely, so reads go through a short-lived cache.
package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Dealer is a vehicle dealership the intermediary files cases for.
type Dealer struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	NIT       string    `json:"nit"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// City is a transit jurisdiction where cases are registered.
type City struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
