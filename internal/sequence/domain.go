// Package sequence allocates gapless per-(dealer, year) case numbers.
package sequence

import (
	"time"

	"github.com/google/uuid"
)

// Status enumerates reservation states.
type Status string

const (
	// StatusReserved marks a claimed number not yet attached to a case.
	StatusReserved Status = "RESERVED"
	// StatusBound marks a number attached to an active case.
	StatusBound Status = "BOUND"
	// StatusReleased marks a number returned to the pool.
	StatusReleased Status = "RELEASED"
)

// IsValid checks membership in the status enum.
func (s Status) IsValid() bool {
	switch s {
	case StatusReserved, StatusBound, StatusReleased:
		return true
	}
	return false
}

// Reservation is a claimed integer slot within a (dealer, year) scope.
// Among RESERVED and BOUND reservations sharing a scope, numbers are unique.
type Reservation struct {
	ID         uuid.UUID
	DealerID   uuid.UUID
	Year       int
	Number     int
	Status     Status
	CaseID     *uuid.UUID
	ReleasedAt *time.Time
	CreatedAt  time.Time
}

// NextFree returns the smallest positive integer absent from claimed, which
// must be sorted ascending. Released numbers are not in claimed, so gaps are
// filled before the run is extended.
func NextFree(claimed []int) int {
	expected := 1
	for _, n := range claimed {
		if n == expected {
			expected++
		} else if n > expected {
			break
		}
	}
	return expected
}
