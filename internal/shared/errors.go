package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel error kinds for the case-management core. Callers test with
// errors.Is; the HTTP layer maps each kind to a status code.
var (
	// ErrNotFound indicates a case, reservation or payment record is absent.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input detected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrLockedState indicates a mutation attempted on a finalized or canceled case.
	ErrLockedState = errors.New("case is locked")
	// ErrConflict indicates an already-done transition or an ambiguous identity match.
	ErrConflict = errors.New("conflict")
	// ErrAllocationExhausted indicates the sequence allocator ran out of retries.
	ErrAllocationExhausted = errors.New("sequence allocation retries exhausted")
)

// Error attaches a message and structured context to one of the sentinel
// kinds so the calling layer can render a specific message.
type Error struct {
	Kind    error
	Message string
	Meta    map[string]any
}

// E builds an Error of the given kind.
func E(kind error, message string, meta map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Meta: meta}
}

func (e *Error) Error() string {
	if len(e.Meta) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Meta))
	for k := range e.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Meta[k]))
	}
	return e.Message + " (" + strings.Join(parts, " ") + ")"
}

// Unwrap exposes the sentinel kind to errors.Is.
func (e *Error) Unwrap() error { return e.Kind }

// UserSafeMessage returns a message suitable for end users; internal errors
// collapse to a generic line.
func UserSafeMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrLockedState),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrAllocationExhausted):
		return err.Error()
	}
	return "internal error"
}
