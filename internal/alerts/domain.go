// Package alerts flags cases that have sat in one state for too long.
package alerts

import (
	"time"

	"github.com/google/uuid"
)

// Rule pairs a case status with the longest acceptable stay in it.
type Rule struct {
	Status string
	MaxAge time.Duration
}

const day = 24 * time.Hour

// DefaultRules covers the states where a stall usually means paperwork is
// stuck with an external party. Terminal states never alert.
var DefaultRules = []Rule{
	{Status: "INVOICE_RECEIVED", MaxAge: 3 * day},
	{Status: "PREASSIGNMENT_REQUESTED", MaxAge: 5 * day},
	{Status: "PLATE_ASSIGNED", MaxAge: 3 * day},
	{Status: "PLATE_SENT_TO_DEALER", MaxAge: 7 * day},
	{Status: "DOCS_PENDING", MaxAge: 10 * day},
	{Status: "SENT_TO_TRANSIT_AGENT", MaxAge: 15 * day},
	{Status: "RECEIVED", MaxAge: 3 * day},
	{Status: "PAYMENTS_PENDING", MaxAge: 10 * day},
	{Status: "IN_PROGRESS", MaxAge: 15 * day},
}

// StaleCase is a case and how long it has been in its current state.
type StaleCase struct {
	CaseID    uuid.UUID
	Status    string
	EnteredAt time.Time
}

// Alert is one overdue finding from a scan.
type Alert struct {
	ID        uuid.UUID     `json:"id"`
	CaseID    uuid.UUID     `json:"case_id"`
	Status    string        `json:"status"`
	Age       time.Duration `json:"age"`
	CreatedAt time.Time     `json:"created_at"`
}

// Evaluate returns an alert for every case whose stay exceeds its rule.
// Cases in states without a rule are skipped.
func Evaluate(rules []Rule, cases []StaleCase, now time.Time) []Alert {
	byStatus := make(map[string]time.Duration, len(rules))
	for _, r := range rules {
		byStatus[r.Status] = r.MaxAge
	}
	var out []Alert
	for _, c := range cases {
		maxAge, ok := byStatus[c.Status]
		if !ok {
			continue
		}
		age := now.Sub(c.EnteredAt)
		if age > maxAge {
			out = append(out, Alert{
				ID:        uuid.New(),
				CaseID:    c.CaseID,
				Status:    c.Status,
				Age:       age,
				CreatedAt: now,
			})
		}
	}
	return out
}
