// Package settlement computes the client-facing statement of charges for a
// case and owns the managed payment rows behind it.
package settlement

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Category classifies payments for legacy-exclusion matching.
type Category string

const (
	CategoryTimbre   Category = "TIMBRE"
	CategoryDerechos Category = "DERECHOS"
	CategoryOtro     Category = "OTRO"
)

// IsValid checks membership in the category enum.
func (c Category) IsValid() bool {
	switch c {
	case CategoryTimbre, CategoryDerechos, CategoryOtro:
		return true
	}
	return false
}

// ConceptKey identifies one row of the statement template.
type ConceptKey string

const (
	ConceptStampTax       ConceptKey = "STAMP_TAX"
	ConceptRoadTax        ConceptKey = "ROAD_TAX"
	ConceptRegistration   ConceptKey = "REGISTRATION"
	ConceptPrimaryService ConceptKey = "PRIMARY_SERVICE"
	ConceptShipping1      ConceptKey = "SHIPPING_1"
	ConceptShipping2      ConceptKey = "SHIPPING_2"
	ConceptFines          ConceptKey = "FINES"
)

// Concept is one template row definition.
type Concept struct {
	Key          ConceptKey
	Label        string
	HasSurcharge bool
	HasYear      bool
	Category     Category
}

// Concepts is the statement template in display order. The template is fixed
// configuration: row order, surcharge support, year support and category are
// not user-editable.
var Concepts = []Concept{
	{Key: ConceptStampTax, Label: "Impuesto de timbre", HasSurcharge: true, HasYear: true, Category: CategoryTimbre},
	{Key: ConceptRoadTax, Label: "Impuesto de rodamiento", HasSurcharge: true, HasYear: true, Category: CategoryDerechos},
	{Key: ConceptRegistration, Label: "Derechos de matricula", HasSurcharge: true, HasYear: true, Category: CategoryDerechos},
	{Key: ConceptPrimaryService, Label: "Servicio", HasSurcharge: true, HasYear: true, Category: CategoryDerechos},
	{Key: ConceptShipping1, Label: "Envio documentos", HasSurcharge: true, Category: CategoryOtro},
	{Key: ConceptShipping2, Label: "Envio placas", HasSurcharge: false, Category: CategoryOtro},
	{Key: ConceptFines, Label: "Multas", HasSurcharge: false, Category: CategoryOtro},
}

var conceptByKey = func() map[ConceptKey]Concept {
	m := make(map[ConceptKey]Concept, len(Concepts))
	for _, c := range Concepts {
		m[c.Key] = c
	}
	return m
}()

// ConceptFor returns the template row for a key.
func ConceptFor(key ConceptKey) (Concept, bool) {
	c, ok := conceptByKey[key]
	return c, ok
}

// legacyExclusions maps a legacy payment's category to the template rows it
// displaces. DERECHOS knocking out two rows mirrors how pre-engine records
// bundled road tax and registration into one figure.
var legacyExclusions = map[Category][]ConceptKey{
	CategoryTimbre:   {ConceptStampTax},
	CategoryDerechos: {ConceptRoadTax, ConceptRegistration},
}

// Payment is one payment/cost entry attached to a case. Managed payments
// carry a concept key and are owned by SaveLines; legacy payments predate the
// engine and only participate through exclusion.
type Payment struct {
	ID        uuid.UUID
	CaseID    uuid.UUID
	Category  Category
	Base      int64
	Surcharge int64
	Key       *ConceptKey
	Label     string
	Year      *int
	Date      time.Time
	Notes     string
	Actor     string
	CreatedAt time.Time
}

// IsManaged reports whether the payment belongs to a template row.
func (p Payment) IsManaged() bool {
	if p.Key == nil {
		return false
	}
	_, ok := conceptByKey[*p.Key]
	return ok
}

// Line is one computed statement row.
type Line struct {
	Key       ConceptKey `json:"key"`
	Label     string     `json:"label"`
	Year      *int       `json:"year,omitempty"`
	Base      int64      `json:"base"`
	Surcharge int64      `json:"surcharge"`
	Notes     string     `json:"notes,omitempty"`
	Total     int64      `json:"total"`
}

// Totals is the statement footer.
type Totals struct {
	TotalRefundable int64 `json:"total_refundable"`
	Fees            int64 `json:"plus_fees"`
	TotalDue        int64 `json:"total_due"`
	LessDeposit     int64 `json:"less_deposit"`
	BalanceDue      int64 `json:"balance_due"`
}

// View is the full computed statement.
type View struct {
	CaseID      uuid.UUID `json:"case_id"`
	StatementID string    `json:"statement_id"`
	Lines       []Line    `json:"lines"`
	Totals      Totals    `json:"totals"`
}

// CaseHeader carries the case fields the aggregator reads.
type CaseHeader struct {
	ID            uuid.UUID
	Year          int
	Number        int
	DealerCode    string
	ServiceLabel  string
	LabelOverride string
	Fees          int64
	Deposit       int64
}

// StatementID renders the printed statement identifier, e.g. "007 -BOG01-2026".
func StatementID(number int, dealerCode string, year int) string {
	return fmt.Sprintf("%03d -%s-%d", number, dealerCode, year)
}

// ExcludedKeys unions the exclusion sets of all legacy payments carrying a
// positive combined amount.
func ExcludedKeys(payments []Payment) map[ConceptKey]bool {
	out := map[ConceptKey]bool{}
	for _, p := range payments {
		if p.IsManaged() || p.Base+p.Surcharge <= 0 {
			continue
		}
		for _, key := range legacyExclusions[p.Category] {
			out[key] = true
		}
	}
	return out
}

type group struct {
	base      int64
	surcharge int64
	latest    Payment
	year      *int
}

// Compute builds the statement view from a case header and its payments.
func Compute(header CaseHeader, payments []Payment) View {
	excluded := ExcludedKeys(payments)

	groups := map[ConceptKey]*group{}
	for _, p := range payments {
		if !p.IsManaged() {
			continue
		}
		key := *p.Key
		g, ok := groups[key]
		if !ok {
			g = &group{latest: p}
			groups[key] = g
		}
		g.base += p.Base
		g.surcharge += p.Surcharge
		if !p.CreatedAt.Before(g.latest.CreatedAt) {
			g.latest = p
		}
		if conceptByKey[key].HasYear && p.Year != nil {
			g.year = p.Year
		}
	}

	view := View{
		CaseID:      header.ID,
		StatementID: StatementID(header.Number, header.DealerCode, header.Year),
	}
	for _, c := range Concepts {
		if excluded[c.Key] {
			continue
		}
		line := Line{Key: c.Key, Label: c.Label}
		if c.Key == ConceptPrimaryService {
			line.Label = header.ServiceLabel
			if header.LabelOverride != "" {
				line.Label = header.LabelOverride
			}
		}
		if g, ok := groups[c.Key]; ok {
			line.Base = g.base
			line.Surcharge = g.surcharge
			line.Notes = g.latest.Notes
			if c.HasYear {
				line.Year = g.year
			}
		}
		if !c.HasSurcharge {
			line.Surcharge = 0
		}
		if c.HasYear && line.Year == nil {
			year := header.Year
			line.Year = &year
		}
		line.Total = line.Base + line.Surcharge
		view.Lines = append(view.Lines, line)
		view.Totals.TotalRefundable += line.Total
	}

	view.Totals.Fees = header.Fees
	view.Totals.TotalDue = view.Totals.TotalRefundable + header.Fees
	if header.Deposit > 0 {
		view.Totals.LessDeposit = header.Deposit
	}
	view.Totals.BalanceDue = view.Totals.TotalDue - view.Totals.LessDeposit
	return view
}

// SortPaymentsByCreation orders payments oldest first, for stable upserts.
func SortPaymentsByCreation(payments []Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
}
