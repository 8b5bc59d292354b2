// Package clients manages the customer registry and identity resolution.
package clients

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Client is a registered customer of the intermediary.
type Client struct {
	ID             uuid.UUID
	Name           string
	DocumentType   string
	DocumentNumber string
	Phone          string
	Email          string
	Address        string
	CityID         *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// DocumentKey normalizes a document number for matching: uppercase with all
// non-alphanumeric characters removed. "1.045-123" and "1045123" collide.
func DocumentKey(doc string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(doc) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NameKey normalizes a name for matching: accents stripped, uppercased and
// interior whitespace collapsed, so "José Pérez" matches "jose  perez".
func NameKey(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToUpper(folded)), " ")
}
