// Package storage holds the file-storage adapter consumed by the case core.
// The core only needs "write bytes at path" and "delete if exists"; rendering
// and retrieval surfaces live outside this repository.
package storage

import "fmt"

// Store is the storage contract the case core depends on.
type Store interface {
	Write(relPath string, data []byte) error
	DeleteIfExists(relPath string) error
}

// CasePath builds the canonical relative path for a case document:
// <year>/<dealer-code>/<sequence 4-digit>/<filename>.
func CasePath(year int, dealerCode string, number int, filename string) string {
	return fmt.Sprintf("%d/%s/%04d/%s", year, dealerCode, number, filename)
}
