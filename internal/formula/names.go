package formula

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NameKey returns the comparison key for an ingredient name: trimmed,
// NFC-normalized and case-folded. Two names with equal keys denote the same
// ingredient for presence checks.
func NameKey(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}
