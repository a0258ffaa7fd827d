package roworder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/roach88/accord/internal/canon"
)

// DomainRowOrder separates row-order fingerprints from any other hash.
// The version suffix allows the layout of Snapshot to change later.
const DomainRowOrder = "accord/roworder/v1"

// Snapshot converts rows to the float-free structure used for fingerprints
// and golden files. Only layout-relevant fields are kept: quantities change
// without moving a row.
func Snapshot(rows []Row) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		m := map[string]any{
			"type": string(r.Kind),
			"id":   r.ID(),
			"name": r.Name(),
		}
		if r.IsMissing() {
			m["missing"] = true
		}
		if r.Kind == KindFormulaGroup {
			m["expanded"] = r.Group.Expanded
			m["members"] = len(r.Group.Ingredients)
		}
		if r.Kind == KindExpandedIngredient {
			m["group"] = r.Group.ID
		}
		out[i] = m
	}
	return out
}

// Fingerprint returns a content hash of the row layout. Views compare
// fingerprints to decide whether a re-layout is needed.
// Format: hex(SHA256(domain + 0x00 + canonical JSON of Snapshot)).
func Fingerprint(rows []Row) (string, error) {
	data, err := canon.Marshal(Snapshot(rows))
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainRowOrder))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
