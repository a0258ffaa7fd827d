package engine

import (
	"errors"
	"fmt"
)

// RejectionCode categorizes ignored requests.
type RejectionCode string

const (
	// CodeDuplicateFormula indicates a formula already present as a group or
	// as a selected reference.
	CodeDuplicateFormula RejectionCode = "DUPLICATE_FORMULA"

	// CodeUnresolvedIngredient indicates a reference-formula ingredient name
	// that matched nothing in the catalog.
	CodeUnresolvedIngredient RejectionCode = "UNRESOLVED_INGREDIENT"

	// CodeMalformedItem indicates a line or formula missing required fields.
	CodeMalformedItem RejectionCode = "MALFORMED_ITEM"

	// CodeDegenerateYield indicates a yield request against a zero total.
	CodeDegenerateYield RejectionCode = "DEGENERATE_YIELD"

	// CodeNotFound indicates an unknown id or an empty undo history.
	CodeNotFound RejectionCode = "NOT_FOUND"

	// CodeInvalidArgument indicates an out-of-range argument.
	CodeInvalidArgument RejectionCode = "INVALID_ARGUMENT"
)

// Rejection describes a request the engine ignored. State is untouched
// whenever a Rejection is reported for the whole operation; an
// UNRESOLVED_INGREDIENT rejection may accompany an operation that still
// commits with the entries that did resolve.
type Rejection struct {
	Code    RejectionCode
	Op      string // Operation name, e.g. "AddFormulaGroup"
	Message string
	Subject string // Id or name the request referred to
}

// Error implements the error interface.
func (r Rejection) Error() string {
	if r.Subject != "" {
		return fmt.Sprintf("%s: %s: %s (%s)", r.Code, r.Op, r.Message, r.Subject)
	}
	return fmt.Sprintf("%s: %s: %s", r.Code, r.Op, r.Message)
}

// IsDuplicate reports whether err is a duplicate-formula rejection.
// Uses errors.As to handle wrapped errors.
func IsDuplicate(err error) bool {
	var r Rejection
	if errors.As(err, &r) {
		return r.Code == CodeDuplicateFormula
	}
	return false
}

// reject logs r and forwards it to the rejection hook. Malformed input is
// logged at ERROR, everything else at WARN.
func (e *Engine) reject(code RejectionCode, op, message, subject string) {
	r := Rejection{Code: code, Op: op, Message: message, Subject: subject}
	attrs := []any{"code", string(code), "op", op}
	if subject != "" {
		attrs = append(attrs, "subject", subject)
	}
	if code == CodeMalformedItem {
		e.logger.Error(message, attrs...)
	} else {
		e.logger.Warn(message, attrs...)
	}
	if e.onReject != nil {
		e.onReject(r)
	}
}
