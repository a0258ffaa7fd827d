// Package export hands the active formula to a case-management backend.
//
// A CasePayload is built from the engine's read accessors, validated with
// go-playground/validator, and then either written to a local file or
// POSTed to a configured endpoint. Submission never returns an error: a
// network failure or a rejected payload is reported as a failed
// SubmissionResult.
package export

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/roach88/accord/internal/formula"
)

// CaseType is the case type every payload is filed under.
const CaseType = "FormulaReview"

// payloadValidate is the validator instance for export payloads.
// Initialized in init() with the struct-level formula check.
var payloadValidate *validator.Validate

func init() {
	payloadValidate = validator.New(validator.WithRequiredStructEnabled())
	payloadValidate.RegisterStructValidation(validateFormulaPayload, FormulaPayload{})
}

// validateFormulaPayload rejects a formula with neither plain lines nor
// groups.
func validateFormulaPayload(sl validator.StructLevel) {
	fp := sl.Current().Interface().(FormulaPayload)
	if len(fp.Ingredients) == 0 && len(fp.Groups) == 0 {
		sl.ReportError(fp.Ingredients, "Ingredients", "ingredients", "nonempty", "")
	}
}

// Source is the read-only view of a formula that Build consumes.
// *engine.Engine satisfies it.
type Source interface {
	Items() formula.Items
	BatchSize() float64
	Unit() formula.Unit
	Summary() formula.Summary
}

// CasePayload is the fixed JSON shape sent to the backend.
type CasePayload struct {
	CaseID    string         `json:"caseId" validate:"required,uuid"`
	RequestID string         `json:"requestId" validate:"required,uuid"`
	CaseType  string         `json:"caseType" validate:"required"`
	Name      string         `json:"name" validate:"required,max=200"`
	CreatedAt time.Time      `json:"createdAt" validate:"required"`
	Formula   FormulaPayload `json:"formula"`
	Summary   SummaryPayload `json:"summary"`
}

// FormulaPayload carries the active formula lines.
type FormulaPayload struct {
	BatchSize   float64        `json:"batchSize" validate:"gt=0"`
	Unit        string         `json:"unit" validate:"oneof=ml g"`
	Ingredients []LinePayload  `json:"ingredients" validate:"dive"`
	Groups      []GroupPayload `json:"groups" validate:"dive"`
}

// LinePayload is one formula line.
type LinePayload struct {
	ID            string  `json:"id" validate:"required"`
	IngredientID  string  `json:"ingredientId" validate:"required"`
	Name          string  `json:"name" validate:"required"`
	CAS           string  `json:"cas,omitempty"`
	Concentration float64 `json:"concentration" validate:"gte=0"`
	Quantity      float64 `json:"quantity" validate:"gte=0"`
	Unit          string  `json:"unit" validate:"oneof=ml g"`
	Note          string  `json:"note,omitempty" validate:"max=500"`
}

// GroupPayload is one imported formula group.
type GroupPayload struct {
	ID              string        `json:"id" validate:"required"`
	Name            string        `json:"name" validate:"required"`
	SourceFormulaID string        `json:"sourceFormulaId" validate:"required"`
	Ingredients     []LinePayload `json:"ingredients" validate:"required,min=1,dive"`
}

// SummaryPayload mirrors formula.Summary.
type SummaryPayload struct {
	TotalWeight        float64 `json:"totalWeight" validate:"gte=0"`
	TotalCost          float64 `json:"totalCost" validate:"gte=0"`
	IngredientCount    int     `json:"ingredientCount" validate:"gte=0"`
	TotalConcentration float64 `json:"totalConcentration" validate:"gte=0"`
	AverageCostPerKg   float64 `json:"averageCostPerKg" validate:"gte=0"`
	Compliance         string  `json:"compliance" validate:"oneof=pending warning"`
}

// Build assembles a payload for src. Case and request ids are fresh
// UUIDv4s.
func Build(src Source, name string, at time.Time) CasePayload {
	items := src.Items()
	s := src.Summary()

	p := CasePayload{
		CaseID:    uuid.NewString(),
		RequestID: uuid.NewString(),
		CaseType:  CaseType,
		Name:      name,
		CreatedAt: at.UTC(),
		Formula: FormulaPayload{
			BatchSize:   src.BatchSize(),
			Unit:        string(src.Unit()),
			Ingredients: []LinePayload{},
			Groups:      []GroupPayload{},
		},
		Summary: SummaryPayload{
			TotalWeight:        s.TotalWeight,
			TotalCost:          s.TotalCost,
			IngredientCount:    s.IngredientCount,
			TotalConcentration: s.TotalConcentration,
			AverageCostPerKg:   s.AverageCostPerKg,
			Compliance:         string(s.Compliance),
		},
	}

	for _, f := range items.Plain() {
		p.Formula.Ingredients = append(p.Formula.Ingredients, linePayload(f))
	}
	for _, g := range items.Groups() {
		gp := GroupPayload{
			ID:              g.ID,
			Name:            g.Name,
			SourceFormulaID: g.SourceFormulaID,
			Ingredients:     make([]LinePayload, 0, len(g.Ingredients)),
		}
		for _, m := range g.Ingredients {
			gp.Ingredients = append(gp.Ingredients, linePayload(m))
		}
		p.Formula.Groups = append(p.Formula.Groups, gp)
	}
	return p
}

func linePayload(f formula.FormulaIngredient) LinePayload {
	lp := LinePayload{
		ID:            f.ID,
		Name:          f.Name(),
		Concentration: f.Concentration,
		Quantity:      f.Quantity,
		Unit:          string(f.Unit),
		Note:          f.Note,
	}
	if f.Ingredient != nil {
		lp.IngredientID = f.Ingredient.ID
		lp.CAS = f.Ingredient.CAS
	}
	return lp
}

// Validate checks p against its validate tags.
func (p *CasePayload) Validate() error {
	return payloadValidate.Struct(p)
}

// ValidationMessages flattens a Validate error into one message per
// failed field, e.g. "Formula.Ingredients: failed on 'nonempty'".
// Returns nil for a nil error.
func ValidationMessages(err error) []string {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s: failed on '%s'", trimNamespace(fe.Namespace()), fe.Tag()))
	}
	return out
}

// trimNamespace drops the leading struct name from a validator namespace.
func trimNamespace(ns string) string {
	for i := 0; i < len(ns); i++ {
		if ns[i] == '.' {
			return ns[i+1:]
		}
	}
	return ns
}
