package formula

import "time"

// Category classifies a catalog ingredient.
type Category string

const (
	CategoryNatural    Category = "Natural"
	CategorySynthetic  Category = "Synthetic"
	CategorySolvent    Category = "Solvent"
	CategoryFunctional Category = "Functional"
)

// Unit is the measuring unit of a formula line.
type Unit string

const (
	UnitMilliliter Unit = "ml"
	UnitGram       Unit = "g"
)

// Attributes is the optional olfactive attribute bag of an ingredient.
type Attributes struct {
	Intensity    int    `json:"intensity,omitempty"`
	Family       string `json:"family,omitempty"`
	NotePosition string `json:"notePosition,omitempty"` // "top" | "heart" | "base"
	Volatility   string `json:"volatility,omitempty"`
	Solubility   string `json:"solubility,omitempty"`
}

// CompositionPart is one constituent of an ingredient's breakdown.
type CompositionPart struct {
	Component  string  `json:"component"`
	Percentage float64 `json:"percentage"`
}

// Compliance is the regulatory record attached to an ingredient.
type Compliance struct {
	Standard         string   `json:"standard,omitempty"`
	MaxConcentration float64  `json:"maxConcentration,omitempty"`
	Restricted       bool     `json:"restricted,omitempty"`
	Allergens        []string `json:"allergens,omitempty"`
}

// Ingredient is a static catalog entry. Instances are shared by reference
// between formula lines and must never be mutated after loading.
type Ingredient struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	CAS                  string            `json:"cas,omitempty"`
	Category             Category          `json:"category"`
	DefaultConcentration float64           `json:"defaultConcentration"`
	CostPerKg            float64           `json:"costPerKg"`
	Tags                 []string          `json:"tags,omitempty"`
	Attributes           *Attributes       `json:"attributes,omitempty"`
	Composition          []CompositionPart `json:"composition,omitempty"`
	Compliance           *Compliance       `json:"compliance,omitempty"`

	// Captive marks a proprietary material whose composition is withheld.
	Captive bool `json:"captive,omitempty"`
}

// FormulaMetadata describes a reference formula.
type FormulaMetadata struct {
	Base      string  `json:"base,omitempty"`
	PH        float64 `json:"pH,omitempty"`
	Cost      float64 `json:"cost,omitempty"`
	Density   float64 `json:"density,omitempty"`
	Stability string  `json:"stability,omitempty"`
}

// ReferenceEntry is one (ingredient name, concentration) pair of a reference formula.
type ReferenceEntry struct {
	IngredientName string  `json:"ingredientName"`
	Concentration  float64 `json:"concentration"`
}

// ReferenceFormula is a read-only comparison target from the formula library.
type ReferenceFormula struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Metadata    FormulaMetadata  `json:"metadata"`
	Ingredients []ReferenceEntry `json:"ingredients"`
}

// HistoryState is an undo checkpoint: a full copy of the active items and
// batch size taken before a mutation was applied.
type HistoryState struct {
	Items     Items     `json:"items"`
	BatchSize float64   `json:"batchSize"`
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label"`
}
