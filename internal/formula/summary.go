package formula

// ComplianceStatus is the coarse compliance verdict of a summary.
type ComplianceStatus string

const (
	CompliancePending ComplianceStatus = "pending"
	ComplianceWarning ComplianceStatus = "warning"
)

// Summary holds the derived totals of an active formula.
type Summary struct {
	TotalWeight        float64          `json:"totalWeight"`
	TotalCost          float64          `json:"totalCost"`
	IngredientCount    int              `json:"ingredientCount"`
	TotalConcentration float64          `json:"totalConcentration"`
	AverageCostPerKg   float64          `json:"averageCostPerKg"`
	Compliance         ComplianceStatus `json:"complianceStatus"`
}

// Summarize derives the summary of items.
//
// Only top-level plain ingredients count. Members of a FormulaGroup are
// excluded until the group is expanded and its members spliced into the
// plain run. AverageCostPerKg is weighted by quantity.
func Summarize(items Items) Summary {
	var s Summary
	for _, f := range items.Plain() {
		s.IngredientCount++
		s.TotalWeight += f.Quantity
		s.TotalConcentration += f.Concentration
		if f.Ingredient != nil {
			s.TotalCost += f.Quantity * f.Ingredient.CostPerKg
		}
	}
	if s.TotalWeight > 0 {
		s.AverageCostPerKg = s.TotalCost / s.TotalWeight
	}
	s.Compliance = CompliancePending
	if s.TotalConcentration > 100 {
		s.Compliance = ComplianceWarning
	}
	return s
}
