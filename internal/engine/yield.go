package engine

import (
	"fmt"
	"math"

	"github.com/roach88/accord/internal/formula"
)

// Rounding is the precision applied to yielded quantities.
type Rounding string

const (
	RoundingNone      Rounding = "none"
	RoundingTenth     Rounding = "0.1g"
	RoundingHundredth Rounding = "0.01g"
)

// YieldScope selects which lines take part in yielding.
type YieldScope string

const (
	// ScopeActive scales the plain lines only.
	ScopeActive YieldScope = "active"
	// ScopeAll scales group members as well.
	ScopeAll YieldScope = "all"
)

// PremixHandling decides what happens to group members outside the scope.
type PremixHandling string

const (
	// PremixPreserve keeps member concentrations and re-derives their
	// quantities against the new batch size.
	PremixPreserve PremixHandling = "preserve"
	// PremixScale scales members with the same factor as plain lines.
	PremixScale PremixHandling = "scale"
)

// YieldOptions parameterises ApplyYielding.
type YieldOptions struct {
	TargetYield    float64        `json:"targetYield" yaml:"target_yield"`
	LossFactor     float64        `json:"lossFactor" yaml:"loss_factor"` // percent
	Rounding       Rounding       `json:"rounding" yaml:"rounding"`
	Scope          YieldScope     `json:"scope" yaml:"scope"`
	PremixHandling PremixHandling `json:"premixHandling" yaml:"premix_handling"`
}

func (o YieldOptions) withDefaults() YieldOptions {
	if o.Rounding == "" {
		o.Rounding = RoundingNone
	}
	if o.Scope == "" {
		o.Scope = ScopeActive
	}
	if o.PremixHandling == "" {
		o.PremixHandling = PremixPreserve
	}
	return o
}

func (o YieldOptions) validate() error {
	if !(o.TargetYield > 0) || math.IsInf(o.TargetYield, 0) {
		return fmt.Errorf("target yield must be a finite value > 0, got %g", o.TargetYield)
	}
	if o.LossFactor < 0 || math.IsInf(o.LossFactor, 0) || math.IsNaN(o.LossFactor) {
		return fmt.Errorf("loss factor must be a finite value >= 0, got %g", o.LossFactor)
	}
	switch o.Rounding {
	case RoundingNone, RoundingTenth, RoundingHundredth:
	default:
		return fmt.Errorf("unknown rounding %q", o.Rounding)
	}
	switch o.Scope {
	case ScopeActive, ScopeAll:
	default:
		return fmt.Errorf("unknown scope %q", o.Scope)
	}
	switch o.PremixHandling {
	case PremixPreserve, PremixScale:
	default:
		return fmt.Errorf("unknown premix handling %q", o.PremixHandling)
	}
	return nil
}

func (r Rounding) apply(v float64) float64 {
	switch r {
	case RoundingTenth:
		return formula.Round(v, 1)
	case RoundingHundredth:
		return formula.Round(v, 2)
	}
	return v
}

// ApplyYielding rescales the formula to hit a target yield while
// compensating for process loss:
//
//	factor = target * (1 + loss/100) / current total quantity
//
// Every scaled quantity is multiplied by factor and rounded. Concentrations
// are left as they were, so the loss allowance shows up as extra weight
// rather than as a concentration above 100. The target becomes the new batch
// size. Rejected when the scaled lines total zero.
func (e *Engine) ApplyYielding(opts YieldOptions) {
	const op = "ApplyYielding"
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		e.reject(CodeInvalidArgument, op, err.Error(), "")
		return
	}

	scaleMembers := opts.Scope == ScopeAll || opts.PremixHandling == PremixScale

	total := 0.0
	for _, it := range e.items {
		switch v := it.(type) {
		case formula.FormulaIngredient:
			total += v.Quantity
		case formula.FormulaGroup:
			if scaleMembers {
				for _, m := range v.Ingredients {
					total += m.Quantity
				}
			}
		}
	}
	if !(total > 0) {
		e.reject(CodeDegenerateYield, op, "current total quantity is zero, nothing to scale", "")
		return
	}

	target := opts.TargetYield
	factor := target * (1 + opts.LossFactor/100) / total
	scale := func(f formula.FormulaIngredient) formula.FormulaIngredient {
		f.Quantity = opts.Rounding.apply(f.Quantity * factor)
		return f
	}

	next := e.items.Clone()
	for i, it := range next {
		switch v := it.(type) {
		case formula.FormulaIngredient:
			next[i] = scale(v)
		case formula.FormulaGroup:
			for j, m := range v.Ingredients {
				if scaleMembers {
					v.Ingredients[j] = scale(m)
				} else {
					v.Ingredients[j].Quantity = formula.QuantityFor(m.Concentration, target)
				}
			}
			v.RefreshMetadata()
			next[i] = v
		}
	}

	e.logger.Debug("yield computed", "target", target, "loss_factor", opts.LossFactor, "factor", factor, "total", total)
	e.commit(fmt.Sprintf("Apply yielding: %g", target), next, target)
}
