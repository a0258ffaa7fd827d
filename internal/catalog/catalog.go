// Package catalog holds the static reference data of the workbench: the
// ingredient catalog and the reference-formula library.
//
// Both are loaded once at startup from CUE fixtures validated against the
// embedded schema (schema.cue). A default catalog is compiled into the
// binary; LoadDir replaces it with a directory of .cue files.
//
// A Catalog is immutable after construction and safe for concurrent reads.
package catalog

import (
	"strings"

	"github.com/roach88/accord/internal/formula"
)

// Catalog is the ingredient catalog plus the reference-formula library.
type Catalog struct {
	ingredients []*formula.Ingredient
	byID        map[string]*formula.Ingredient
	formulas    []formula.ReferenceFormula
	formulaIdx  map[string]int
}

// New builds a catalog from already-decoded entries. Order is preserved;
// it decides which entry wins a substring match.
// Later duplicates of an id are ignored.
func New(ingredients []formula.Ingredient, formulas []formula.ReferenceFormula) *Catalog {
	c := &Catalog{
		byID:       make(map[string]*formula.Ingredient, len(ingredients)),
		formulaIdx: make(map[string]int, len(formulas)),
	}
	for i := range ingredients {
		ing := ingredients[i]
		if _, dup := c.byID[ing.ID]; dup {
			continue
		}
		c.ingredients = append(c.ingredients, &ing)
		c.byID[ing.ID] = &ing
	}
	for _, f := range formulas {
		if _, dup := c.formulaIdx[f.ID]; dup {
			continue
		}
		c.formulaIdx[f.ID] = len(c.formulas)
		c.formulas = append(c.formulas, f)
	}
	return c
}

// Ingredients returns the catalog entries in load order.
func (c *Catalog) Ingredients() []*formula.Ingredient {
	out := make([]*formula.Ingredient, len(c.ingredients))
	copy(out, c.ingredients)
	return out
}

// Ingredient looks up a catalog entry by id.
func (c *Catalog) Ingredient(id string) (*formula.Ingredient, bool) {
	ing, ok := c.byID[id]
	return ing, ok
}

// Formulas returns the reference-formula library in load order.
func (c *Catalog) Formulas() []formula.ReferenceFormula {
	out := make([]formula.ReferenceFormula, len(c.formulas))
	copy(out, c.formulas)
	return out
}

// Formula looks up a reference formula by id.
func (c *Catalog) Formula(id string) (formula.ReferenceFormula, bool) {
	idx, ok := c.formulaIdx[id]
	if !ok {
		return formula.ReferenceFormula{}, false
	}
	return c.formulas[idx], true
}

// MatchKind reports which stage of the cascade resolved a name.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchExact
	MatchFolded
	MatchSubstring
)

// Match resolves a reference-formula ingredient name against the catalog.
//
// Cascade:
//  1. exact name
//  2. case-insensitive (formula.NameKey equality)
//  3. substring: either folded name contains the other
//
// Within a stage the first catalog entry in load order wins.
func (c *Catalog) Match(name string) (*formula.Ingredient, MatchKind) {
	for _, ing := range c.ingredients {
		if ing.Name == name {
			return ing, MatchExact
		}
	}

	key := formula.NameKey(name)
	if key == "" {
		return nil, MatchNone
	}
	for _, ing := range c.ingredients {
		if formula.NameKey(ing.Name) == key {
			return ing, MatchFolded
		}
	}
	for _, ing := range c.ingredients {
		candidate := formula.NameKey(ing.Name)
		if strings.Contains(candidate, key) || strings.Contains(key, candidate) {
			return ing, MatchSubstring
		}
	}
	return nil, MatchNone
}
