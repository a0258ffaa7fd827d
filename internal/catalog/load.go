package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/accord/internal/formula"
)

//go:embed schema.cue
var schemaSrc []byte

//go:embed fixtures/default.cue
var defaultSrc []byte

// LoadMode controls how invalid entries are handled.
type LoadMode int

const (
	// LoadModeFailFast stops on the first invalid entry.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll skips invalid entries and reports all of them.
	LoadModeCollectAll
)

// Error codes for LoadError.
const (
	ErrCodeNotFound     = "C001" // Path not found
	ErrCodeNoFiles      = "C002" // No .cue files in directory
	ErrCodeLoadFailed   = "C003" // CUE load/parse failed
	ErrCodeBuildFailed  = "C004" // CUE build or schema unification failed
	ErrCodeInvalidEntry = "C005" // Entry violates the schema
	ErrCodeDecodeFailed = "C006" // Entry could not be decoded
)

// LoadError describes a fixture that could not be loaded.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	c, errs := Compile(defaultSrc, "default.cue", LoadModeFailFast)
	if len(errs) > 0 {
		return nil, fmt.Errorf("default catalog: %w", errs[0])
	}
	return c, nil
}

// Compile builds a catalog from a single CUE source.
func Compile(src []byte, filename string, mode LoadMode) (*Catalog, []error) {
	ctx := cuecontext.New()
	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}}
	}
	return build(ctx, data, mode)
}

// LoadDir builds a catalog from every .cue file of dir (one CUE package).
func LoadDir(dir string, mode LoadMode) (*Catalog, []error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog directory not found: %s", dir)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil || len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	ctx := cuecontext.New()
	data := ctx.BuildInstance(inst)
	if err := data.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}
	return build(ctx, data, mode)
}

// build unifies data with the schema and decodes each entry on its own, so
// one malformed entry does not discard the rest in LoadModeCollectAll.
func build(ctx *cue.Context, data cue.Value, mode LoadMode) (*Catalog, []error) {
	schema := ctx.CompileBytes(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("schema: %v", err)}}
	}
	value := schema.Unify(data)

	var errs []error
	var ingredients []formula.Ingredient
	var formulas []formula.ReferenceFormula

	err := eachEntry(value, "ingredient", func(v cue.Value) bool {
		var ing formula.Ingredient
		if err := decodeEntry(v, &ing); err != nil {
			errs = append(errs, err)
			return mode == LoadModeCollectAll
		}
		ingredients = append(ingredients, ing)
		return true
	})
	if err != nil {
		return nil, []error{err}
	}
	if len(errs) > 0 && mode == LoadModeFailFast {
		return nil, errs
	}

	err = eachEntry(value, "formula", func(v cue.Value) bool {
		var f formula.ReferenceFormula
		if err := decodeEntry(v, &f); err != nil {
			errs = append(errs, err)
			return mode == LoadModeCollectAll
		}
		formulas = append(formulas, f)
		return true
	})
	if err != nil {
		return nil, []error{err}
	}
	if len(errs) > 0 && mode == LoadModeFailFast {
		return nil, errs
	}

	return New(ingredients, formulas), errs
}

// eachEntry calls fn for every field of the struct at path, in declaration
// order, until fn returns false. A missing path yields no entries.
func eachEntry(root cue.Value, path string, fn func(cue.Value) bool) error {
	v := root.LookupPath(cue.ParsePath(path))
	if !v.Exists() {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		return &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("iterating %s: %v", path, err), Pos: v.Pos()}
	}
	for iter.Next() {
		if !fn(iter.Value()) {
			return nil
		}
	}
	return nil
}

func decodeEntry(v cue.Value, dst any) error {
	label := v.Path().String()
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &LoadError{Code: ErrCodeInvalidEntry, Message: fmt.Sprintf("%s: %v", label, err), Pos: v.Pos()}
	}
	if err := v.Decode(dst); err != nil {
		return &LoadError{Code: ErrCodeDecodeFailed, Message: fmt.Sprintf("%s: %v", label, err), Pos: v.Pos()}
	}
	return nil
}
