package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a formula-engine test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is an optional directory of CUE fixtures. Relative paths are
	// resolved against the scenario file. Empty means the embedded catalog.
	Catalog string `yaml:"catalog,omitempty"`

	// BatchSize is the initial batch size. Zero means the engine default.
	BatchSize float64 `yaml:"batch_size,omitempty"`

	// Steps are applied to the engine in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one engine operation.
type Step struct {
	// Op is the operation name, e.g. "add_formula_group".
	Op string `yaml:"op"`

	// Args are the operation arguments. See ApplyStep for each op's keys.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Expect optionally checks what the step did.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect checks the outcome of one step.
type StepExpect struct {
	// Rejected lists the rejection codes the step must produce, in order.
	// An empty list asserts the step produced none.
	Rejected []string `yaml:"rejected"`

	// Action is the label the step's last applied change must carry.
	Action string `yaml:"action,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type selects the check; see the Assert* constants.
	Type string `yaml:"type"`

	// Count is the expected count (item_count, group_count, undo_depth).
	Count int `yaml:"count,omitempty"`

	// Names is the expected ordered list (plain_names, group_names, row_names).
	Names []string `yaml:"names,omitempty"`

	// IDs is the expected ordered list of reference formula ids (selected).
	IDs []string `yaml:"ids,omitempty"`

	// Kinds is the expected ordered list of row kinds (row_kinds).
	Kinds []string `yaml:"kinds,omitempty"`

	// Codes is the expected ordered list of rejection codes (rejections).
	Codes []string `yaml:"codes,omitempty"`

	// Field names the summary figure (summary).
	Field string `yaml:"field,omitempty"`

	// Ingredient is the catalog id of the line to inspect (quantity,
	// concentration).
	Ingredient string `yaml:"ingredient,omitempty"`

	// Value is the expected number (batch_size, summary, quantity, concentration).
	Value float64 `yaml:"value,omitempty"`

	// Tolerance overrides DefaultTolerance for numeric checks.
	Tolerance float64 `yaml:"tolerance,omitempty"`

	// Status is the expected compliance status (compliance).
	Status string `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertItemCount            = "item_count"
	AssertGroupCount           = "group_count"
	AssertUndoDepth            = "undo_depth"
	AssertPlainNames           = "plain_names"
	AssertGroupNames           = "group_names"
	AssertSelected             = "selected"
	AssertBatchSize            = "batch_size"
	AssertSummary              = "summary"
	AssertQuantity             = "quantity"
	AssertConcentration        = "concentration"
	AssertCompliance           = "compliance"
	AssertRowKinds             = "row_kinds"
	AssertRowNames             = "row_names"
	AssertRejections           = "rejections"
	AssertOrdered              = "ordered"
	AssertQuantitiesConsistent = "quantities_consistent"
)

// Script is a list of steps applied to a stored session by `accord apply`.
type Script struct {
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative Catalog is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	if err := decodeStrict(data, &scenario); err != nil {
		return nil, err
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScript reads and parses an operation script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}

	var script Script
	if err := decodeStrict(data, &script); err != nil {
		return nil, err
	}
	if len(script.Steps) == 0 {
		return nil, fmt.Errorf("invalid script: steps list is required and must be non-empty")
	}
	if err := validateSteps(script.Steps); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	return &script, nil
}

// decodeStrict parses YAML rejecting unknown fields (catches typos like
// "assertion:" vs "assertions:").
func decodeStrict(data []byte, dst any) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.BatchSize < 0 {
		return fmt.Errorf("batch_size must be > 0")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Catalog != "" {
		if _, err := os.Stat(s.Catalog); os.IsNotExist(err) {
			return fmt.Errorf("catalog directory not found: %s", s.Catalog)
		}
	}

	if err := validateSteps(s.Steps); err != nil {
		return err
	}

	for i, a := range s.Assertions {
		if a.Type == "" {
			return fmt.Errorf("assertions[%d]: type is required", i)
		}
		if _, ok := assertionFuncs[a.Type]; !ok {
			return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
	}
	return nil
}

func validateSteps(steps []Step) error {
	for i, step := range steps {
		if step.Op == "" {
			return fmt.Errorf("steps[%d]: op is required", i)
		}
		if _, ok := ops[step.Op]; !ok {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
	}
	return nil
}
