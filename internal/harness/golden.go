package harness

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/accord/internal/canon"
	"github.com/roach88/accord/internal/formula"
	"github.com/roach88/accord/internal/roworder"
)

// Snapshot captures what a scenario execution produced.
// All fields use canonical JSON serialization for deterministic comparison.
type Snapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Rows         []roworder.Row
	Summary      formula.Summary
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON
// serialization. Summary figures are formatted as strings because canonical
// JSON has no floats.
func (s *Snapshot) toCanonicalMap() (map[string]any, error) {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"seq":     event.Seq,
			"op":      event.Op,
			"actions": append([]string{}, event.Actions...),
		}
		if len(event.Rejections) > 0 {
			eventMap["rejections"] = event.Rejections
		}
		traceList[i] = eventMap
	}

	fingerprint, err := roworder.Fingerprint(s.Rows)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
		"rows":          roworder.Snapshot(s.Rows),
		"fingerprint":   fingerprint,
		"summary": map[string]any{
			"total_weight":        formatFloat(s.Summary.TotalWeight),
			"total_cost":          formatFloat(s.Summary.TotalCost),
			"ingredient_count":    s.Summary.IngredientCount,
			"total_concentration": formatFloat(s.Summary.TotalConcentration),
			"average_cost_per_kg": formatFloat(s.Summary.AverageCostPerKg),
			"compliance":          string(s.Summary.Compliance),
		},
	}, nil
}

// MarshalSnapshot returns the canonical JSON of a scenario result.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	s := Snapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Rows:         result.Rows,
		Summary:      result.Summary,
	}
	m, err := s.toCanonicalMap()
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", scenarioName, err)
	}
	return canon.Marshal(m)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
