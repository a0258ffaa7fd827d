package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/accord/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Golden   string // golden snapshot directory; empty disables comparison
	Update   bool   // regenerate golden files
	Filter   string // scenario filter (glob pattern)
	Parallel int    // scenarios run concurrently
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario conformance tests",
		Long: `Run YAML scenarios against a fresh engine and check their assertions.

Each scenario runs with a deterministic clock and id generator, so its
snapshot (trace, rows, fingerprint and summary) is stable and can be
compared with a golden file named after the scenario.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  accord test ./scenarios
  accord test ./scenarios --filter "yield_*"
  accord test ./scenarios --golden ./golden --update
  accord test ./scenarios --parallel 1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Golden, "golden", "", "directory of golden snapshots to compare against")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files (requires --golden)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the file name")
	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", runtime.GOMAXPROCS(0), "number of scenarios run concurrently")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	if opts.Update && opts.Golden == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}
	if _, err := os.Stat(scenariosDir); errors.Is(err, os.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	paths, err := harness.Discover(scenariosDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	paths, err = filterScenarios(paths, opts.Filter)
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}

	if len(paths) == 0 {
		if f.IsJSON() {
			return outputTestJSON(f, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(f.Writer, "No scenarios found.")
		return nil
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(paths)),
		Total:     len(paths),
	}
	suite, err := harness.RunSuite(cmd.Context(), paths, opts.Parallel)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario run interrupted", err)
	}
	for _, sr := range suite {
		scen := checkScenario(opts, sr)
		if !f.IsJSON() {
			printScenario(f, scen)
		}
		result.Scenarios = append(result.Scenarios, scen)
		if scen.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if f.IsJSON() {
		return outputTestJSON(f, result)
	}
	return outputTestText(f, result)
}

// filterScenarios keeps the paths whose base name (without extension)
// matches the glob pattern.
func filterScenarios(paths []string, pattern string) ([]string, error) {
	if pattern == "" {
		return paths, nil
	}
	var out []string
	for _, p := range paths {
		base := filepath.Base(p)
		matched, err := filepath.Match(pattern, strings.TrimSuffix(base, filepath.Ext(base)))
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			out = append(out, p)
		}
	}
	return out, nil
}

// checkScenario turns a suite result into a scenario result, comparing or
// regenerating its golden snapshot when a golden directory is configured.
func checkScenario(opts *TestOptions, sr harness.SuiteResult) ScenarioResult {
	scen := ScenarioResult{Name: sr.Name, Path: sr.Path}
	if scen.Name == "" {
		scen.Name = filepath.Base(sr.Path)
	}
	if sr.Err != nil {
		scen.Errors = []string{sr.Err.Error()}
		return scen
	}

	scen.Errors = append(scen.Errors, sr.Result.Errors...)
	if opts.Golden != "" {
		if err := checkGolden(opts, sr); err != nil {
			scen.Errors = append(scen.Errors, err.Error())
		}
	}
	scen.Pass = len(scen.Errors) == 0 && sr.Result.Pass
	return scen
}

// checkGolden compares the scenario snapshot with {golden}/{name}.golden.
// A missing golden file is not an error unless updating.
func checkGolden(opts *TestOptions, sr harness.SuiteResult) error {
	data, err := harness.MarshalSnapshot(sr.Name, sr.Result)
	if err != nil {
		return err
	}
	path := filepath.Join(opts.Golden, sr.Name+".golden")

	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0755); err != nil {
			return fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write golden file: %w", err)
		}
		return nil
	}

	want, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read golden file: %w", err)
	}
	if !bytes.Equal(want, data) {
		return errors.New("snapshot does not match golden file (run with --update to regenerate)")
	}
	return nil
}

func printScenario(f *OutputFormatter, scen ScenarioResult) {
	if scen.Pass {
		fmt.Fprintf(f.Writer, "✓ %s\n", scen.Name)
		return
	}
	fmt.Fprintf(f.Writer, "✗ %s\n", scen.Name)
	for _, e := range scen.Errors {
		for _, line := range strings.Split(strings.TrimRight(e, "\n"), "\n") {
			fmt.Fprintf(f.Writer, "  %s\n", line)
		}
	}
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(f *OutputFormatter, result TestResult) error {
	if result.Failed > 0 {
		msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
		return f.Fail(ExitFailure, ErrCodeTestFailed, msg, result)
	}
	return f.Success(result)
}

// outputTestText outputs the test summary as text.
func outputTestText(f *OutputFormatter, result TestResult) error {
	w := f.Writer

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
