package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// SuiteResult is the outcome of one scenario file in a suite run.
type SuiteResult struct {
	Path   string
	Name   string
	Result *Result
	Err    error // Load or script error; Result is nil when set
}

// Passed reports whether the scenario loaded, ran and met every expectation.
func (r SuiteResult) Passed() bool {
	return r.Err == nil && r.Result != nil && r.Result.Pass
}

// Discover returns the scenario files under dir (*.yaml and *.yml,
// recursively), sorted by path.
func Discover(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scenario path: %w", err)
	}
	if !info.IsDir() {
		return []string{dir}, nil
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario in paths on up to workers
// goroutines; workers < 1 runs them one at a time. Results keep the order of
// paths. A scenario that fails to load or run is reported in its
// SuiteResult and the suite carries on; only ctx cancellation stops it.
func RunSuite(ctx context.Context, paths []string, workers int) ([]SuiteResult, error) {
	results := make([]SuiteResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = runFile(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run suite: %w", err)
	}
	return results, nil
}

// runFile loads and runs one scenario. Each run owns its engine, clock and
// id generator, so files can run concurrently.
func runFile(path string) SuiteResult {
	sr := SuiteResult{Path: path}
	scenario, err := LoadScenario(path)
	if err != nil {
		sr.Err = err
		return sr
	}
	sr.Name = scenario.Name
	sr.Result, sr.Err = Run(scenario)
	return sr
}
