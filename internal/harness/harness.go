package harness

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/accord/internal/catalog"
	"github.com/roach88/accord/internal/engine"
	"github.com/roach88/accord/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and id generator.
type Harness struct {
	engine *engine.Engine
	logger *slog.Logger

	// current collects what the running step did. The engine calls its
	// hooks synchronously, so there is never more than one open event.
	current *TraceEvent
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh engine. Deterministic helpers ensure
// reproducible results.
//
// Execution flow:
// 1. Load the scenario catalog (embedded default if none is named)
// 2. Execute steps, recording actions and rejections per step
// 3. Check step expectations
// 4. Evaluate assertions against the final state
//
// A script error (unknown op, bad arguments) aborts the run with an error;
// failed expectations and assertions are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	cat, err := loadCatalog(scenario.Catalog)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	opts := []engine.Option{
		engine.WithLogger(h.logger),
		engine.WithClock(testutil.NewStepClock()),
		engine.WithIDGenerator(testutil.NewSequentialIDs()),
		engine.WithActionHook(h.onAction),
		engine.WithRejectionHook(h.onRejection),
	}
	if scenario.BatchSize > 0 {
		opts = append(opts, engine.WithBatchSize(scenario.BatchSize))
	}
	h.engine = engine.New(cat, opts...)

	result := NewResult()
	if err := h.executeSteps(scenario.Steps, result); err != nil {
		return nil, err
	}

	result.Rows = h.engine.Rows()
	result.Summary = h.engine.Summary()

	actx := &AssertionContext{Engine: h.engine}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// executeSteps applies every step and validates expect clauses.
func (h *Harness) executeSteps(steps []Step, result *Result) error {
	for i, step := range steps {
		ev := TraceEvent{Seq: i + 1, Op: step.Op, Actions: []string{}}
		h.current = &ev
		err := ApplyStep(h.engine, step)
		h.current = nil
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		result.Trace = append(result.Trace, ev)

		if step.Expect != nil {
			for _, msg := range checkExpect(ev, *step.Expect) {
				result.AddError(fmt.Sprintf("step %d (%s): %s", ev.Seq, ev.Op, msg))
			}
		}

		h.logger.Info("step completed",
			"step", ev.Seq,
			"op", step.Op,
			"actions", len(ev.Actions),
			"rejections", len(ev.Rejections),
		)
	}
	return nil
}

func (h *Harness) onAction(a engine.Action) {
	if h.current != nil {
		h.current.Actions = append(h.current.Actions, a.Label)
	}
}

func (h *Harness) onRejection(r engine.Rejection) {
	if h.current != nil {
		h.current.Rejections = append(h.current.Rejections, string(r.Code))
	}
}

// checkExpect compares one trace event against its expect clause.
func checkExpect(ev TraceEvent, want StepExpect) []string {
	var msgs []string
	if !stringsEqual(ev.Rejections, want.Rejected) {
		msgs = append(msgs, fmt.Sprintf("expected rejections %v, got %v", want.Rejected, ev.Rejections))
	}
	if want.Action != "" {
		got := ""
		if n := len(ev.Actions); n > 0 {
			got = ev.Actions[n-1]
		}
		if got != want.Action {
			msgs = append(msgs, fmt.Sprintf("expected action %q, got %q", want.Action, got))
		}
	}
	return msgs
}

// loadCatalog loads the CUE fixtures in dir, or the embedded catalog when
// dir is empty.
func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir == "" {
		cat, err := catalog.Default()
		if err != nil {
			return nil, fmt.Errorf("load default catalog: %w", err)
		}
		return cat, nil
	}
	cat, errs := catalog.LoadDir(dir, catalog.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, fmt.Errorf("load catalog %s: %w", dir, errs[0])
	}
	return cat, nil
}

// stringsEqual treats nil and empty as equal.
func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
