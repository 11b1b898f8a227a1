package harness

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/seeqbio/cabin/internal/build"
	"github.com/seeqbio/cabin/internal/catalog"
	"github.com/seeqbio/cabin/internal/dataset"
	"github.com/seeqbio/cabin/internal/ledger"
	"github.com/seeqbio/cabin/internal/prune"
	"github.com/seeqbio/cabin/internal/registry"
	"github.com/seeqbio/cabin/internal/testutil"
)

// Harness executes one scenario against a fixture.
type Harness struct {
	scenario *Scenario
	fixture  *testutil.Fixture
	versions map[string]string // bumped versions by type name
}

// Run executes a scenario in a fresh fixture torn down with t.
//
// Execution flow:
//  1. Create a fixture: temporary SQLite store, downloads, in-memory fetcher
//  2. Serve the scenario's sources
//  3. Execute the flow, checking each step's expectations
//  4. Evaluate assertions
//
// The returned error reports problems running the scenario itself, such as
// an uncompilable catalog. Failed expectations are recorded in the result.
func Run(t testing.TB, scenario *Scenario) (*Result, error) {
	t.Helper()

	fixture := testutil.NewFixture(t)
	for _, url := range slices.Sorted(maps.Keys(scenario.Sources)) {
		fixture.Fetcher.Set(url, []byte(scenario.Sources[url]), time.Time{})
	}

	h := &Harness{
		scenario: scenario,
		fixture:  fixture,
		versions: make(map[string]string),
	}
	ctx := t.Context()

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	reg, err := h.registry()
	if err != nil {
		return nil, err
	}
	actx := &AssertionContext{
		Ctx:      ctx,
		Env:      fixture.Env,
		Registry: reg,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError("%s", msg)
	}
	return result, nil
}

// registry compiles the catalog with the bumped versions applied. Types are
// compiled fresh each time so instances made before a bump keep their
// formulas.
func (h *Harness) registry() (*registry.Registry, error) {
	types, err := catalog.LoadDir(h.scenario.Catalog, nil)
	if err != nil {
		return nil, err
	}
	for _, t := range types {
		if v, ok := h.versions[t.Name]; ok {
			t.Version = v
		}
	}
	reg := registry.New()
	if err := reg.Register(types...); err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	if step.Action == ActionBump {
		return h.bump(index, step, result)
	}

	reg, err := h.registry()
	if err != nil {
		return err
	}

	var stepErr error
	switch step.Action {
	case ActionImport:
		stepErr = h.importTypes(ctx, reg, index, step, result)
	case ActionPrune:
		stepErr = h.prune(ctx, reg, index, step, result)
	case ActionDrop:
		stepErr = h.drop(ctx, reg, index, step, result)
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}

	want := ""
	if step.Expect != nil {
		want = step.Expect.Error
	}
	got := ""
	if stepErr != nil {
		got = string(dataset.CodeOf(stepErr))
		if got == "" {
			got = stepErr.Error()
		}
	}
	if got != want {
		result.AddError("flow[%d] %s: expected error %q, got %q (%v)", index, step.Action, want, got, stepErr)
	}
	return nil
}

func (h *Harness) bump(index int, step Step, result *Result) error {
	reg, err := h.registry()
	if err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(step.Versions)) {
		t, err := reg.Resolve(name)
		if err != nil {
			return err
		}
		h.versions[name] = step.Versions[name]
		result.addEvent(index, "bumped", name, t.Version+" -> "+step.Versions[name])
	}
	return nil
}

func (h *Harness) importTypes(ctx context.Context, reg *registry.Registry, index int, step Step, result *Result) error {
	types, err := reg.MatchAll(step.Targets, false)
	if err != nil {
		return err
	}
	insts := make([]*dataset.Instance, 0, len(types))
	for _, t := range types {
		inst, err := reg.Instance(t.Name)
		if err != nil {
			return err
		}
		insts = append(insts, inst)
	}

	builder := build.New(h.fixture.Env, build.WithDryRun(step.DryRun))
	report, buildErr := builder.BuildAll(ctx, insts)
	for _, s := range report.Steps {
		t, err := reg.Resolve(s.Type)
		if err != nil {
			return err
		}
		result.addEvent(index, string(s.Action), s.Type, t.Version)
	}

	if e := step.Expect; e != nil {
		h.check(result, index, "produced", e.Produced, report.Types(build.ActionProduced))
		h.check(result, index, "satisfied", e.Satisfied, report.Types(build.ActionSatisfied))
		h.check(result, index, "planned", e.Planned, report.Types(build.ActionPlanned))
	}
	return buildErr
}

func (h *Harness) prune(ctx context.Context, reg *registry.Registry, index int, step Step, result *Result) error {
	removed, err := prune.Prune(ctx, h.fixture.Ledger, reg, step.Targets, step.DryRun, h.fixture.Env.Log())
	var pruned []string
	for _, e := range removed {
		result.addEvent(index, "pruned", e.Record.Type, strings.Join(e.Reasons, "; "))
		pruned = append(pruned, e.Record.Type)
	}
	if step.Expect != nil {
		h.check(result, index, "pruned", step.Expect.Pruned, pruned)
	}
	return err
}

func (h *Harness) drop(ctx context.Context, reg *registry.Registry, index int, step Step, result *Result) error {
	types, err := reg.MatchAll(step.Targets, false)
	if err != nil {
		return err
	}
	var dropped []string
	for _, t := range types {
		inst, err := reg.Instance(t.Name)
		if err != nil {
			return err
		}
		rec, err := h.fixture.Ledger.GetBySignature(ctx, inst.Signature())
		if errors.Is(err, ledger.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := h.fixture.Ledger.DeleteByName(ctx, rec.Name); err != nil {
			return err
		}
		result.addEvent(index, "dropped", t.Name, t.Version)
		dropped = append(dropped, t.Name)
	}
	if step.Expect != nil {
		h.check(result, index, "dropped", step.Expect.Dropped, dropped)
	}
	return nil
}

// check compares an expected list of type names with what happened. Order
// is ignored; a nil expectation is not checked.
func (h *Harness) check(result *Result, index int, what string, want, got []string) {
	if want == nil {
		return
	}
	want = sortedCopy(want)
	got = sortedCopy(got)
	if !slices.Equal(want, got) {
		result.AddError("flow[%d]: expected %s %v, got %v", index, what, want, got)
	}
}

func sortedCopy(s []string) []string {
	out := append([]string{}, s...)
	slices.Sort(out)
	return out
}
