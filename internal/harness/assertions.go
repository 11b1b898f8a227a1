package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/seeqbio/cabin/internal/dataset"
	"github.com/seeqbio/cabin/internal/ledger"
	"github.com/seeqbio/cabin/internal/registry"
)

// AssertionContext is what assertions inspect.
type AssertionContext struct {
	Ctx      context.Context
	Env      *dataset.Env
	Registry *registry.Registry // compiled with every bump applied
}

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s", event.Seq, event)
		if event.Detail != "" {
			fmt.Fprintf(&buf, " (%s)", event.Detail)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertBuilt:
		return assertBuilt(result.Trace, a, actx, true)
	case AssertMissing:
		return assertBuilt(result.Trace, a, actx, false)
	case AssertLedgerCount:
		return assertLedgerCount(result.Trace, a, actx)
	case AssertRowCount:
		return assertRowCount(result.Trace, a, actx)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertBuilt checks whether the current instance of a type is in the
// ledger.
func assertBuilt(trace []TraceEvent, a Assertion, actx *AssertionContext, want bool) error {
	inst, err := actx.Registry.Instance(a.Dataset)
	if err != nil {
		return err
	}
	got, err := actx.Env.Ledger.ExistsBySignature(actx.Ctx, inst.Signature())
	if err != nil {
		return err
	}
	if got == want {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s in ledger: %t", inst.Name(), want),
		Actual:   fmt.Sprintf("in ledger: %t", got),
		Trace:    trace,
	}
}

// assertLedgerCount checks how many versions of a type the ledger holds.
func assertLedgerCount(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	recs, err := actx.Env.Ledger.ByType(actx.Ctx, a.Dataset)
	if err != nil {
		return err
	}
	if len(recs) == a.Count {
		return nil
	}
	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.Name
	}
	return &AssertionError{
		Type:     AssertLedgerCount,
		Expected: fmt.Sprintf("%d ledger rows of type %s", a.Count, a.Dataset),
		Actual:   fmt.Sprintf("%d: %v", len(recs), names),
		Trace:    trace,
	}
}

// assertRowCount checks the row count of the current table of a type.
func assertRowCount(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	inst, err := actx.Registry.Instance(a.Dataset)
	if err != nil {
		return err
	}
	rec, err := actx.Env.Ledger.GetBySignature(actx.Ctx, inst.Signature())
	if errors.Is(err, ledger.ErrNotFound) {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s", a.Count, inst.Name()),
			Actual:   "not built",
			Trace:    trace,
		}
	}
	if err != nil {
		return err
	}
	if rec.StorageKind != ledger.StorageTable {
		return fmt.Errorf("%s is stored as %s, not a table", rec.Name, rec.StorageKind)
	}
	stats, err := actx.Env.Store.TableStats(actx.Ctx, rec.StorageName)
	if err != nil {
		return err
	}
	if stats.Rows == int64(a.Count) {
		return nil
	}
	return &AssertionError{
		Type:     AssertRowCount,
		Expected: fmt.Sprintf("%d rows in %s", a.Count, rec.Name),
		Actual:   fmt.Sprintf("%d rows", stats.Rows),
		Trace:    trace,
	}
}

// assertTraceOrder checks that events appear in the given order.
// Events don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(a.Events) && event.String() == a.Events[next] {
			next++
		}
	}
	if next == len(a.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("events in order: %v", a.Events),
		Actual:   fmt.Sprintf("%q not found after %v", a.Events[next], a.Events[:next]),
		Trace:    trace,
	}
}
