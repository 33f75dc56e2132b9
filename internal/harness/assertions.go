package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/pourkiosk/internal/pour"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
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

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}
	return buf.String()
}

// evaluateAssertions checks every assertion and returns the failure
// messages.
func (h *Harness) evaluateAssertions(ctx context.Context, result *Result, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertFinalState:
			err = h.assertFinalState(a)
		case AssertOrderStatus:
			err = h.assertOrderStatus(ctx, a)
		case AssertPourOutcomes:
			err = h.assertPourOutcomes(ctx, a)
		case AssertStock:
			err = h.assertStock(ctx, a)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func (h *Harness) assertFinalState(a Assertion) error {
	reply, err := h.kiosk.Do(context.Background(), snapshotCommand)
	if err != nil {
		return err
	}
	if reply.State != a.State {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: string(a.State),
			Actual:   string(reply.State),
		}
	}
	return nil
}

func (h *Harness) assertOrderStatus(ctx context.Context, a Assertion) error {
	rec, err := h.store.ReadOrder(ctx, a.Order)
	if err != nil {
		return &AssertionError{
			Type:     AssertOrderStatus,
			Expected: fmt.Sprintf("order %s with status %s", a.Order, a.Status),
			Actual:   err.Error(),
		}
	}
	if string(rec.Status) != a.Status {
		return &AssertionError{
			Type:     AssertOrderStatus,
			Expected: fmt.Sprintf("order %s with status %s", a.Order, a.Status),
			Actual:   string(rec.Status),
		}
	}
	return nil
}

func (h *Harness) assertPourOutcomes(ctx context.Context, a Assertion) error {
	results, err := h.store.ReadPourResults(ctx, a.Order)
	if err != nil {
		return err
	}
	got := make([]pour.Outcome, len(results))
	for i, r := range results {
		got[i] = r.Outcome
	}
	if !slices.Equal(got, a.Outcomes) {
		return &AssertionError{
			Type:     AssertPourOutcomes,
			Expected: fmt.Sprintf("%v", a.Outcomes),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func (h *Harness) assertStock(ctx context.Context, a Assertion) error {
	b, err := h.catalog.Beverage(ctx, a.Beverage)
	if err != nil {
		return err
	}
	if b.StockMl != *a.StockMl {
		return &AssertionError{
			Type:     AssertStock,
			Expected: fmt.Sprintf("%s with %d ml left", a.Beverage, *a.StockMl),
			Actual:   fmt.Sprintf("%d ml", b.StockMl),
		}
	}
	return nil
}

// assertTraceContains checks that some trace line contains the text.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, e := range trace {
		if strings.Contains(e.String(), a.Text) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("a line containing %q", a.Text),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the texts first appear in the given order.
// They need not be consecutive.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	prev := -1
	for _, text := range a.Texts {
		pos := -1
		for i := prev + 1; i < len(trace); i++ {
			if strings.Contains(trace[i].String(), text) {
				pos = i
				break
			}
		}
		if pos < 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("lines in order: %q", a.Texts),
				Actual:   fmt.Sprintf("no line containing %q after line %d", text, prev+1),
				Trace:    trace,
			}
		}
		prev = pos
	}
	return nil
}

// assertTraceCount checks the number of trace lines of one kind.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, e := range trace {
		if e.Kind == a.Kind {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s lines", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    trace,
		}
	}
	return nil
}
