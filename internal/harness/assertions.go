package harness

import (
	"fmt"
	"reflect"
	"strings"
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

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %v\n", event.Seq, event.Label, event.Op, event.Result)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages, empty if all hold.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertDelivered:
		return assertDelivered(result, a)
	case AssertNotDelivered:
		return assertNotDelivered(result, a)
	case AssertTraceOrder:
		return assertTraceOrder(result, a)
	case AssertTraceCount:
		return assertTraceCount(result, a)
	case AssertResult:
		return assertResult(result, a)
	case AssertCookieCount:
		return assertCookieCount(result, a)
	case AssertPending:
		return assertNumber(result, a, "pending requests", result.Pending)
	case AssertStoreCalls:
		return assertNumber(result, a, "store calls", int(result.StoreCalls))
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertDelivered(result *Result, a Assertion) error {
	if _, ok := result.Event(a.Label); ok {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("callback for %s delivered", a.Label),
		Actual:   "not in trace",
		Trace:    result.Trace,
	}
}

func assertNotDelivered(result *Result, a Assertion) error {
	e, ok := result.Event(a.Label)
	if !ok {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("callback for %s never delivered", a.Label),
		Actual:   fmt.Sprintf("delivered at seq %d", e.Seq),
		Trace:    result.Trace,
	}
}

// assertTraceOrder checks that labels were delivered in the given order.
// Other deliveries may come in between.
func assertTraceOrder(result *Result, a Assertion) error {
	last := int64(0)
	for _, label := range a.Labels {
		e, ok := result.Event(label)
		if !ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("order %v", a.Labels),
				Actual:   fmt.Sprintf("%s not delivered", label),
				Trace:    result.Trace,
			}
		}
		if e.Seq < last {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("order %v", a.Labels),
				Actual:   fmt.Sprintf("%s delivered out of order at seq %d", label, e.Seq),
				Trace:    result.Trace,
			}
		}
		last = e.Seq
	}
	return nil
}

func assertTraceCount(result *Result, a Assertion) error {
	count := 0
	for _, e := range result.Trace {
		if e.Op == a.Op {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d %s deliveries", a.Count, a.Op),
		Actual:   fmt.Sprintf("%d", count),
		Trace:    result.Trace,
	}
}

// assertResult compares the fields named in Expect; other result fields
// are ignored.
func assertResult(result *Result, a Assertion) error {
	e, ok := result.Event(a.Label)
	if !ok {
		return assertDelivered(result, a)
	}
	for key, want := range a.Expect {
		got, ok := e.Result[key]
		if !ok || !valuesEqual(got, want) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s.%s = %v", a.Label, key, want),
				Actual:   fmt.Sprintf("%v", got),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

func assertCookieCount(result *Result, a Assertion) error {
	e, ok := result.Event(a.Label)
	if !ok {
		return assertDelivered(result, a)
	}
	cookies, ok := e.Result["cookies"].([]any)
	if !ok {
		return fmt.Errorf("%s: result of %s has no cookies", a.Type, e.Op)
	}
	if len(cookies) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d cookies in %s", a.Count, a.Label),
		Actual:   fmt.Sprintf("%d", len(cookies)),
		Trace:    result.Trace,
	}
}

func assertNumber(result *Result, a Assertion, what string, got int) error {
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d %s", a.Count, what),
		Actual:   fmt.Sprintf("%d", got),
		Trace:    result.Trace,
	}
}

// valuesEqual compares a trace value with a YAML-decoded one. YAML yields
// int for integers where the trace may hold int or int64.
func valuesEqual(got, want any) bool {
	switch w := want.(type) {
	case int:
		switch g := got.(type) {
		case int:
			return g == w
		case int64:
			return g == int64(w)
		}
		return false
	}
	return reflect.DeepEqual(got, want)
}
