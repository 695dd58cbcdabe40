package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the full trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
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
			fmt.Fprintf(&buf, "  %s\n", event.Line)
		}
	}
	return buf.String()
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertFinalRecord:
		return assertFinalRecord(result, a)
	case AssertAttempts:
		return assertList(result, "attempts", a.Statuses)
	case AssertPending:
		return assertList(result, "pending", a.Missions)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func matches(event TraceEvent, kind, contains string) bool {
	if kind != "" && event.Kind != kind {
		return false
	}
	return strings.Contains(event.Line, contains)
}

// assertTraceContains checks that some event matches kind and substring.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if matches(event, a.Kind, a.Contains) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event kind=%q containing %q", a.Kind, a.Contains),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the substrings match events in order.
// Matches need not be consecutive.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	pos := 0
	for _, want := range a.Events {
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if matches(event, a.Kind, want) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %q", a.Events),
				Actual:   fmt.Sprintf("no match for %q after earlier events", want),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the number of events matching kind and substring.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if matches(event, a.Kind, a.Contains) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d events kind=%q containing %q", a.Count, a.Kind, a.Contains),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalRecord compares the listed record fields. Values are compared
// by their printed form so YAML numbers and lists match Go values.
func assertFinalRecord(result *Result, a Assertion) error {
	rec, _ := result.State["record"].(map[string]any)
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var mismatches []string
	for _, k := range keys {
		actual, ok := rec[k]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s missing", k))
			continue
		}
		if fmt.Sprint(actual) != fmt.Sprint(a.Expect[k]) {
			mismatches = append(mismatches, fmt.Sprintf("%s=%v want %v", k, actual, a.Expect[k]))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertFinalRecord,
			Expected: fmt.Sprintf("%v", a.Expect),
			Actual:   strings.Join(mismatches, "; "),
		}
	}
	return nil
}

func assertList(result *Result, key string, want []string) error {
	got, _ := result.State[key].([]string)
	if want == nil {
		want = []string{}
	}
	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     key,
		Expected: fmt.Sprintf("%q", want),
		Actual:   fmt.Sprintf("%q", got),
	}
}
