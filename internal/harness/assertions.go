package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/kongstore/internal/purchasing"
)

// AssertionContext carries state that assertions beyond the trace need.
type AssertionContext struct {
	Store *purchasing.Store
}

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
		fmt.Fprintf(&buf, "  [%d] %s %s", event.Seq, event.Type, event.Name)
		if event.ProductID != "" {
			fmt.Fprintf(&buf, " product=%s", event.ProductID)
		}
		if len(event.Identifiers) > 0 {
			fmt.Fprintf(&buf, " %v", event.Identifiers)
		}
		if event.Reason != "" {
			fmt.Fprintf(&buf, " reason=%s", event.Reason)
		}
		if event.Error != "" {
			fmt.Fprintf(&buf, " error=%s", event.Error)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// assertOutcome checks that some outcome matches every field the
// assertion sets.
func assertOutcome(result *Result, assertion Assertion) error {
	outcomes := result.Outcomes()
	for _, o := range outcomes {
		if matchOutcome(o, assertion) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertOutcome,
		Expected: describeOutcome(assertion),
		Actual:   fmt.Sprintf("no match among %d outcome(s)", len(outcomes)),
		Trace:    result.Trace,
	}
}

func matchOutcome(o TraceEvent, a Assertion) bool {
	if o.Name != a.Status {
		return false
	}
	if a.Product != "" && o.ProductID != a.Product {
		return false
	}
	if a.TransactionID != "" && o.TransactionID != a.TransactionID {
		return false
	}
	if a.Reason != "" && o.Reason != a.Reason {
		return false
	}
	if a.Products != nil {
		ids := make([]string, len(o.Products))
		for i, p := range o.Products {
			ids[i] = p.ID
		}
		if !slices.Equal(ids, a.Products) {
			return false
		}
	}
	return true
}

func describeOutcome(a Assertion) string {
	parts := []string{a.Status}
	if a.Product != "" {
		parts = append(parts, "product="+a.Product)
	}
	if a.TransactionID != "" {
		parts = append(parts, "transaction_id="+a.TransactionID)
	}
	if a.Reason != "" {
		parts = append(parts, "reason="+a.Reason)
	}
	if a.Products != nil {
		parts = append(parts, fmt.Sprintf("products=%v", a.Products))
	}
	return strings.Join(parts, " ")
}

// assertOutcomeCount checks the number of outcomes, optionally of one status.
func assertOutcomeCount(result *Result, assertion Assertion) error {
	count := 0
	for _, o := range result.Outcomes() {
		if assertion.Status == "" || o.Name == assertion.Status {
			count++
		}
	}

	if count != assertion.Count {
		what := "outcomes"
		if assertion.Status != "" {
			what = assertion.Status + " outcomes"
		}
		return &AssertionError{
			Type:     AssertOutcomeCount,
			Expected: fmt.Sprintf("%d %s", assertion.Count, what),
			Actual:   fmt.Sprintf("%d %s", count, what),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertRequests checks the exact sequence of outbound requests.
func assertRequests(result *Result, assertion Assertion) error {
	got := result.Requests()
	if slices.Equal(got, assertion.Calls) || (len(got) == 0 && len(assertion.Calls) == 0) {
		return nil
	}

	return &AssertionError{
		Type:     AssertRequests,
		Expected: fmt.Sprintf("%v", assertion.Calls),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    result.Trace,
	}
}

// assertIdle checks that no operation is pending and nothing is cached.
func assertIdle(result *Result, store *purchasing.Store) error {
	pending := store.Pending()
	haveStore, haveUser := store.CachedBatches()
	if pending.IsNone() && !haveStore && !haveUser {
		return nil
	}

	return &AssertionError{
		Type:     AssertIdle,
		Expected: "no pending operation and no cached batches",
		Actual: fmt.Sprintf("pending=%s cached_store=%t cached_user=%t",
			pending, haveStore, haveUser),
		Trace: result.Trace,
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a list of failure messages (empty if all pass).
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOutcome:
			err = assertOutcome(result, assertion)
		case AssertOutcomeCount:
			err = assertOutcomeCount(result, assertion)
		case AssertRequests:
			err = assertRequests(result, assertion)
		case AssertIdle:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: idle requires a store", i)
			} else {
				err = assertIdle(result, actx.Store)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
