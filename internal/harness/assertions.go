package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/trutils/internal/templater"
	"github.com/roach88/trutils/internal/testcase"
)

// AssertionError is returned when an assertion fails. It includes the
// report outcomes to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Outcomes []templater.Outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Outcomes) > 0 {
		fmt.Fprintf(&buf, "\nOutcomes:\n")
		for i, o := range e.Outcomes {
			fmt.Fprintf(&buf, "  [%d] case %d (%s): %s %v\n", i+1, o.CaseID, o.TemplateID, o.Status, o.Fields)
		}
	}

	return buf.String()
}

// evaluate records every failed expectation and assertion on result.
func evaluate(s *Scenario, r *Result, runErr error) {
	var outcomes []templater.Outcome
	if r.Report != nil {
		outcomes = r.Report.Outcomes
	}
	fail := func(typ, expected, actual string) {
		r.AddError((&AssertionError{Type: typ, Expected: expected, Actual: actual, Outcomes: outcomes}).Error())
	}

	if s.Expect.Error != r.ErrorKind {
		actual := "run completed"
		if runErr != nil {
			actual = runErr.Error()
		}
		fail("error", describeKind(s.Expect.Error), actual)
	}

	checkIDs := func(name string, want, got []int64) {
		if want == nil {
			return
		}
		if !slices.Equal(want, got) {
			fail(name, fmt.Sprint(want), fmt.Sprint(got))
		}
	}
	checkIDs("updated", s.Expect.Updated, reportIDs(r.Report, func(rep *templater.Report) []int64 { return rep.UpdatedCaseIDs }))
	checkIDs("would_update", s.Expect.WouldUpdate, reportIDs(r.Report, func(rep *templater.Report) []int64 { return rep.WouldUpdateCaseIDs }))
	checkIDs("failed", s.Expect.Failed, statusIDs(outcomes, templater.StatusFailed))
	checkIDs("unchanged", s.Expect.Unchanged, statusIDs(outcomes, templater.StatusUnchanged))

	if s.Expect.TemplateIDs != nil {
		var got []string
		if r.Report != nil {
			got = r.Report.TemplateIDs
		}
		if !slices.Equal(s.Expect.TemplateIDs, got) {
			fail("template_ids", fmt.Sprint(s.Expect.TemplateIDs), fmt.Sprint(got))
		}
	}

	for _, a := range s.Assertions {
		if err := checkAssertion(a, r, outcomes); err != nil {
			r.AddError(err.Error())
		}
	}
}

func checkAssertion(a Assertion, r *Result, outcomes []templater.Outcome) error {
	switch a.Type {
	case AssertCaseStatus:
		o, ok := r.Outcome(a.CaseID)
		if !ok {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("case %d %s", a.CaseID, a.Status), Actual: "no outcome", Outcomes: outcomes}
		}
		if o.Status != a.Status {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("case %d %s", a.CaseID, a.Status), Actual: string(o.Status), Outcomes: outcomes}
		}

	case AssertFinalField:
		want, err := toValue(a.Value)
		if err != nil {
			return fmt.Errorf("final_field case %d %s: %w", a.CaseID, a.Field, err)
		}
		got, ok := finalField(r, a.CaseID, a.Field)
		if !ok {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("case %d exists", a.CaseID), Actual: "case not found", Outcomes: outcomes}
		}
		if !testcase.Equal(want, got) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("case %d %s = %s", a.CaseID, a.Field, render(want)),
				Actual:   render(got),
				Outcomes: outcomes,
			}
		}

	case AssertSkipped:
		if r.Report == nil {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("case %d skipped", a.CaseID), Actual: "no report"}
		}
		for _, sk := range r.Report.Skipped {
			if sk.CaseID == a.CaseID && (a.Kind == "" || sk.Kind == a.Kind) && (a.Field == "" || sk.Field == a.Field) {
				return nil
			}
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("case %d skipped (kind=%q field=%q)", a.CaseID, a.Kind, a.Field),
			Actual:   fmt.Sprintf("%+v", r.Report.Skipped),
			Outcomes: outcomes,
		}

	case AssertUpdateCount:
		if r.UpdateCalls != a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d update calls", a.Count), Actual: fmt.Sprintf("%d", r.UpdateCalls), Outcomes: outcomes}
		}

	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
	return nil
}

func reportIDs(rep *templater.Report, get func(*templater.Report) []int64) []int64 {
	if rep == nil {
		return []int64{}
	}
	return get(rep)
}

func statusIDs(outcomes []templater.Outcome, status templater.Status) []int64 {
	ids := []int64{}
	for _, o := range outcomes {
		if o.Status == status {
			ids = append(ids, o.CaseID)
		}
	}
	return ids
}

func describeKind(k templater.ErrorKind) string {
	if k == "" {
		return "run completed"
	}
	return string(k)
}

func render(v testcase.Value) string {
	data, err := testcase.EncodeValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
