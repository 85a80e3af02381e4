package merge

import (
	"github.com/roach88/trutils/internal/testcase"
)

// Change records one field rewritten on a candidate.
type Change struct {
	Field  string
	Before testcase.Value
	After  testcase.Value
}

// CaseResult is the outcome of merging one candidate against its template.
type CaseResult struct {
	Changes []Change
	// Errors holds per-field problems. The fields they name were left as is.
	Errors []error
}

// Changed reports whether any field was rewritten.
func (r CaseResult) Changed() bool {
	return len(r.Changes) > 0
}

// ChangedFields returns the names of rewritten fields in merge order.
func (r CaseResult) ChangedFields() []string {
	out := make([]string, len(r.Changes))
	for i, c := range r.Changes {
		out[i] = c.Field
	}
	return out
}

// Case merges every named field from template into candidate, mutating
// candidate in place. A field missing from the template is reported and
// skipped; a field missing from the candidate is treated as null.
func (m *Merger) Case(template testcase.Case, candidate *testcase.Case, fields []string) CaseResult {
	var res CaseResult
	for _, name := range fields {
		tv, ok := template.Field(name)
		if !ok {
			res.Errors = append(res.Errors, &MissingFieldError{Field: name, CaseID: template.ID})
			continue
		}
		cv, _ := candidate.Field(name)

		merged, changed, err := m.Field(name, tv, cv)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		if !changed {
			continue
		}
		candidate.SetField(name, merged)
		res.Changes = append(res.Changes, Change{Field: name, Before: cv, After: merged})
	}
	return res
}
