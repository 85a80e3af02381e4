// Package testutil provides deterministic stand-ins for tests: a clock and
// an in-memory test case repository.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/trutils/internal/testcase"
)

// UpdateCall records one UpdateCase call.
type UpdateCall struct {
	CaseID int64
	Case   testcase.Case
}

// Repository is an in-memory TestRail suite. It satisfies
// templater.Collaborator. Safe for concurrent use.
type Repository struct {
	mu sync.Mutex

	cases        []testcase.Case
	sections     []testcase.Section
	defaultSuite int64

	// Errors returned by the corresponding calls when set.
	CasesErr    error
	SectionsErr error
	SuiteErr    error

	failUpdates map[int64]error
	updates     []UpdateCall
	calls       map[string]int
}

// NewRepository creates a repository holding copies of cases and sections.
// Its default suite is 1.
func NewRepository(cases []testcase.Case, secs []testcase.Section) *Repository {
	r := &Repository{
		defaultSuite: 1,
		failUpdates:  make(map[int64]error),
		calls:        make(map[string]int),
	}
	for _, c := range cases {
		r.cases = append(r.cases, c.Clone())
	}
	r.sections = append(r.sections, secs...)
	return r
}

// SetDefaultSuite changes the suite returned by GetDefaultSuite.
func (r *Repository) SetDefaultSuite(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultSuite = id
}

// FailUpdate makes UpdateCase fail for caseID with err.
func (r *Repository) FailUpdate(caseID int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		err = fmt.Errorf("update rejected for case %d", caseID)
	}
	r.failUpdates[caseID] = err
}

// GetCases returns copies of every case.
func (r *Repository) GetCases(_ context.Context, _, _ int64) ([]testcase.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["get_cases"]++
	if r.CasesErr != nil {
		return nil, r.CasesErr
	}
	out := make([]testcase.Case, len(r.cases))
	for i, c := range r.cases {
		out[i] = c.Clone()
	}
	return out, nil
}

// GetSections returns every section.
func (r *Repository) GetSections(_ context.Context, _, _ int64) ([]testcase.Section, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["get_sections"]++
	if r.SectionsErr != nil {
		return nil, r.SectionsErr
	}
	return append([]testcase.Section(nil), r.sections...), nil
}

// GetDefaultSuite returns the configured default suite.
func (r *Repository) GetDefaultSuite(_ context.Context, _ int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["get_suites"]++
	if r.SuiteErr != nil {
		return 0, r.SuiteErr
	}
	return r.defaultSuite, nil
}

// UpdateCase stores c in place of the case with the same id.
func (r *Repository) UpdateCase(_ context.Context, caseID int64, c testcase.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["update_case"]++
	if err, ok := r.failUpdates[caseID]; ok {
		return err
	}
	for i := range r.cases {
		if r.cases[i].ID == caseID {
			r.cases[i] = c.Clone()
			r.updates = append(r.updates, UpdateCall{CaseID: caseID, Case: c.Clone()})
			return nil
		}
	}
	return fmt.Errorf("case %d not found", caseID)
}

// Case returns the stored copy of a case.
func (r *Repository) Case(id int64) (testcase.Case, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cases {
		if c.ID == id {
			return c.Clone(), true
		}
	}
	return testcase.Case{}, false
}

// Updates returns successful UpdateCase calls in order.
func (r *Repository) Updates() []UpdateCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]UpdateCall(nil), r.updates...)
}

// Calls returns how many times the named operation ran: get_cases,
// get_sections, get_suites or update_case.
func (r *Repository) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}
