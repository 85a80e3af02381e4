package harness

import (
	"github.com/roach88/trutils/internal/templater"
	"github.com/roach88/trutils/internal/testcase"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Report is the templater report. Nil when options were rejected.
	Report *templater.Report `json:"report,omitempty"`

	// ErrorKind is set when the run aborted.
	ErrorKind templater.ErrorKind `json:"error_kind,omitempty"`

	// Cases is the suite after the run, in id order.
	Cases []testcase.Case `json:"cases"`

	// UpdateCalls counts update_case calls, failed ones included.
	UpdateCalls int `json:"update_calls"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Cases:  []testcase.Case{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Case returns the final state of a case.
func (r *Result) Case(id int64) (testcase.Case, bool) {
	for _, c := range r.Cases {
		if c.ID == id {
			return c, true
		}
	}
	return testcase.Case{}, false
}

// Outcome returns the report outcome for a case.
func (r *Result) Outcome(caseID int64) (templater.Outcome, bool) {
	if r.Report == nil {
		return templater.Outcome{}, false
	}
	for _, o := range r.Report.Outcomes {
		if o.CaseID == caseID {
			return o, true
		}
	}
	return templater.Outcome{}, false
}
