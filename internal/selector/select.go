// Package selector splits a suite's cases into template cases and the
// candidate cases derived from them.
package selector

import (
	"fmt"
	"strings"

	"github.com/roach88/trutils/internal/sections"
	"github.com/roach88/trutils/internal/testcase"
)

// DuplicateTemplateIDError reports two template cases in scope carrying the
// same template id. Propagating from either would be arbitrary, so the
// selection is rejected.
type DuplicateTemplateIDError struct {
	TemplateID string
	CaseIDs    []int64
}

func (e *DuplicateTemplateIDError) Error() string {
	ids := make([]string, len(e.CaseIDs))
	for i, id := range e.CaseIDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("template id %q is carried by more than one template case (cases %s)", e.TemplateID, strings.Join(ids, ","))
}

// Templates holds the selected template cases keyed by template id.
type Templates struct {
	// ByID maps template id to its template case.
	ByID map[string]testcase.Case

	// Order lists template ids in selection order.
	Order []string

	// Unkeyed lists in-scope case ids whose template id field is empty.
	// They cannot act as templates.
	Unkeyed []int64

	// Missing lists requested case ids that were not found in the suite.
	Missing []int64
}

// CaseIDs returns the case ids of every selected template.
func (t *Templates) CaseIDs() map[int64]struct{} {
	out := make(map[int64]struct{}, len(t.ByID))
	for _, c := range t.ByID {
		out[c.ID] = struct{}{}
	}
	return out
}

// Len returns the number of templates.
func (t *Templates) Len() int {
	return len(t.Order)
}

func newTemplates() *Templates {
	return &Templates{ByID: make(map[string]testcase.Case)}
}

func (t *Templates) add(c testcase.Case, field string) error {
	tid := c.TemplateID(field)
	if tid == "" {
		t.Unkeyed = append(t.Unkeyed, c.ID)
		return nil
	}
	if prev, dup := t.ByID[tid]; dup {
		return &DuplicateTemplateIDError{TemplateID: tid, CaseIDs: []int64{prev.ID, c.ID}}
	}
	t.ByID[tid] = c
	t.Order = append(t.Order, tid)
	return nil
}

// TemplatesBySection selects every case whose section is in sectionIDs.
func TemplatesBySection(cases []testcase.Case, sectionIDs sections.IDSet, field string) (*Templates, error) {
	out := newTemplates()
	for _, c := range cases {
		if !sectionIDs.Has(c.SectionID) {
			continue
		}
		if err := out.add(c, field); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TemplatesByIDs selects exactly the cases listed in caseIDs.
func TemplatesByIDs(caseIDs []int64, cases []testcase.Case, field string) (*Templates, error) {
	want := make(map[int64]bool, len(caseIDs))
	for _, id := range caseIDs {
		want[id] = false
	}

	out := newTemplates()
	for _, c := range cases {
		found, ok := want[c.ID]
		if !ok || found {
			continue
		}
		want[c.ID] = true
		if err := out.add(c, field); err != nil {
			return nil, err
		}
	}

	for _, id := range caseIDs {
		if !want[id] {
			out.Missing = append(out.Missing, id)
			want[id] = true
		}
	}
	return out, nil
}

// Candidates maps template id to the cases that should follow it.
type Candidates map[string][]testcase.Case

// Total returns the number of candidate cases across all template ids.
func (c Candidates) Total() int {
	n := 0
	for _, list := range c {
		n += len(list)
	}
	return n
}

// SelectCandidates returns, for every id in templateIDs, the cases carrying
// that id that are not themselves templates. Every template id has an entry,
// possibly empty. Returned cases are clones and may be mutated freely.
func SelectCandidates(templateIDs []string, templateCaseIDs map[int64]struct{}, cases []testcase.Case, field string) Candidates {
	out := make(Candidates, len(templateIDs))
	for _, tid := range templateIDs {
		out[tid] = []testcase.Case{}
	}

	for _, c := range cases {
		tid := c.TemplateID(field)
		if tid == "" {
			continue
		}
		list, ok := out[tid]
		if !ok {
			continue
		}
		if _, isTemplate := templateCaseIDs[c.ID]; isTemplate {
			continue
		}
		out[tid] = append(list, c.Clone())
	}
	return out
}
