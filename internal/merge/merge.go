package merge

import (
	"fmt"
	"strings"

	"github.com/roach88/trutils/internal/testcase"
)

// DefaultMarker separates templated content from manually owned content.
const DefaultMarker = "!ENDTEMPLATE!"

// ShapeMismatchError reports a candidate value that cannot be merged with
// the template value's shape, for example a number where text is expected.
type ShapeMismatchError struct {
	Field     string
	Template  testcase.Shape
	Candidate string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("field %q: template is %s but candidate holds %s", e.Field, e.Template, e.Candidate)
}

// MissingFieldError reports a templated field the template case lacks.
type MissingFieldError struct {
	Field  string
	CaseID int64
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("template case %d has no field %q", e.CaseID, e.Field)
}

// Merger applies template values using one marker.
type Merger struct {
	marker string
}

// New returns a Merger. An empty marker selects DefaultMarker.
func New(marker string) *Merger {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Merger{marker: marker}
}

// Marker returns the marker in use.
func (m *Merger) Marker() string {
	return m.marker
}

// Field merges one value. It returns the value the candidate should hold
// and whether that differs from what it holds now. When changed is false the
// returned value is the candidate's own.
func (m *Merger) Field(name string, template, candidate testcase.Value) (testcase.Value, bool, error) {
	if template == nil {
		template = testcase.Null{}
	}
	if candidate == nil {
		candidate = testcase.Null{}
	}

	shape := testcase.ShapeOf(template)
	// An empty or null template against a step list is an empty step list,
	// so a marker step and its tail survive the merge.
	if _, ok := candidate.(testcase.Steps); ok && shape != testcase.ShapeSteps {
		if empty, ok := testcase.AsSteps(template); ok {
			template, shape = empty, testcase.ShapeSteps
		}
	}

	switch shape {
	case testcase.ShapeString:
		cand, ok := testcase.AsString(candidate)
		if !ok {
			return candidate, false, &ShapeMismatchError{Field: name, Template: testcase.ShapeString, Candidate: describe(candidate)}
		}
		merged, changed := MergeString(string(template.(testcase.String)), cand, m.marker)
		if !changed {
			return candidate, false, nil
		}
		return testcase.String(merged), true, nil

	case testcase.ShapeSteps:
		cand, ok := testcase.AsSteps(candidate)
		if !ok {
			return candidate, false, &ShapeMismatchError{Field: name, Template: testcase.ShapeSteps, Candidate: describe(candidate)}
		}
		merged, changed := MergeSteps(template.(testcase.Steps), cand, m.marker)
		if !changed {
			return candidate, false, nil
		}
		return merged, true, nil

	case testcase.ShapeScalar:
		if testcase.Equal(template, candidate) {
			return candidate, false, nil
		}
		return testcase.CloneValue(template), true, nil

	default:
		return candidate, false, fmt.Errorf("field %q: unhandled shape %v", name, shape)
	}
}

// MergeString applies a template string to a candidate string.
//
// Only a candidate that contains the marker is touched. The text before the
// first marker is replaced by the template; the marker and everything after
// it, including later markers, is kept verbatim. If the text before the
// marker already equals the template, ignoring trailing whitespace, nothing
// changes. A template edit that only adds or removes trailing whitespace or
// newlines is therefore never propagated.
func MergeString(template, candidate, marker string) (string, bool) {
	if candidate == template || marker == "" {
		return candidate, false
	}
	prefix, tail, found := strings.Cut(candidate, marker)
	if !found {
		return candidate, false
	}
	if trimTrailing(prefix) == trimTrailing(template) {
		return candidate, false
	}
	return template + marker + tail, true
}

// MarkerIndex returns the index of the first step whose content contains
// the marker, or -1.
func MarkerIndex(steps testcase.Steps, marker string) int {
	if marker == "" {
		return -1
	}
	for i, s := range steps {
		if strings.Contains(s.Content, marker) {
			return i
		}
	}
	return -1
}

// AlreadyTemplated reports whether candidate starts with every template step
// and its marker step, if any, sits right after them.
//
// A candidate shorter than the template is never templated; it grows to the
// template's length on merge.
func AlreadyTemplated(template, candidate testcase.Steps, cut int) bool {
	if len(candidate) < len(template) {
		return false
	}
	if cut != -1 && cut != len(template) {
		return false
	}
	for i := range template {
		if !template[i].Matches(candidate[i]) {
			return false
		}
	}
	return true
}

// MergeSteps applies template steps to candidate steps. Without a marker
// step the result is the template; with one, the result is the template
// followed by the marker step and everything after it.
func MergeSteps(template, candidate testcase.Steps, marker string) (testcase.Steps, bool) {
	cut := MarkerIndex(candidate, marker)
	if AlreadyTemplated(template, candidate, cut) {
		return candidate, false
	}

	tail := 0
	if cut >= 0 {
		tail = len(candidate) - cut
	}
	out := make(testcase.Steps, 0, len(template)+tail)
	out = append(out, testcase.CloneValue(template).(testcase.Steps)...)
	if cut >= 0 {
		out = append(out, candidate[cut:]...)
	}
	return out, true
}

func trimTrailing(s string) string {
	return strings.TrimRight(s, " \t\r\n")
}

func describe(v testcase.Value) string {
	switch v.(type) {
	case testcase.Null:
		return "null"
	case testcase.String:
		return "string"
	case testcase.Number:
		return "number"
	case testcase.Bool:
		return "bool"
	case testcase.Steps:
		return "steps"
	case testcase.Opaque:
		return "json"
	default:
		return fmt.Sprintf("%T", v)
	}
}
