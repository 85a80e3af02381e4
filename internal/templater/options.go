package templater

import (
	"strings"

	"github.com/roach88/trutils/internal/merge"
)

// Options selects what a run templates.
type Options struct {
	ProjectID int64

	// SuiteID is the suite to work in. Zero asks the server for the
	// project's default suite.
	SuiteID int64

	// TemplateIDField names the case field linking candidates to templates.
	TemplateIDField string

	// Fields lists the case fields copied from templates.
	Fields []string

	// SectionIDs selects templates by section. Mutually exclusive with CaseIDs.
	SectionIDs []int64

	// CaseIDs selects templates by case id.
	CaseIDs []int64

	// IncludeChildren extends SectionIDs with every nested section.
	IncludeChildren bool

	// Marker overrides merge.DefaultMarker when non-empty.
	Marker string
}

// reservedFields are never templated; they identify the record itself.
var reservedFields = map[string]bool{"id": true, "section_id": true, "suite_id": true}

// Validate checks the options and normalizes Fields (trimmed, de-duplicated).
func (o *Options) Validate() error {
	if o.ProjectID <= 0 {
		return configError("project id is required")
	}
	if len(o.SectionIDs) == 0 && len(o.CaseIDs) == 0 {
		return configError("either section ids or case ids are required to find template cases")
	}
	if len(o.SectionIDs) > 0 && len(o.CaseIDs) > 0 {
		return configError("section ids and case ids are mutually exclusive")
	}
	o.TemplateIDField = strings.TrimSpace(o.TemplateIDField)
	if o.TemplateIDField == "" {
		return configError("template id field name is required")
	}

	seen := make(map[string]bool, len(o.Fields))
	fields := make([]string, 0, len(o.Fields))
	for _, f := range o.Fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		if reservedFields[f] {
			return configError("field %q identifies the case and cannot be templated", f)
		}
		if f == o.TemplateIDField {
			return configError("template id field %q cannot also be templated", f)
		}
		seen[f] = true
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return configError("at least one field to template is required")
	}
	o.Fields = fields

	if o.Marker == "" {
		o.Marker = merge.DefaultMarker
	}
	if strings.TrimSpace(o.Marker) == "" {
		return configError("end marker cannot be blank")
	}
	return nil
}

// BySection reports whether templates are selected by section.
func (o *Options) BySection() bool {
	return len(o.SectionIDs) > 0
}
