package templater

import (
	"context"
	"slices"
	"time"
)

// Status is what happened to one candidate case.
type Status string

const (
	StatusUpdated     Status = "updated"
	StatusWouldUpdate Status = "would_update"
	StatusUnchanged   Status = "unchanged"
	StatusFailed      Status = "failed"
)

// Outcome records the result for one candidate, in processing order.
type Outcome struct {
	CaseID     int64    `json:"case_id"`
	TemplateID string   `json:"template_id"`
	Status     Status   `json:"status"`
	Fields     []string `json:"fields,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// CaseFailure is a candidate whose update could not be persisted.
type CaseFailure struct {
	CaseID     int64  `json:"case_id"`
	TemplateID string `json:"template_id"`
	Error      string `json:"error"`
}

// Skip is something the run passed over without failing: a template case
// with no template id, a requested case id that does not exist, or a field
// that could not be merged. A field the template case lacks is reported once,
// against the template case.
type Skip struct {
	Kind       ErrorKind `json:"kind,omitempty"`
	CaseID     int64     `json:"case_id"`
	TemplateID string    `json:"template_id,omitempty"`
	Field      string    `json:"field,omitempty"`
	Reason     string    `json:"reason"`
}

// Report summarizes a run. UpdatedCaseIDs only lists persisted, error-free
// writes; in a dry run it stays empty and WouldUpdateCaseIDs lists what a
// real run would have written.
type Report struct {
	RunID              string        `json:"run_id"`
	ProjectID          int64         `json:"project_id"`
	SuiteID            int64         `json:"suite_id"`
	DryRun             bool          `json:"dry_run"`
	Marker             string        `json:"marker"`
	StartedAt          time.Time     `json:"started_at"`
	FinishedAt         time.Time     `json:"finished_at"`
	CasesFetched       int           `json:"cases_fetched"`
	SnapshotDigest     string        `json:"snapshot_digest"`
	SectionScope       []int64       `json:"section_scope,omitempty"`
	TemplateIDs        []string      `json:"template_ids"`
	UpdatedCaseIDs     []int64       `json:"updated_case_ids"`
	WouldUpdateCaseIDs []int64       `json:"would_update_case_ids"`
	Outcomes           []Outcome     `json:"outcomes"`
	Failures           []CaseFailure `json:"failures"`
	Skipped            []Skip        `json:"skipped"`
}

func newReport(runID string, dryRun bool) *Report {
	return &Report{
		RunID:              runID,
		DryRun:             dryRun,
		TemplateIDs:        []string{},
		UpdatedCaseIDs:     []int64{},
		WouldUpdateCaseIDs: []int64{},
		Outcomes:           []Outcome{},
		Failures:           []CaseFailure{},
		Skipped:            []Skip{},
	}
}

// hasConfigurationSkip reports whether a missing field was already recorded
// for the template id.
func (r *Report) hasConfigurationSkip(tid, field string) bool {
	return slices.ContainsFunc(r.Skipped, func(s Skip) bool {
		return s.Kind == KindConfiguration && s.TemplateID == tid && s.Field == field
	})
}

// HasFailures reports whether any candidate failed to persist.
func (r *Report) HasFailures() bool {
	return len(r.Failures) > 0
}

// Count returns how many outcomes have the given status.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Recorder keeps finished reports, for example in a run history database.
type Recorder interface {
	RecordRun(ctx context.Context, r *Report) error
}
