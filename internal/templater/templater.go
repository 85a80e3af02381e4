package templater

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/trutils/internal/merge"
	"github.com/roach88/trutils/internal/sections"
	"github.com/roach88/trutils/internal/selector"
	"github.com/roach88/trutils/internal/testcase"
)

// Collaborator is the remote test case repository.
type Collaborator interface {
	GetCases(ctx context.Context, projectID, suiteID int64) ([]testcase.Case, error)
	GetSections(ctx context.Context, projectID, suiteID int64) ([]testcase.Section, error)
	GetDefaultSuite(ctx context.Context, projectID int64) (int64, error)
	UpdateCase(ctx context.Context, caseID int64, c testcase.Case) error
}

// Templater runs template propagation for one set of options.
type Templater struct {
	remote   Collaborator
	opts     Options
	logger   *slog.Logger
	recorder Recorder
	runIDs   RunIDGenerator
	now      func() time.Time
}

// Option configures a Templater.
type Option func(*Templater)

// WithLogger sets the logger. Nil discards logs.
func WithLogger(l *slog.Logger) Option {
	return func(t *Templater) { t.logger = l }
}

// WithRecorder stores every finished report.
func WithRecorder(r Recorder) Option {
	return func(t *Templater) { t.recorder = r }
}

// WithRunIDGenerator overrides the UUIDv7 run id generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(t *Templater) { t.runIDs = g }
}

// WithClock overrides time.Now for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Templater) { t.now = now }
}

// New creates a Templater. Options are validated by Run, not here.
func New(remote Collaborator, opts Options, options ...Option) *Templater {
	t := &Templater{
		remote: remote,
		opts:   opts,
		runIDs: UUIDv7Generator{},
		now:    time.Now,
	}
	for _, o := range options {
		o(t)
	}
	if t.logger == nil {
		t.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return t
}

// Run executes one propagation pass. With dryRun set every merge is computed
// and reported but nothing is written.
//
// The returned error is non-nil only when the run aborted; per-case write
// failures are in Report.Failures. When the run aborts after fetching, the
// partial report is returned alongside the error.
func (t *Templater) Run(ctx context.Context, dryRun bool) (*Report, error) {
	opts := t.opts
	if err := opts.Validate(); err != nil {
		t.logger.Error("templater options invalid", "error", err)
		return nil, err
	}
	if t.remote == nil {
		return nil, configError("no test case repository configured")
	}

	report := newReport(t.runIDs.Generate(), dryRun)
	report.ProjectID = opts.ProjectID
	report.Marker = opts.Marker
	report.StartedAt = t.now()

	err := t.run(ctx, &opts, report)
	report.FinishedAt = t.now()

	t.logger.Info("templater run finished",
		"run_id", report.RunID,
		"dry_run", dryRun,
		"updated", len(report.UpdatedCaseIDs),
		"would_update", len(report.WouldUpdateCaseIDs),
		"failed", len(report.Failures),
		"skipped", len(report.Skipped),
	)
	if err != nil {
		return report, err
	}

	if t.recorder != nil {
		if recErr := t.recorder.RecordRun(ctx, report); recErr != nil {
			t.logger.Warn("could not record run history", "run_id", report.RunID, "error", recErr)
		}
	}
	return report, nil
}

func (t *Templater) run(ctx context.Context, opts *Options, report *Report) error {
	suiteID := opts.SuiteID
	if suiteID == 0 {
		id, err := t.remote.GetDefaultSuite(ctx, opts.ProjectID)
		if err != nil {
			return fetchError("default suite", err)
		}
		suiteID = id
		t.logger.Info("using default suite", "project_id", opts.ProjectID, "suite_id", suiteID)
	}
	report.SuiteID = suiteID

	t.logger.Info("retrieving test cases", "project_id", opts.ProjectID, "suite_id", suiteID)
	cases, err := t.remote.GetCases(ctx, opts.ProjectID, suiteID)
	if err != nil {
		return fetchError("cases", err)
	}
	report.CasesFetched = len(cases)
	t.logger.Info("test cases retrieved", "count", len(cases))

	digest, err := testcase.Digest(cases)
	if err != nil {
		return fetchError("cases", err)
	}
	report.SnapshotDigest = digest

	templates, err := t.selectTemplates(ctx, opts, suiteID, cases, report)
	if err != nil {
		return err
	}
	report.TemplateIDs = append(report.TemplateIDs, templates.Order...)
	for _, id := range templates.Unkeyed {
		report.Skipped = append(report.Skipped, Skip{CaseID: id, Reason: "template case has no template id"})
	}
	for _, id := range templates.Missing {
		report.Skipped = append(report.Skipped, Skip{CaseID: id, Reason: "requested template case not found"})
	}
	t.logger.Info("template cases found", "count", templates.Len())

	candidates := selector.SelectCandidates(templates.Order, templates.CaseIDs(), cases, opts.TemplateIDField)
	for _, tid := range templates.Order {
		t.logger.Info("cases to update", "template_id", tid, "count", len(candidates[tid]))
	}

	t.logger.Info("beginning test case update", "dry_run", report.DryRun)
	merger := merge.New(opts.Marker)
	for _, tid := range templates.Order {
		tmpl := templates.ByID[tid]
		for i := range candidates[tid] {
			t.apply(ctx, merger, tmpl, &candidates[tid][i], tid, opts.Fields, report)
		}
	}
	return nil
}

func (t *Templater) selectTemplates(ctx context.Context, opts *Options, suiteID int64, cases []testcase.Case, report *Report) (*selector.Templates, error) {
	var (
		templates *selector.Templates
		err       error
	)

	if opts.BySection() {
		scope := sections.NewIDSet(opts.SectionIDs...)
		if opts.IncludeChildren {
			secs, fetchErr := t.remote.GetSections(ctx, opts.ProjectID, suiteID)
			if fetchErr != nil {
				return nil, fetchError("sections", fetchErr)
			}
			scope, err = sections.ResolveDescendants(opts.SectionIDs, secs)
			if err != nil {
				te := &Error{Kind: KindMalformedHierarchy, Message: "expanding child sections", Err: err}
				var mh *sections.MalformedHierarchyError
				if errors.As(err, &mh) {
					te.SectionID = mh.SectionID
				}
				return nil, te
			}
			t.logger.Debug("section scope expanded", "requested", len(opts.SectionIDs), "resolved", len(scope))
		}
		report.SectionScope = scope.Sorted()
		templates, err = selector.TemplatesBySection(cases, scope, opts.TemplateIDField)
	} else {
		templates, err = selector.TemplatesByIDs(opts.CaseIDs, cases, opts.TemplateIDField)
	}

	if err != nil {
		var dup *selector.DuplicateTemplateIDError
		if errors.As(err, &dup) {
			te := &Error{Kind: KindDuplicateTemplateID, Message: "selecting template cases", TemplateID: dup.TemplateID, Err: err}
			if len(dup.CaseIDs) > 0 {
				te.CaseID = dup.CaseIDs[len(dup.CaseIDs)-1]
			}
			return nil, te
		}
		return nil, err
	}
	return templates, nil
}

func (t *Templater) apply(ctx context.Context, merger *merge.Merger, tmpl testcase.Case, cand *testcase.Case, tid string, fields []string, report *Report) {
	res := merger.Case(tmpl, cand, fields)

	for _, ferr := range res.Errors {
		skip := Skip{Kind: KindShapeMismatch, CaseID: cand.ID, TemplateID: tid, Reason: ferr.Error()}
		var sm *merge.ShapeMismatchError
		var mf *merge.MissingFieldError
		switch {
		case errors.As(ferr, &sm):
			skip.Field = sm.Field
		case errors.As(ferr, &mf):
			if report.hasConfigurationSkip(tid, mf.Field) {
				continue
			}
			skip.Kind = KindConfiguration
			skip.CaseID = mf.CaseID
			skip.Field = mf.Field
		}
		report.Skipped = append(report.Skipped, skip)
		t.logger.Warn("field not merged", "case_id", skip.CaseID, "template_id", tid, "field", skip.Field, "error", ferr)
	}

	for _, ch := range res.Changes {
		t.logger.Debug("field changed", "case_id", cand.ID, "template_id", tid, "field", ch.Field)
	}

	outcome := Outcome{CaseID: cand.ID, TemplateID: tid, Fields: res.ChangedFields()}
	switch {
	case !res.Changed():
		outcome.Status = StatusUnchanged
		outcome.Fields = nil

	case report.DryRun:
		outcome.Status = StatusWouldUpdate
		report.WouldUpdateCaseIDs = append(report.WouldUpdateCaseIDs, cand.ID)
		t.logger.Info("dry run: case would be updated", "case_id", cand.ID, "template_id", tid, "fields", outcome.Fields)

	default:
		if err := t.remote.UpdateCase(ctx, cand.ID, *cand); err != nil {
			uerr := &Error{Kind: KindRemoteUpdate, Message: "updating case", CaseID: cand.ID, TemplateID: tid, Err: err}
			outcome.Status = StatusFailed
			outcome.Error = uerr.Error()
			report.Failures = append(report.Failures, CaseFailure{CaseID: cand.ID, TemplateID: tid, Error: uerr.Error()})
			t.logger.Error("case update failed", "case_id", cand.ID, "template_id", tid, "error", err)
		} else {
			outcome.Status = StatusUpdated
			report.UpdatedCaseIDs = append(report.UpdatedCaseIDs, cand.ID)
			t.logger.Info("case updated", "case_id", cand.ID, "template_id", tid, "fields", outcome.Fields)
		}
	}
	report.Outcomes = append(report.Outcomes, outcome)
}
