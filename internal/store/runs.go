package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/trutils/internal/templater"
)

// ErrRunNotFound is returned when a run id has no history row.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is the summary row of one run.
type RunRecord struct {
	Seq            int64            `json:"seq"`
	ID             string           `json:"id"`
	ProjectID      int64            `json:"project_id"`
	SuiteID        int64            `json:"suite_id"`
	DryRun         bool             `json:"dry_run"`
	Marker         string           `json:"marker"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
	CasesFetched   int              `json:"cases_fetched"`
	SnapshotDigest string           `json:"snapshot_digest"`
	TemplateIDs    []string         `json:"template_ids"`
	Skipped        []templater.Skip `json:"skipped"`
	Updated        int              `json:"updated"`
	WouldUpdate    int              `json:"would_update"`
	Unchanged      int              `json:"unchanged"`
	Failed         int              `json:"failed"`
}

// OutcomeRecord is what happened to one candidate in a run.
type OutcomeRecord struct {
	RunID      string           `json:"run_id"`
	Position   int              `json:"position"`
	CaseID     int64            `json:"case_id"`
	TemplateID string           `json:"template_id"`
	Status     templater.Status `json:"status"`
	Fields     []string         `json:"fields"`
	Error      string           `json:"error,omitempty"`
}

// RecordRun stores a finished report. It satisfies templater.Recorder.
func (s *Store) RecordRun(ctx context.Context, r *templater.Report) error {
	run, outcomes := fromReport(r)
	return s.WriteRun(ctx, run, outcomes)
}

func fromReport(r *templater.Report) (RunRecord, []OutcomeRecord) {
	run := RunRecord{
		ID:             r.RunID,
		ProjectID:      r.ProjectID,
		SuiteID:        r.SuiteID,
		DryRun:         r.DryRun,
		Marker:         r.Marker,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		CasesFetched:   r.CasesFetched,
		SnapshotDigest: r.SnapshotDigest,
		TemplateIDs:    r.TemplateIDs,
		Skipped:        r.Skipped,
		Updated:        r.Count(templater.StatusUpdated),
		WouldUpdate:    r.Count(templater.StatusWouldUpdate),
		Unchanged:      r.Count(templater.StatusUnchanged),
		Failed:         r.Count(templater.StatusFailed),
	}

	outcomes := make([]OutcomeRecord, 0, len(r.Outcomes))
	for i, o := range r.Outcomes {
		outcomes = append(outcomes, OutcomeRecord{
			RunID:      r.RunID,
			Position:   i,
			CaseID:     o.CaseID,
			TemplateID: o.TemplateID,
			Status:     o.Status,
			Fields:     o.Fields,
			Error:      o.Error,
		})
	}
	return run, outcomes
}

// WriteRun inserts a run and its outcomes in one transaction. Writing a run
// id twice is an error.
func (s *Store) WriteRun(ctx context.Context, run RunRecord, outcomes []OutcomeRecord) error {
	if run.ID == "" {
		return fmt.Errorf("write run: id is required")
	}
	templateIDs, err := marshalList(run.TemplateIDs)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	skipped, err := marshalList(run.Skipped)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, project_id, suite_id, dry_run, marker, started_at, finished_at, cases_fetched,
		 snapshot_digest, template_ids, skipped, updated, would_update, unchanged, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.ProjectID,
		run.SuiteID,
		boolToInt(run.DryRun),
		run.Marker,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.CasesFetched,
		run.SnapshotDigest,
		templateIDs,
		skipped,
		run.Updated,
		run.WouldUpdate,
		run.Unchanged,
		run.Failed,
	)
	if err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO case_outcomes (run_id, position, case_id, template_id, status, fields, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write run %s: prepare outcomes: %w", run.ID, err)
	}
	defer stmt.Close()

	for _, o := range outcomes {
		fields, err := marshalList(o.Fields)
		if err != nil {
			return fmt.Errorf("write run %s: %w", run.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, run.ID, o.Position, o.CaseID, o.TemplateID, string(o.Status), fields, o.Error); err != nil {
			return fmt.Errorf("write run %s: outcome for case %d: %w", run.ID, o.CaseID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run %s: commit: %w", run.ID, err)
	}
	return nil
}

const runColumns = `seq, id, project_id, suite_id, dry_run, marker, started_at, finished_at,
	cases_fetched, snapshot_digest, template_ids, skipped, updated, would_update, unchanged, failed`

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns one run by id, or ErrRunNotFound.
func (s *Store) ReadRun(ctx context.Context, runID string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// ReadOutcomes returns the outcomes of a run in processing order.
func (s *Store) ReadOutcomes(ctx context.Context, runID string) ([]OutcomeRecord, error) {
	return s.queryOutcomes(ctx, `
		SELECT run_id, position, case_id, template_id, status, fields, error
		FROM case_outcomes
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
}

// CaseHistory returns every outcome recorded for a case, oldest run first.
func (s *Store) CaseHistory(ctx context.Context, caseID int64) ([]OutcomeRecord, error) {
	return s.queryOutcomes(ctx, `
		SELECT o.run_id, o.position, o.case_id, o.template_id, o.status, o.fields, o.error
		FROM case_outcomes o
		JOIN runs r ON r.id = o.run_id
		WHERE o.case_id = ?
		ORDER BY r.seq ASC, o.position ASC
	`, caseID)
}

func (s *Store) queryOutcomes(ctx context.Context, query string, arg any) ([]OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []OutcomeRecord{}
	for rows.Next() {
		var o OutcomeRecord
		var status, fields string
		if err := rows.Scan(&o.RunID, &o.Position, &o.CaseID, &o.TemplateID, &status, &fields, &o.Error); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Status = templater.Status(status)
		if err := json.Unmarshal([]byte(fields), &o.Fields); err != nil {
			return nil, fmt.Errorf("decode outcome fields: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var run RunRecord
	var dryRun int
	var startedAt, finishedAt, templateIDs, skipped string
	err := row.Scan(
		&run.Seq,
		&run.ID,
		&run.ProjectID,
		&run.SuiteID,
		&dryRun,
		&run.Marker,
		&startedAt,
		&finishedAt,
		&run.CasesFetched,
		&run.SnapshotDigest,
		&templateIDs,
		&skipped,
		&run.Updated,
		&run.WouldUpdate,
		&run.Unchanged,
		&run.Failed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, err
		}
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	run.DryRun = dryRun == 1

	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return RunRecord{}, fmt.Errorf("run %s: started_at: %w", run.ID, err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
		return RunRecord{}, fmt.Errorf("run %s: finished_at: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(templateIDs), &run.TemplateIDs); err != nil {
		return RunRecord{}, fmt.Errorf("run %s: template_ids: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(skipped), &run.Skipped); err != nil {
		return RunRecord{}, fmt.Errorf("run %s: skipped: %w", run.ID, err)
	}
	return run, nil
}

// marshalList encodes a slice as a JSON array; nil becomes [].
func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
