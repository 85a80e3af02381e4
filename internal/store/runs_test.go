package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/roach88/trutils/internal/templater"
)

// The store must satisfy the templater's recorder hook.
var _ templater.Recorder = (*Store)(nil)

func TestRecordRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.RecordRun(ctx, createTestReport("run-1")); err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}

	run, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if run.ProjectID != 1 || run.SuiteID != 2 || run.CasesFetched != 5 {
		t.Errorf("unexpected run header: %+v", run)
	}
	if !run.StartedAt.Equal(testStart) {
		t.Errorf("StartedAt = %v, expected %v", run.StartedAt, testStart)
	}
	if run.Updated != 1 || run.Unchanged != 1 || run.Failed != 1 || run.WouldUpdate != 0 {
		t.Errorf("unexpected counts: updated=%d unchanged=%d failed=%d would_update=%d",
			run.Updated, run.Unchanged, run.Failed, run.WouldUpdate)
	}
	if !reflect.DeepEqual(run.TemplateIDs, []string{"T1"}) {
		t.Errorf("TemplateIDs = %v", run.TemplateIDs)
	}
	if len(run.Skipped) != 1 || run.Skipped[0].CaseID != 4 {
		t.Errorf("Skipped = %+v", run.Skipped)
	}

	outcomes, err := s.ReadOutcomes(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadOutcomes() failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	wantIDs := []int64{11, 12, 13}
	for i, o := range outcomes {
		if o.Position != i || o.CaseID != wantIDs[i] {
			t.Errorf("outcome %d = %+v, expected case %d at position %d", i, o, wantIDs[i], i)
		}
	}
	if outcomes[1].Fields == nil || len(outcomes[1].Fields) != 0 {
		t.Errorf("unchanged outcome fields should decode as empty, got %#v", outcomes[1].Fields)
	}
	if outcomes[2].Status != templater.StatusFailed || outcomes[2].Error == "" {
		t.Errorf("failed outcome lost its status or error: %+v", outcomes[2])
	}
}

func TestWriteRun_DuplicateIDRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.RecordRun(ctx, createTestReport("dup")); err != nil {
		t.Fatalf("first RecordRun() failed: %v", err)
	}
	if err := s.RecordRun(ctx, createTestReport("dup")); err == nil {
		t.Error("expected error writing the same run id twice")
	}

	outcomes, err := s.ReadOutcomes(ctx, "dup")
	if err != nil {
		t.Fatalf("ReadOutcomes() failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Errorf("failed second write must not add outcomes, got %d", len(outcomes))
	}
}

func TestWriteRun_RollsBackOnOutcomeError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run, outcomes := fromReport(createTestReport("partial"))
	// Two outcomes at the same position violate the primary key.
	outcomes[1].Position = 0

	if err := s.WriteRun(ctx, run, outcomes); err == nil {
		t.Fatal("expected primary key violation")
	}
	if _, err := s.ReadRun(ctx, "partial"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("run row should have been rolled back, got err=%v", err)
	}
}

func TestWriteRun_RequiresID(t *testing.T) {
	s := createTestStore(t)
	if err := s.WriteRun(context.Background(), RunRecord{}, nil); err == nil {
		t.Error("expected error for empty run id")
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := s.RecordRun(ctx, createTestReport(fmt.Sprintf("run-%d", i))); err != nil {
			t.Fatalf("RecordRun(%d) failed: %v", i, err)
		}
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if !reflect.DeepEqual(ids, []string{"run-3", "run-2", "run-1"}) {
		t.Errorf("ListRuns order = %v", ids)
	}

	limited, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns(2) failed: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "run-3" {
		t.Errorf("ListRuns(2) = %+v", limited)
	}
}

func TestListRuns_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)

	runs, err := s.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if runs == nil || len(runs) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", runs)
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "nope")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestCaseHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := createTestReport("a")
	second := createTestReport("b")
	second.DryRun = true
	second.Outcomes = []templater.Outcome{
		{CaseID: 13, TemplateID: "T1", Status: templater.StatusWouldUpdate, Fields: []string{"custom_preconds"}},
	}
	for _, r := range []*templater.Report{first, second} {
		if err := s.RecordRun(ctx, r); err != nil {
			t.Fatalf("RecordRun(%s) failed: %v", r.RunID, err)
		}
	}

	history, err := s.CaseHistory(ctx, 13)
	if err != nil {
		t.Fatalf("CaseHistory() failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].RunID != "a" || history[1].RunID != "b" {
		t.Errorf("history not ordered by run: %+v", history)
	}
	if history[1].Status != templater.StatusWouldUpdate {
		t.Errorf("second entry status = %s", history[1].Status)
	}

	run, err := s.ReadRun(ctx, "b")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if !run.DryRun || run.WouldUpdate != 1 {
		t.Errorf("dry run not recorded: %+v", run)
	}
}
