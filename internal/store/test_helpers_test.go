package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/trutils/internal/templater"
)

// createTestStore creates a new on-disk store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestReport builds a finished report with one outcome per status.
func createTestReport(runID string) *templater.Report {
	return &templater.Report{
		RunID:          runID,
		ProjectID:      1,
		SuiteID:        2,
		Marker:         "!ENDTEMPLATE!",
		StartedAt:      testStart,
		FinishedAt:     testStart.Add(3 * time.Second),
		CasesFetched:   5,
		SnapshotDigest: "sha256:abc",
		TemplateIDs:    []string{"T1"},
		UpdatedCaseIDs: []int64{11},
		Outcomes: []templater.Outcome{
			{CaseID: 11, TemplateID: "T1", Status: templater.StatusUpdated, Fields: []string{"custom_preconds"}},
			{CaseID: 12, TemplateID: "T1", Status: templater.StatusUnchanged},
			{CaseID: 13, TemplateID: "T1", Status: templater.StatusFailed, Fields: []string{"custom_preconds"}, Error: "REMOTE_UPDATE: boom"},
		},
		Failures: []templater.CaseFailure{{CaseID: 13, TemplateID: "T1", Error: "REMOTE_UPDATE: boom"}},
		Skipped:  []templater.Skip{{CaseID: 4, Reason: "template case has no template id"}},
	}
}
