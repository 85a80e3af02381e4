package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/trutils/internal/templater"
	"github.com/roach88/trutils/internal/testcase"
)

// Snapshot captures everything a scenario run produced.
// It is serialized as canonical JSON for deterministic comparison.
type Snapshot struct {
	ScenarioName string              `json:"scenario_name"`
	ErrorKind    templater.ErrorKind `json:"error_kind,omitempty"`
	Report       *templater.Report   `json:"report,omitempty"`
	Cases        []testcase.Case     `json:"cases"`
}

// MarshalSnapshot returns the canonical JSON snapshot of a result.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	snap := Snapshot{
		ScenarioName: scenarioName,
		ErrorKind:    result.ErrorKind,
		Report:       result.Report,
		Cases:        result.Cases,
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	return testcase.CanonicalizeJSON(raw)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
