package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/trutils/internal/templater"
	"github.com/roach88/trutils/internal/testcase"
)

// Scenario defines a templater conformance scenario: a suite snapshot,
// the options to run with, and what the run must produce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID is the fixed run id. Defaults to "run-fixed".
	RunID string `yaml:"run_id,omitempty"`

	// DryRun computes merges without writing.
	DryRun bool `yaml:"dry_run,omitempty"`

	// DefaultSuite is returned when options leave the suite unset.
	// Defaults to 1.
	DefaultSuite int64 `yaml:"default_suite,omitempty"`

	Options ScenarioOptions `yaml:"options"`

	// Sections and Cases make up the suite.
	Sections []SectionSpec    `yaml:"sections,omitempty"`
	Cases    []map[string]any `yaml:"cases"`

	// FailUpdates lists case ids whose update is rejected.
	FailUpdates []int64 `yaml:"fail_updates,omitempty"`

	Expect Expectations `yaml:"expect,omitempty"`

	// Assertions validate individual cases after the run.
	// Supported types: case_status, final_field, skipped, update_count
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ScenarioOptions mirrors templater.Options.
type ScenarioOptions struct {
	ProjectID       int64    `yaml:"project_id"`
	SuiteID         int64    `yaml:"suite_id,omitempty"`
	TemplateField   string   `yaml:"template_field"`
	Fields          []string `yaml:"fields"`
	Sections        []int64  `yaml:"sections,omitempty"`
	Cases           []int64  `yaml:"cases,omitempty"`
	IncludeChildren bool     `yaml:"include_children,omitempty"`
	Marker          string   `yaml:"marker,omitempty"`
}

// SectionSpec is one section of the suite.
type SectionSpec struct {
	ID       int64  `yaml:"id"`
	ParentID *int64 `yaml:"parent_id,omitempty"`
	Name     string `yaml:"name"`
}

// Expectations are checked against the report. A nil list is not checked.
type Expectations struct {
	// Error is the expected ErrorKind when the run must abort.
	Error templater.ErrorKind `yaml:"error,omitempty"`

	Updated     []int64  `yaml:"updated,omitempty"`
	WouldUpdate []int64  `yaml:"would_update,omitempty"`
	Failed      []int64  `yaml:"failed,omitempty"`
	Unchanged   []int64  `yaml:"unchanged,omitempty"`
	TemplateIDs []string `yaml:"template_ids,omitempty"`
}

// Assertion validates one case after the run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "case_status": the case's outcome has Status
	// - "final_field": the case's Field equals Value after the run
	// - "skipped": a skip names the case, and Kind and Field when given
	// - "update_count": update_case was called Count times
	Type string `yaml:"type"`

	CaseID int64               `yaml:"case_id,omitempty"`
	Status templater.Status    `yaml:"status,omitempty"`
	Field  string              `yaml:"field,omitempty"`
	Value  any                 `yaml:"value,omitempty"`
	Kind   templater.ErrorKind `yaml:"kind,omitempty"`
	Count  int                 `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertCaseStatus  = "case_status"
	AssertFinalField  = "final_field"
	AssertSkipped     = "skipped"
	AssertUpdateCount = "update_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks the fields the harness itself relies on. Option
// problems are left to the templater so scenarios can expect them.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	seen := make(map[int64]bool, len(s.Cases))
	for i, c := range s.Cases {
		id, ok := c["id"]
		if !ok {
			return fmt.Errorf("cases[%d]: id is required", i)
		}
		n, ok := id.(int)
		if !ok || n <= 0 {
			return fmt.Errorf("cases[%d]: id must be a positive integer", i)
		}
		if seen[int64(n)] {
			return fmt.Errorf("cases[%d]: duplicate id %d", i, n)
		}
		seen[int64(n)] = true
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(a Assertion, index int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCaseStatus:
		if a.CaseID == 0 || a.Status == "" {
			return fmt.Errorf("assertions[%d]: case_id and status are required for case_status", index)
		}
	case AssertFinalField:
		if a.CaseID == 0 || a.Field == "" {
			return fmt.Errorf("assertions[%d]: case_id and field are required for final_field", index)
		}
	case AssertSkipped:
		if a.CaseID == 0 {
			return fmt.Errorf("assertions[%d]: case_id is required for skipped", index)
		}
	case AssertUpdateCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for update_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// options converts the scenario options.
func (s *Scenario) options() templater.Options {
	return templater.Options{
		ProjectID:       s.Options.ProjectID,
		SuiteID:         s.Options.SuiteID,
		TemplateIDField: s.Options.TemplateField,
		Fields:          s.Options.Fields,
		SectionIDs:      s.Options.Sections,
		CaseIDs:         s.Options.Cases,
		IncludeChildren: s.Options.IncludeChildren,
		Marker:          s.Options.Marker,
	}
}

// suite decodes the scenario's cases and sections.
func (s *Scenario) suite() ([]testcase.Case, []testcase.Section, error) {
	cases := make([]testcase.Case, 0, len(s.Cases))
	for i, raw := range s.Cases {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("cases[%d]: %w", i, err)
		}
		var c testcase.Case
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, nil, fmt.Errorf("cases[%d]: %w", i, err)
		}
		cases = append(cases, c)
	}

	secs := make([]testcase.Section, 0, len(s.Sections))
	for _, sec := range s.Sections {
		secs = append(secs, testcase.Section{ID: sec.ID, ParentID: sec.ParentID, Name: sec.Name})
	}
	return cases, secs, nil
}

// toValue converts a YAML value to a case field value.
func toValue(v any) (testcase.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return testcase.DecodeValue(data)
}
