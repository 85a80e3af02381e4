package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/roach88/trutils/internal/templater"
	"github.com/roach88/trutils/internal/testcase"
	"github.com/roach88/trutils/internal/testutil"
)

// DefaultRunID is the run id used when a scenario sets none.
const DefaultRunID = "run-fixed"

// Harness runs scenarios with a deterministic clock and run ids.
type Harness struct {
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger routes templater logs somewhere other than io.Discard.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{}
	for _, o := range opts {
		o(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h
}

// Run executes a scenario with a default Harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run executes a scenario and evaluates its expectations.
//
// Each scenario runs against a fresh in-memory suite. The returned error is
// reserved for scenarios that cannot be executed at all; an aborted run
// is a result whose ErrorKind is set.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	cases, secs, err := scenario.suite()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	repo := testutil.NewRepository(cases, secs)
	if scenario.DefaultSuite > 0 {
		repo.SetDefaultSuite(scenario.DefaultSuite)
	}
	for _, id := range scenario.FailUpdates {
		repo.FailUpdate(id, fmt.Errorf("case %d rejected by scenario", id))
	}

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	t := templater.New(repo, scenario.options(),
		templater.WithLogger(h.logger),
		templater.WithRunIDGenerator(templater.NewFixedGenerator(runID)),
		templater.WithClock(testutil.NewDeterministicClock().Now),
	)

	result := NewResult()
	report, runErr := t.Run(ctx, scenario.DryRun)
	result.Report = report
	if runErr != nil {
		result.ErrorKind = templater.KindOf(runErr)
		if result.ErrorKind == "" {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, runErr)
		}
	}

	for _, c := range cases {
		if stored, ok := repo.Case(c.ID); ok {
			result.Cases = append(result.Cases, stored)
		}
	}
	sort.Slice(result.Cases, func(i, j int) bool { return result.Cases[i].ID < result.Cases[j].ID })
	result.UpdateCalls = repo.Calls("update_case")

	evaluate(scenario, result, runErr)
	return result, nil
}

// finalField returns a case field after the run; absent fields are null.
func finalField(r *Result, caseID int64, field string) (testcase.Value, bool) {
	c, ok := r.Case(caseID)
	if !ok {
		return nil, false
	}
	v, _ := c.Field(field)
	return v, true
}
