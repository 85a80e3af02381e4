package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/trutils/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // glob on scenario file names, without extension
	GoldenDir string // default <scenarios-dir>/golden
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Note   string   `json:"note,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult summarises a test command run.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run templater conformance scenarios",
		Long: `Run templater scenarios against an in-memory TestRail suite.

Each scenario describes sections, cases and templater options, and what
the run must produce. When a golden file exists for a scenario, the run
report and final cases must also match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  trutils test ./testdata/scenarios
  trutils test ./testdata/scenarios --filter "dry_*"
  trutils test ./testdata/scenarios --golden-dir ./internal/harness/testdata/golden
  trutils test ./testdata/scenarios --update
  trutils test ./testdata/scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "golden file directory (default <scenarios-dir>/golden)")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}
	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	if len(files) == 0 {
		if formatter.JSON() {
			return formatter.Success(result)
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	runner := &scenarioRunner{
		harness:   harness.New(),
		goldenDir: opts.GoldenDir,
		update:    opts.Update,
	}
	if runner.goldenDir == "" {
		runner.goldenDir = filepath.Join(scenariosDir, "golden")
	}
	// Templater logs would drown the results; only --verbose shows them.
	if opts.Verbose {
		runner.harness = harness.New(harness.WithLogger(setupLogging(opts.RootOptions, cmd.ErrOrStderr())))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	for _, file := range files {
		sr := runner.run(ctx, file)
		if !formatter.JSON() {
			printScenario(formatter.Writer, sr)
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	return finishTests(formatter, result)
}

// findScenarioFiles returns the YAML files under dir whose base name,
// without extension, matches filter. An empty filter matches everything.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", filter, err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext)); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

type scenarioRunner struct {
	harness   *harness.Harness
	goldenDir string
	update    bool
}

func (r *scenarioRunner) run(ctx context.Context, path string) ScenarioResult {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return failed(filepath.Base(path), fmt.Sprintf("failed to load scenario: %v", err))
	}
	result, err := r.harness.Run(ctx, scenario)
	if err != nil {
		return failed(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}
	snapshot, err := harness.MarshalSnapshot(scenario.Name, result)
	if err != nil {
		return failed(scenario.Name, fmt.Sprintf("encoding snapshot: %v", err))
	}

	note, err := r.checkGolden(scenario.Name, snapshot)
	if err != nil {
		return failed(scenario.Name, err.Error())
	}
	if !result.Pass {
		return failed(scenario.Name, result.Errors...)
	}
	return ScenarioResult{Name: scenario.Name, Pass: true, Note: note}
}

// checkGolden compares snapshot with the scenario's golden file, or
// rewrites the file in update mode. A missing golden file is not an error.
func (r *scenarioRunner) checkGolden(name string, snapshot []byte) (string, error) {
	path := goldenFilePath(r.goldenDir, name)
	if r.update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("creating golden directory: %w", err)
		}
		if err := os.WriteFile(path, snapshot, 0o644); err != nil {
			return "", fmt.Errorf("writing golden file: %w", err)
		}
		return "golden updated", nil
	}

	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading golden file: %w", err)
	}
	if !bytes.Equal(want, snapshot) {
		return "", errors.New("report does not match golden file (run with --update to regenerate)")
	}
	return "", nil
}

func goldenFilePath(goldenDir, scenarioName string) string {
	return filepath.Join(goldenDir, scenarioName+".golden")
}

func failed(name string, errs ...string) ScenarioResult {
	return ScenarioResult{Name: name, Errors: errs}
}

func printScenario(w io.Writer, sr ScenarioResult) {
	if sr.Pass {
		if sr.Note != "" {
			fmt.Fprintf(w, "✓ %s (%s)\n", sr.Name, sr.Note)
			return
		}
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func finishTests(f *OutputFormatter, result TestResult) error {
	var failure error
	if result.Failed > 0 {
		failure = NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	if f.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if failure != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: CodeTestFailed, Message: failure.Error()}
		}
		if err := f.Respond(resp); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintf(f.Writer, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if failure == nil {
		fmt.Fprintln(f.Writer, "✓ All scenarios passed")
	}
	return failure
}
