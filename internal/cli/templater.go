package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/trutils/internal/config"
	"github.com/roach88/trutils/internal/store"
	"github.com/roach88/trutils/internal/templater"
	"github.com/roach88/trutils/internal/testrail"
)

// TemplaterOptions holds flags for the templater command.
type TemplaterOptions struct {
	*RootOptions
	ConfigPath      string
	EnvFile         string
	ProjectID       int64
	SuiteID         int64
	TemplateField   string
	Fields          string
	Sections        string
	Cases           string
	IncludeChildren bool
	Marker          string
	DryRun          bool
	HistoryDB       string

	// NewCollaborator allows overriding the TestRail client (for testing).
	// If nil, a testrail.Client is created.
	NewCollaborator func(testrail.Config) (templater.Collaborator, error)

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs templater.RunIDGenerator

	// Clock allows overriding report timestamps (for testing).
	Clock func() time.Time
}

// NewTemplaterCommand creates the templater command.
func NewTemplaterCommand(rootOpts *RootOptions) *cobra.Command {
	return newTemplaterCommand(&TemplaterOptions{RootOptions: rootOpts})
}

func newTemplaterCommand(opts *TemplaterOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templater",
		Short: "Propagate template case fields to derived cases",
		Long: `Copy fields from template cases to every case carrying the same template id.

Template cases are chosen by section (--sections, optionally with their
child sections) or by case id (--cases). For text fields and separated
steps only the part before the end marker is replaced; the marker and
everything after it stay as they are. Other fields are copied as a whole.

TestRail credentials come from the config file, a dotenv file given with
--env-file, or TR_URL, TR_USER and TR_PASS, each overriding the one before.
Flags override the config file.

Exit codes:
  0 - Run finished and every change was written
  1 - Run aborted or one or more cases could not be written
  2 - Command error (invalid flags or config)
  3 - TestRail client could not be initialised

Examples:
  trutils templater -p 1 -t custom_templateid -f title,custom_steps_separated -s 10
  trutils templater -p 1 -t custom_templateid -f custom_preconds -s 10 -c --dry-run
  trutils templater --config trutils.yaml --history-db runs.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplater(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", "", "dotenv file with TR_URL, TR_USER and TR_PASS")
	cmd.Flags().Int64VarP(&opts.ProjectID, "project", "p", 0, "project id")
	cmd.Flags().Int64Var(&opts.SuiteID, "suite", 0, "suite id (default: the project's first suite)")
	cmd.Flags().StringVarP(&opts.TemplateField, "template-field", "t", "", "case field holding the template id")
	cmd.Flags().StringVarP(&opts.Fields, "fields", "f", "", "comma separated fields to template")
	cmd.Flags().StringVarP(&opts.Sections, "sections", "s", "", "comma separated section ids holding template cases")
	cmd.Flags().StringVarP(&opts.Cases, "cases", "i", "", "comma separated template case ids")
	cmd.Flags().BoolVarP(&opts.IncludeChildren, "include-children", "c", false, "include child sections of --sections")
	cmd.Flags().StringVar(&opts.Marker, "marker-override", "", "end marker (default \"!ENDTEMPLATE!\")")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would change without writing")
	cmd.Flags().StringVar(&opts.HistoryDB, "history-db", "", "record the run in this SQLite database")

	return cmd
}

func runTemplater(opts *TemplaterOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := setupLogging(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := loadTemplaterConfig(opts, cmd)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, CodeConfig, err)
	}

	remote, err := newCollaborator(opts, cfg, logger)
	if err != nil {
		return formatter.Fail(ExitClientError, CodeClient, err)
	}

	runOpts := []templater.Option{templater.WithLogger(logger)}
	if opts.RunIDs != nil {
		runOpts = append(runOpts, templater.WithRunIDGenerator(opts.RunIDs))
	}
	if opts.Clock != nil {
		runOpts = append(runOpts, templater.WithClock(opts.Clock))
	}

	if cfg.HistoryDB != "" {
		logger.Info("opening run history", "path", cfg.HistoryDB)
		st, err := store.Open(cfg.HistoryDB)
		if err != nil {
			return formatter.Fail(ExitCommandError, CodeHistory, err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing history database", "error", closeErr)
			}
		}()
		runOpts = append(runOpts, templater.WithRecorder(st))
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	t := templater.New(remote, cfg.Options(), runOpts...)
	report, runErr := t.Run(ctx, cfg.Templater.DryRun)
	if runErr != nil {
		return reportAbort(formatter, report, runErr)
	}

	if err := writeReport(formatter, report); err != nil {
		return err
	}
	if report.HasFailures() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d case(s) could not be updated", len(report.Failures)))
	}
	return nil
}

// loadTemplaterConfig merges the config file, the env file, the environment
// and the flags that were set on the command line, in that order.
func loadTemplaterConfig(opts *TemplaterOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg := &config.Config{}
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.EnvFile != "" {
		if err := cfg.ApplyEnvFile(opts.EnvFile); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("sections") && flags.Changed("cases") {
		return nil, errors.New("--sections and --cases are mutually exclusive")
	}
	tc := &cfg.Templater
	if flags.Changed("project") {
		tc.ProjectID = opts.ProjectID
	}
	if flags.Changed("suite") {
		tc.SuiteID = opts.SuiteID
	}
	if flags.Changed("template-field") {
		tc.TemplateField = strings.TrimSpace(opts.TemplateField)
	}
	if flags.Changed("fields") {
		tc.Fields = config.ParseFields(opts.Fields)
	}
	if flags.Changed("sections") {
		ids, err := config.ParseIDs(opts.Sections)
		if err != nil {
			return nil, fmt.Errorf("--sections: %w", err)
		}
		tc.Sections = ids
		tc.Cases = nil
	}
	if flags.Changed("cases") {
		ids, err := config.ParseIDs(opts.Cases)
		if err != nil {
			return nil, fmt.Errorf("--cases: %w", err)
		}
		tc.Cases = ids
		tc.Sections = nil
	}
	if flags.Changed("include-children") {
		tc.IncludeChildren = opts.IncludeChildren
	}
	if flags.Changed("marker-override") {
		tc.Marker = opts.Marker
	}
	if flags.Changed("dry-run") {
		tc.DryRun = opts.DryRun
	}
	if flags.Changed("history-db") {
		cfg.HistoryDB = opts.HistoryDB
	}
	return cfg, nil
}

func newCollaborator(opts *TemplaterOptions, cfg *config.Config, logger *slog.Logger) (templater.Collaborator, error) {
	if err := cfg.ValidateConnection(); err != nil {
		return nil, fmt.Errorf("%w (set them in the config file or %s, %s and %s)", err, config.EnvURL, config.EnvUser, config.EnvPassword)
	}
	clientCfg := cfg.Client()
	clientCfg.Logger = logger

	if opts.NewCollaborator != nil {
		return opts.NewCollaborator(clientCfg)
	}
	return testrail.New(clientCfg)
}

// signalContext cancels on SIGINT or SIGTERM so in-flight requests stop.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	return signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
}

// reportAbort prints an aborted run and maps it to an exit code.
func reportAbort(f *OutputFormatter, report *templater.Report, err error) error {
	code, exit := CodeRunAborted, ExitFailure
	if templater.IsConfigurationError(err) {
		code, exit = CodeConfig, ExitCommandError
	}

	if !f.JSON() || report == nil {
		return f.Fail(exit, code, err)
	}
	// The partial report shows what was fetched before the abort.
	resp := CLIResponse{
		Status: "error",
		Error:  &CLIError{Code: code, Message: err.Error(), Details: report},
		RunID:  report.RunID,
	}
	if encErr := f.Respond(resp); encErr != nil {
		return encErr
	}
	return WrapExitError(exit, "templater run aborted", err)
}

// writeReport prints a finished run.
func writeReport(f *OutputFormatter, report *templater.Report) error {
	if !f.JSON() {
		return writeReportText(f.Writer, report)
	}

	resp := CLIResponse{Status: "ok", Data: report, RunID: report.RunID}
	if report.HasFailures() {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    CodeUpdateFailed,
			Message: fmt.Sprintf("%d case(s) could not be updated", len(report.Failures)),
			Details: report.Failures,
		}
	}
	return f.Respond(resp)
}

func writeReportText(w io.Writer, r *templater.Report) error {
	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "Run %s%s\n", r.RunID, mode)
	fmt.Fprintf(w, "Project %d, suite %d: %d cases fetched, %d template id(s)", r.ProjectID, r.SuiteID, r.CasesFetched, len(r.TemplateIDs))
	if len(r.TemplateIDs) > 0 {
		fmt.Fprintf(w, " [%s]", strings.Join(r.TemplateIDs, ", "))
	}
	fmt.Fprintln(w)

	if len(r.Outcomes) > 0 {
		fmt.Fprintln(w)
		for _, o := range r.Outcomes {
			fmt.Fprintf(w, "  case %d [%s] %s", o.CaseID, o.TemplateID, o.Status)
			if len(o.Fields) > 0 {
				fmt.Fprintf(w, ": %s", strings.Join(o.Fields, ", "))
			}
			fmt.Fprintln(w)
		}
	}

	if len(r.Skipped) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Skipped:")
		for _, s := range r.Skipped {
			fmt.Fprintf(w, "  case %d: %s\n", s.CaseID, s.Reason)
		}
	}

	if len(r.Failures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failures:")
		for _, cf := range r.Failures {
			fmt.Fprintf(w, "  case %d [%s]: %s\n", cf.CaseID, cf.TemplateID, cf.Error)
		}
	}

	fmt.Fprintln(w)
	_, err := fmt.Fprintf(w, "Summary: %d updated, %d would update, %d unchanged, %d failed, %d skipped\n",
		len(r.UpdatedCaseIDs),
		len(r.WouldUpdateCaseIDs),
		r.Count(templater.StatusUnchanged),
		len(r.Failures),
		len(r.Skipped),
	)
	return err
}
