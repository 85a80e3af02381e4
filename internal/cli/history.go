package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/trutils/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	RunID    string
	CaseID   int64
}

// RunDetail is one run with its outcomes.
type RunDetail struct {
	Run      store.RunRecord       `json:"run"`
	Outcomes []store.OutcomeRecord `json:"outcomes"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded templater runs",
		Long: `Show templater runs recorded with --history-db.

Without --run, lists runs newest first. With --run, shows what happened to
every candidate case in that run. With --case, shows every recorded outcome
for one case.

Examples:
  trutils history --history-db runs.db
  trutils history --history-db runs.db --limit 5 --format json
  trutils history --history-db runs.db --run 01890a5d-ac96-774b-bcce-b302099a8057
  trutils history --history-db runs.db --case 1234`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "history-db", "", "path to SQLite run history (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 for all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the outcomes of one run")
	cmd.Flags().Int64Var(&opts.CaseID, "case", 0, "show every outcome recorded for one case")
	_ = cmd.MarkFlagRequired("history-db")
	cmd.MarkFlagsMutuallyExclusive("run", "case")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := setupLogging(opts.RootOptions, cmd.ErrOrStderr())

	// Opening would create an empty database; a typo should not.
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, CodeHistory, fmt.Errorf("history database not found: %s", opts.Database))
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, CodeHistory, err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing history database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	switch {
	case opts.RunID != "":
		return showRun(ctx, formatter, st, opts.RunID)
	case opts.CaseID != 0:
		outcomes, err := st.CaseHistory(ctx, opts.CaseID)
		if err != nil {
			return formatter.Fail(ExitCommandError, CodeHistory, err)
		}
		if formatter.JSON() {
			return formatter.Success(outcomes)
		}
		writeCaseHistory(formatter.Writer, opts.CaseID, outcomes)
		return nil
	default:
		runs, err := st.ListRuns(ctx, opts.Limit)
		if err != nil {
			return formatter.Fail(ExitCommandError, CodeHistory, err)
		}
		if formatter.JSON() {
			return formatter.Success(runs)
		}
		writeRunList(formatter.Writer, runs)
		return nil
	}
}

func showRun(ctx context.Context, f *OutputFormatter, st *store.Store, runID string) error {
	run, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return f.Fail(ExitCommandError, CodeRunNotFound, fmt.Errorf("run %s not found", runID))
	}
	if err != nil {
		return f.Fail(ExitCommandError, CodeHistory, err)
	}
	outcomes, err := st.ReadOutcomes(ctx, runID)
	if err != nil {
		return f.Fail(ExitCommandError, CodeHistory, err)
	}

	detail := RunDetail{Run: run, Outcomes: outcomes}
	if f.JSON() {
		return f.Respond(CLIResponse{Status: "ok", Data: detail, RunID: run.ID})
	}
	writeRunDetail(f.Writer, detail)
	return nil
}

func writeRunList(w io.Writer, runs []store.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		mode := ""
		if r.DryRun {
			mode = " dry-run"
		}
		fmt.Fprintf(w, "%s  %s%s  project %d suite %d  updated %d, would update %d, unchanged %d, failed %d\n",
			r.StartedAt.UTC().Format(time.RFC3339), r.ID, mode, r.ProjectID, r.SuiteID,
			r.Updated, r.WouldUpdate, r.Unchanged, r.Failed)
	}
}

func writeRunDetail(w io.Writer, d RunDetail) {
	r := d.Run
	fmt.Fprintf(w, "Run %s\n", r.ID)
	fmt.Fprintf(w, "  Started:   %s\n", r.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "  Finished:  %s\n", r.FinishedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "  Project:   %d, suite %d\n", r.ProjectID, r.SuiteID)
	fmt.Fprintf(w, "  Dry run:   %t\n", r.DryRun)
	fmt.Fprintf(w, "  Marker:    %s\n", r.Marker)
	fmt.Fprintf(w, "  Templates: %s\n", strings.Join(r.TemplateIDs, ", "))
	fmt.Fprintf(w, "  Snapshot:  %d cases, sha256 %s\n", r.CasesFetched, r.SnapshotDigest)

	if len(d.Outcomes) > 0 {
		fmt.Fprintln(w)
		for _, o := range d.Outcomes {
			fmt.Fprintf(w, "  %3d  case %d [%s] %s", o.Position, o.CaseID, o.TemplateID, o.Status)
			if len(o.Fields) > 0 {
				fmt.Fprintf(w, ": %s", strings.Join(o.Fields, ", "))
			}
			if o.Error != "" {
				fmt.Fprintf(w, " (%s)", o.Error)
			}
			fmt.Fprintln(w)
		}
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(w, "  skipped case %d: %s\n", s.CaseID, s.Reason)
	}
}

func writeCaseHistory(w io.Writer, caseID int64, outcomes []store.OutcomeRecord) {
	if len(outcomes) == 0 {
		fmt.Fprintf(w, "No outcomes recorded for case %d.\n", caseID)
		return
	}
	fmt.Fprintf(w, "Case %d\n", caseID)
	for _, o := range outcomes {
		fmt.Fprintf(w, "  %s [%s] %s", o.RunID, o.TemplateID, o.Status)
		if len(o.Fields) > 0 {
			fmt.Fprintf(w, ": %s", strings.Join(o.Fields, ", "))
		}
		fmt.Fprintln(w)
	}
}
