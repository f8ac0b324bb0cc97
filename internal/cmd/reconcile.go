package cmd

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kbase/jobwatch/internal/observability"
	"github.com/kbase/jobwatch/pkg/condor"
	"github.com/kbase/jobwatch/pkg/jobstore"
	"github.com/kbase/jobwatch/pkg/output"
	"github.com/kbase/jobwatch/pkg/reconcile"
	"github.com/kbase/jobwatch/pkg/runregistry"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [job_id...]",
	Short: "Compare scheduler state with tracking documents",
	Long: `Poll the schedd once, load the tracking documents for the polled jobs (or
the given ids) and emit one JSONL finding per job followed by a summary.

Actions:
  ok               scheduler says the job may complete; document is open
  stale            job will not complete; document is still open
  settled          document is already complete or errored
  untracked        no tracking document exists
  integrity_fault  held job reported without a hold reason

Exit codes:
  0   no integrity faults (and no stale jobs with --fail-on-findings)
  3   stale jobs found and --fail-on-findings set
  65  integrity faults found
  69  scheduler or job store unavailable
  77  invoked as root`,
	RunE: runReconcile,
}

type reconcileOptions struct {
	constraint     string
	record         bool
	failOnFindings bool
}

type reconcileDeps struct {
	querier    condor.Querier
	store      jobstore.Store
	classifier *condor.Classifier
	runs       *runregistry.Store
	logger     *zap.Logger
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().String("constraint", "", "Scheduler constraint (default: condor.constraint or idle/running/held)")
	reconcileCmd.Flags().Bool("record", false, "Record the run in the run registry")
	reconcileCmd.Flags().Bool("fail-on-findings", false, "Exit 3 when stale jobs are found")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	constraint, _ := cmd.Flags().GetString("constraint")
	record, _ := cmd.Flags().GetBool("record")
	failOnFindings, _ := cmd.Flags().GetBool("fail-on-findings")

	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(ExitUsage, "load configuration", err)
	}
	if err := requireNotRoot(); err != nil {
		return err
	}
	classifier, err := newClassifier(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, observability.CLILogger)
	if err != nil {
		return classifyError("open job store", err)
	}
	defer func() { _ = store.Close(ctx) }()

	deps := reconcileDeps{
		querier:    newQuerier(cfg, observability.CLILogger),
		store:      store,
		classifier: classifier,
		logger:     observability.CLILogger,
	}
	if record {
		deps.runs, err = runStore(cfg)
		if err != nil {
			return exitError(ExitUsage, "run registry", err)
		}
	}

	return executeReconcile(ctx, os.Stdout, deps, reconcileOptions{
		constraint:     defaultConstraint(cfg, constraint),
		record:         record,
		failOnFindings: failOnFindings,
	}, args)
}

// executeReconcile runs one pass, writes JSONL to w and returns an
// *ExitError when the exit code must be non-zero.
func executeReconcile(ctx context.Context, w io.Writer, deps reconcileDeps, opts reconcileOptions, ids []string) error {
	logger := deps.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	runID := uuid.NewString()
	var run *runregistry.RunRecord
	if opts.record && deps.runs != nil {
		var err error
		run, err = deps.runs.Begin(opts.constraint, ids)
		if err != nil {
			return exitError(ExitFailure, "record run", err)
		}
		runID = run.RunID
	}

	r := &reconcile.Reconciler{
		Querier:    deps.querier,
		Store:      deps.store,
		Classifier: deps.classifier,
		Constraint: opts.constraint,
		Logger:     logger,
	}
	report, runErr := r.Run(ctx, ids)

	if run != nil {
		state := runregistry.RunStateSucceeded
		var counts map[string]int
		if report != nil {
			counts = actionCounts(report)
			if report.HasFindings() {
				state = runregistry.RunStateFindings
			}
		}
		if err := deps.runs.Finish(run, state, counts, runErr); err != nil {
			logger.Warn("Failed to record run", zap.String("run_id", run.RunID), zap.Error(err))
		}
	}

	writer := output.NewJSONLWriter(w, runID, "condor")
	defer func() { _ = writer.Close() }()

	if runErr != nil {
		_ = writer.WriteError(ctx, &output.ErrorRecord{
			Code:    errorRecordCode(runErr),
			Message: runErr.Error(),
		})
		return classifyError("reconcile", runErr)
	}

	if err := report.Emit(ctx, writer); err != nil {
		return exitError(ExitFailure, "write output", err)
	}

	if err := report.Err(); err != nil {
		return exitError(ExitDataErr, "integrity faults found", err)
	}
	if opts.failOnFindings && report.Counts[reconcile.ActionStale] > 0 {
		return exitError(ExitFindings, "stale jobs found", nil)
	}
	return nil
}

func actionCounts(report *reconcile.Report) map[string]int {
	counts := make(map[string]int, len(report.Counts))
	for action, n := range report.Counts {
		counts[string(action)] = n
	}
	return counts
}

func errorRecordCode(err error) string {
	switch exitCodeFor(err) {
	case ExitUnavailable:
		return output.ErrCodeUnavailable
	case ExitDataErr:
		return output.ErrCodeDataIntegrity
	default:
		return output.ErrCodeInternal
	}
}
