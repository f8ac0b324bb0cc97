// Package reconcile compares scheduler state against tracking documents.
//
// A Reconciler polls the schedd once, loads the matching tracking
// documents and derives one Finding per job. Findings tell the caller
// which tracked jobs can no longer complete even though their document
// still says they are running.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kbase/jobwatch/pkg/condor"
	"github.com/kbase/jobwatch/pkg/jobstore"
	"github.com/kbase/jobwatch/pkg/output"
)

// Action is the reconciliation verdict for one job.
type Action string

const (
	// ActionOK means the job may still complete and its document is open.
	ActionOK Action = "ok"

	// ActionStale means the job will not complete but its document is
	// neither complete nor errored.
	ActionStale Action = "stale"

	// ActionSettled means the document is already complete or errored.
	ActionSettled Action = "settled"

	// ActionUntracked means no tracking document exists for the job.
	ActionUntracked Action = "untracked"

	// ActionIntegrityFault means the scheduler record could not be classified.
	ActionIntegrityFault Action = "integrity_fault"
)

// Actions lists every action in report order.
func Actions() []Action {
	return []Action{ActionOK, ActionStale, ActionSettled, ActionUntracked, ActionIntegrityFault}
}

// documentFields is the projection loaded for every target.
var documentFields = []string{
	jobstore.FieldJobID,
	jobstore.FieldComplete,
	jobstore.FieldError,
	jobstore.FieldStatus,
}

// Finding is the reconciliation result for one job.
type Finding struct {
	JobID    string            `json:"job_id"`
	Action   Action            `json:"action"`
	Record   condor.Record     `json:"record"`
	Outcome  condor.Outcome    `json:"outcome,omitempty"`
	Document jobstore.Document `json:"document,omitempty"`

	// Err is set for integrity faults.
	Err error `json:"-"`
}

// WillComplete reports whether the scheduler expects the job to finish.
func (f Finding) WillComplete() bool {
	return f.Outcome.WillComplete()
}

// Report is the result of one reconciliation run.
type Report struct {
	Constraint string         `json:"constraint"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration_ns"`
	Findings   []Finding      `json:"findings"`
	Counts     map[Action]int `json:"counts"`
}

// Err joins the integrity errors of every faulted finding. It returns nil
// when the run had no integrity faults.
func (r *Report) Err() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, f := range r.Findings {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errors.Join(errs...)
}

// HasFindings reports whether any job is stale or faulted.
func (r *Report) HasFindings() bool {
	if r == nil {
		return false
	}
	return r.Counts[ActionStale] > 0 || r.Counts[ActionIntegrityFault] > 0
}

// Filter returns the findings with one of the given actions.
func (r *Report) Filter(actions ...Action) []Finding {
	want := make(map[Action]bool, len(actions))
	for _, a := range actions {
		want[a] = true
	}
	var out []Finding
	for _, f := range r.Findings {
		if want[f.Action] {
			out = append(out, f)
		}
	}
	return out
}

// Reconciler joins scheduler state with tracking documents.
type Reconciler struct {
	Querier    condor.Querier
	Store      jobstore.Store
	Classifier *condor.Classifier

	// Constraint restricts the scheduler poll. Empty means
	// condor.ConstraintIdleOrRunningOrHeld.
	Constraint string

	Logger *zap.Logger
}

// Run performs one reconciliation pass.
//
// When ids is empty every job returned by the scheduler is reconciled.
// Otherwise only the given ids are, and ids the scheduler did not return
// are classified as not found. Scheduler and store failures abort the run.
func (r *Reconciler) Run(ctx context.Context, ids []string) (*Report, error) {
	if r.Querier == nil {
		return nil, errors.New("reconcile: querier is required")
	}
	if r.Store == nil {
		return nil, errors.New("reconcile: store is required")
	}
	logger := r.logger()
	constraint := r.constraint()
	started := time.Now()

	jobs, err := condor.FetchActiveJobs(ctx, r.Querier, constraint)
	if err != nil {
		return nil, fmt.Errorf("reconcile: fetch scheduler jobs: %w", err)
	}

	targets := targetIDs(ids, jobs)
	docs, err := r.Store.GetJobs(ctx, targets, documentFields)
	if err != nil {
		return nil, fmt.Errorf("reconcile: load tracking documents: %w", err)
	}

	report := &Report{
		Constraint: constraint,
		StartedAt:  started.UTC(),
		Findings:   make([]Finding, 0, len(targets)),
		Counts:     make(map[Action]int, len(Actions())),
	}
	for _, id := range targets {
		rec, ok := jobs[id]
		if !ok {
			rec = condor.NotFoundRecord(id)
		}
		doc, tracked := docs[id]

		f := r.evaluate(id, rec, doc, tracked)
		if f.Err != nil {
			logger.Warn("Integrity fault",
				zap.String("job_id", id),
				zap.Error(f.Err))
		}
		report.Findings = append(report.Findings, f)
		report.Counts[f.Action]++
	}
	report.Duration = time.Since(started)

	logger.Info("Reconciliation complete",
		zap.Int("jobs", len(report.Findings)),
		zap.Int("stale", report.Counts[ActionStale]),
		zap.Int("integrity_faults", report.Counts[ActionIntegrityFault]),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (r *Reconciler) evaluate(id string, rec condor.Record, doc jobstore.Document, tracked bool) Finding {
	f := Finding{JobID: id, Record: rec, Document: doc}

	outcome, err := r.Classifier.Classify(rec)
	if err != nil {
		f.Action = ActionIntegrityFault
		f.Err = err
		return f
	}
	f.Outcome = outcome

	switch {
	case !tracked:
		f.Action = ActionUntracked
	case doc.Complete() || doc.Errored():
		f.Action = ActionSettled
	case outcome.WillComplete():
		f.Action = ActionOK
	default:
		f.Action = ActionStale
	}
	return f
}

func (r *Reconciler) constraint() string {
	if r.Constraint == "" {
		return condor.ConstraintIdleOrRunningOrHeld
	}
	return r.Constraint
}

func (r *Reconciler) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// targetIDs returns the explicit ids, deduplicated, or every scheduler job.
// The result is sorted.
func targetIDs(ids []string, jobs map[string]condor.Record) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(ids) > 0 {
		for _, id := range jobstore.NormalizeIDs(ids) {
			add(id)
		}
	} else {
		for id := range jobs {
			add(id)
		}
	}
	sort.Strings(out)
	return out
}

// FindingRecord converts a finding to its JSONL payload.
func FindingRecord(f Finding) *output.FindingRecord {
	rec := &output.FindingRecord{
		JobID:        f.JobID,
		Action:       string(f.Action),
		Status:       int(f.Record.Status),
		StatusName:   f.Record.Status.String(),
		Outcome:    string(f.Outcome),
		Tracked:    f.Document != nil,
		HoldReason: f.Record.HoldReason,
	}
	if f.Document != nil {
		rec.Complete = f.Document.Complete()
		rec.Errored = f.Document.Errored()
		rec.TrackingStatus = f.Document.Status()
	}
	if f.Err != nil {
		rec.Error = f.Err.Error()
	} else {
		rec.WillComplete = output.Bool(f.WillComplete())
	}
	return rec
}

// Emit writes every finding, an error record per integrity fault and a
// final summary to w.
func (r *Report) Emit(ctx context.Context, w output.Writer) error {
	errCount := 0
	for _, f := range r.Findings {
		if err := w.WriteFinding(ctx, FindingRecord(f)); err != nil {
			return err
		}
		if f.Err == nil {
			continue
		}
		errCount++
		if err := w.WriteError(ctx, &output.ErrorRecord{
			Code:    output.ErrCodeDataIntegrity,
			Message: f.Err.Error(),
			JobID:   f.JobID,
		}); err != nil {
			return err
		}
	}

	actions := make(map[string]int, len(r.Counts))
	for a, n := range r.Counts {
		actions[string(a)] = n
	}
	return w.WriteSummary(ctx, &output.SummaryRecord{
		Jobs:          len(r.Findings),
		Actions:       actions,
		Constraint:    r.Constraint,
		Duration:      r.Duration,
		DurationHuman: r.Duration.Round(time.Millisecond).String(),
		Errors:        errCount,
	})
}
