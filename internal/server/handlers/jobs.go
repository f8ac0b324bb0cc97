package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/kbase/jobwatch/internal/errors"
	"github.com/kbase/jobwatch/pkg/condor"
	"github.com/kbase/jobwatch/pkg/jobstore"
	"github.com/kbase/jobwatch/pkg/output"
	"github.com/kbase/jobwatch/pkg/reconcile"
	"github.com/kbase/jobwatch/pkg/runregistry"
)

// maxReconcileBody caps POST /v1/reconcile bodies.
const maxReconcileBody = 1 << 20

// JobsAPI serves the job and reconciliation endpoints.
type JobsAPI struct {
	Querier    condor.Querier
	Store      jobstore.Store
	Classifier *condor.Classifier

	// Constraint is the default scheduler poll constraint.
	Constraint string

	// Runs records reconciliation runs when set.
	Runs *runregistry.Store

	Logger *zap.Logger
}

// JobsResponse is the body of GET /v1/jobs.
type JobsResponse struct {
	Constraint string              `json:"constraint"`
	Count      int                 `json:"count"`
	Jobs       []*output.JobRecord `json:"jobs"`
}

// ReconcileRequest is the body of POST /v1/reconcile.
type ReconcileRequest struct {
	JobIDs []string `json:"job_ids"`
}

// ReconcileResponse is the body of a reconciliation result.
type ReconcileResponse struct {
	RunID      string                  `json:"run_id,omitempty"`
	Constraint string                  `json:"constraint"`
	Counts     map[string]int          `json:"counts"`
	Findings   []*output.FindingRecord `json:"findings"`
	Errors     []string                `json:"errors,omitempty"`
}

// ListJobs serves GET /v1/jobs.
//
// Query parameters: status (comma-separated codes) and batch_name. Without
// either, the configured default constraint is used.
func (a *JobsAPI) ListJobs(w http.ResponseWriter, r *http.Request) {
	constraint, err := a.constraintFromQuery(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	jobs, err := reconcile.ActiveJobs(r.Context(), a.Querier, a.Classifier, constraint)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, JobsResponse{
		Constraint: constraint,
		Count:      len(jobs),
		Jobs:       jobs,
	})
}

// GetJob serves GET /v1/jobs/{jobID}. The fields query parameter limits
// the returned document fields.
func (a *JobsAPI) GetJob(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		respondWithError(w, r, apperrors.NewExternalServiceError("job store not configured"))
		return
	}
	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("job id is required"))
		return
	}

	doc, err := a.Store.GetJob(r.Context(), jobID, splitList(r.URL.Query().Get("fields")))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, doc)
}

// Reconcile serves POST /v1/reconcile. An empty body reconciles every job
// the scheduler reports.
func (a *JobsAPI) Reconcile(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		respondWithError(w, r, apperrors.NewExternalServiceError("job store not configured"))
		return
	}

	var req ReconcileRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxReconcileBody))
	if err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError("read request body"))
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			respondWithError(w, r, apperrors.NewInvalidInputError("request body must be {\"job_ids\": [...]}"))
			return
		}
	}

	rec := &reconcile.Reconciler{
		Querier:    a.Querier,
		Store:      a.Store,
		Classifier: a.Classifier,
		Constraint: a.Constraint,
		Logger:     a.logger(),
	}

	var run *runregistry.RunRecord
	if a.Runs != nil {
		run, err = a.Runs.Begin(rec.Constraint, req.JobIDs)
		if err != nil {
			a.logger().Warn("Failed to record run", zap.Error(err))
		}
	}

	report, err := rec.Run(r.Context(), req.JobIDs)
	a.finishRun(run, report, err)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	resp := ReconcileResponse{
		Constraint: report.Constraint,
		Counts:     make(map[string]int, len(report.Counts)),
		Findings:   make([]*output.FindingRecord, 0, len(report.Findings)),
	}
	if run != nil {
		resp.RunID = run.RunID
	}
	for action, n := range report.Counts {
		resp.Counts[string(action)] = n
	}
	for _, f := range report.Findings {
		resp.Findings = append(resp.Findings, reconcile.FindingRecord(f))
		if f.Err != nil {
			resp.Errors = append(resp.Errors, f.Err.Error())
		}
	}
	apperrors.WriteJSON(w, http.StatusOK, resp)
}

// ListRuns serves GET /v1/runs.
func (a *JobsAPI) ListRuns(w http.ResponseWriter, r *http.Request) {
	if a.Runs == nil {
		apperrors.WriteJSON(w, http.StatusOK, []runregistry.RunRecord{})
		return
	}
	runs, err := a.Runs.List()
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, runs)
}

// GetRun serves GET /v1/runs/{runID}.
func (a *JobsAPI) GetRun(w http.ResponseWriter, r *http.Request) {
	if a.Runs == nil {
		respondWithError(w, r, runregistry.ErrRunNotFound)
		return
	}
	run, err := a.Runs.Get(chi.URLParam(r, "runID"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, run)
}

func (a *JobsAPI) finishRun(run *runregistry.RunRecord, report *reconcile.Report, runErr error) {
	if run == nil {
		return
	}
	state := runregistry.RunStateSucceeded
	var counts map[string]int
	if report != nil {
		counts = make(map[string]int, len(report.Counts))
		for action, n := range report.Counts {
			counts[string(action)] = n
		}
		if report.HasFindings() {
			state = runregistry.RunStateFindings
		}
	}
	if err := a.Runs.Finish(run, state, counts, runErr); err != nil {
		a.logger().Warn("Failed to record run", zap.String("run_id", run.RunID), zap.Error(err))
	}
}

func (a *JobsAPI) constraintFromQuery(r *http.Request) (string, error) {
	q := r.URL.Query()

	var parts []string
	if raw := q.Get("status"); raw != "" {
		var statuses []condor.JobStatus
		for _, s := range splitList(raw) {
			code, err := strconv.Atoi(s)
			if err != nil {
				return "", apperrors.NewInvalidInputError("status must be a comma-separated list of integers")
			}
			statuses = append(statuses, condor.JobStatus(code))
		}
		parts = append(parts, condor.StatusConstraint(statuses...))
	}
	if name := q.Get("batch_name"); name != "" {
		parts = append(parts, condor.BatchNameConstraint(name))
	}
	if len(parts) == 0 {
		return a.defaultConstraint(), nil
	}
	return condor.And(parts...), nil
}

func (a *JobsAPI) defaultConstraint() string {
	if a.Constraint == "" {
		return condor.ConstraintIdleOrRunningOrHeld
	}
	return a.Constraint
}

func (a *JobsAPI) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// CheckerFor adapts a store ping to a health checker.
func CheckerFor(store jobstore.Store) HealthChecker {
	return HealthCheckerFunc(func(ctx context.Context) error {
		if store == nil {
			return errors.New("job store not configured")
		}
		return store.Ping(ctx)
	})
}
