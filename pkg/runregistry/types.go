// Package runregistry persists reconciliation runs on disk so operators
// can list past runs and inspect their outcome.
package runregistry

import "time"

// RunState is the lifecycle state of a reconciliation run.
//
// NOTE: These values are persisted in run.json and are part of the stable
// on-disk contract.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateFindings  RunState = "findings"
	RunStateFailed    RunState = "failed"
	RunStateUnknown   RunState = "unknown"
)

// Terminal reports whether the run has ended.
func (s RunState) Terminal() bool {
	return s == RunStateSucceeded || s == RunStateFindings || s == RunStateFailed
}

// RunRecord is the persistent record written to run.json.
//
// The schema is designed for backward-compatible extension (additive fields).
type RunRecord struct {
	RunID      string         `json:"run_id"`
	State      RunState       `json:"state"`
	Constraint string         `json:"constraint,omitempty"`
	JobIDs     []string       `json:"job_ids,omitempty"`
	PID        int            `json:"pid,omitempty"`
	Host       string         `json:"host,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
	Counts     map[string]int `json:"counts,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Duration returns the run's wall time, or zero while it is running.
func (r RunRecord) Duration() time.Duration {
	if r.StartedAt == nil || r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(*r.StartedAt)
}
