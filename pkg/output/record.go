// Package output provides JSONL output for scheduler polls and
// reconciliation runs.
//
// Output is structured as typed record envelopes containing jobs,
// findings, errors, and summaries. Each line is a self-contained JSON
// object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: jobwatch.<type>.v<version>
const (
	// TypeJob identifies scheduler job records.
	TypeJob = "jobwatch.job.v1"

	// TypeFinding identifies reconciliation findings.
	TypeFinding = "jobwatch.finding.v1"

	// TypeError identifies error records.
	TypeError = "jobwatch.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "jobwatch.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "jobwatch.finding.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for this invocation.
	RunID string `json:"run_id"`

	// Source identifies the scheduler the data came from (e.g., "condor").
	Source string `json:"source"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// JobRecord is the data payload for one scheduler job.
type JobRecord struct {
	BatchName      string  `json:"batch_name"`
	ClusterID      int64   `json:"cluster_id,omitempty"`
	Status         int     `json:"status"`
	StatusName     string  `json:"status_name"`
	HoldReason     *string `json:"hold_reason,omitempty"`
	RemoteHost     string  `json:"remote_host,omitempty"`
	LastRemoteHost string  `json:"last_remote_host,omitempty"`

	// Outcome and WillComplete are unset when classification failed; see Error.
	Outcome      string `json:"outcome,omitempty"`
	WillComplete *bool  `json:"will_complete,omitempty"`
	Error        string `json:"error,omitempty"`
}

// FindingRecord is the data payload for one reconciled job.
type FindingRecord struct {
	JobID        string `json:"job_id"`
	Action       string `json:"action"`
	Status       int    `json:"status"`
	StatusName   string `json:"status_name"`
	Outcome      string `json:"outcome,omitempty"`
	WillComplete *bool  `json:"will_complete,omitempty"`

	// Tracked is false when no tracking document exists.
	Tracked        bool   `json:"tracked"`
	Complete       bool   `json:"complete"`
	Errored        bool   `json:"errored"`
	TrackingStatus string `json:"tracking_status,omitempty"`

	HoldReason *string `json:"hold_reason,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// ErrorRecord is the data payload for errors.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// JobID is the job related to this error, if applicable.
	JobID string `json:"job_id,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeDataIntegrity = "DATA_INTEGRITY"
	ErrCodeUnavailable   = "UNAVAILABLE"
	ErrCodeInternal      = "INTERNAL"
)

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	// Jobs is the number of jobs examined.
	Jobs int `json:"jobs"`

	// Actions counts findings per action.
	Actions map[string]int `json:"actions"`

	// Constraint is the scheduler constraint used for the poll.
	Constraint string `json:"constraint,omitempty"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// Errors is the count of per-job errors encountered.
	Errors int `json:"errors"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
