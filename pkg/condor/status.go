// Package condor classifies HTCondor job states for a job-tracking portal and
// queries the schedd for the jobs the portal submitted.
//
// The classifier is pure and safe for concurrent use. The only external call
// is the Querier boundary, which FetchActiveJobs drives with a fixed attribute
// projection.
package condor

// JobStatus is the numeric HTCondor JobStatus attribute.
//
// StatusNotFound is not an HTCondor value; it marks a job the schedd no
// longer (or never) knew about.
type JobStatus int

const (
	StatusNotFound      JobStatus = -1
	StatusUnexpanded    JobStatus = 0
	StatusIdle          JobStatus = 1
	StatusRunning       JobStatus = 2
	StatusRemoved       JobStatus = 3
	StatusCompleted     JobStatus = 4
	StatusHeld          JobStatus = 5
	StatusSubmissionErr JobStatus = 6
)

var statusNames = map[JobStatus]string{
	StatusUnexpanded:    "Unexpanded",
	StatusIdle:          "Idle",
	StatusRunning:       "Running",
	StatusRemoved:       "Removed",
	StatusCompleted:     "Completed",
	StatusHeld:          "Held",
	StatusSubmissionErr: "Submission_err",
	StatusNotFound:      "Not found in condor",
}

// String returns the portal's display name for the status.
func (s JobStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return statusNames[StatusNotFound]
}

// Known reports whether s is one of the enumerated values.
func (s JobStatus) Known() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseJobStatus converts a raw JobStatus code. Codes outside the enumeration
// (for example 7, Suspended) are reported as StatusNotFound.
func ParseJobStatus(code int64) JobStatus {
	s := JobStatus(code)
	if !s.Known() {
		return StatusNotFound
	}
	return s
}
