package condor

import (
	"errors"
	"fmt"
)

// Sentinel errors for scheduler operations.
var (
	// ErrDataIntegrity indicates the schedd returned an inconsistent job record.
	ErrDataIntegrity = errors.New("scheduler data integrity fault")

	// ErrPrivilegeViolation indicates the query path was invoked with a
	// process identity the deployment forbids.
	ErrPrivilegeViolation = errors.New("privilege violation")

	// ErrSchedulerUnavailable indicates the schedd could not be queried.
	ErrSchedulerUnavailable = errors.New("scheduler unavailable")
)

// DataIntegrityError reports a held job that carries no hold reason.
type DataIntegrityError struct {
	// BatchName identifies the offending job.
	BatchName string

	// Status is the status the schedd reported.
	Status JobStatus
}

// Error implements the error interface.
func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("job %s: status %s without hold reason", e.BatchName, e.Status)
}

// Is makes errors.Is(err, ErrDataIntegrity) match.
func (e *DataIntegrityError) Is(target error) bool {
	return target == ErrDataIntegrity
}

// PrivilegeViolationError reports a scheduler query attempted as root.
type PrivilegeViolationError struct {
	EUID int
}

// Error implements the error interface.
func (e *PrivilegeViolationError) Error() string {
	return fmt.Sprintf("refusing to query scheduler as euid %d: the condor password file is not readable by root", e.EUID)
}

// Is makes errors.Is(err, ErrPrivilegeViolation) match.
func (e *PrivilegeViolationError) Is(target error) bool {
	return target == ErrPrivilegeViolation
}

// QueryError wraps a failed schedd query with context.
type QueryError struct {
	// Op is the command or operation that failed (e.g., "condor_q").
	Op string

	// Constraint is the requirements expression that was sent.
	Constraint string

	// Stderr holds diagnostic output from the scheduler tool, if any.
	Stderr string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Err)
	if e.Constraint != "" {
		msg = fmt.Sprintf("%s [constraint %q]: %v", e.Op, e.Constraint, e.Err)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsDataIntegrity returns true if the error is a scheduler data-integrity fault.
func IsDataIntegrity(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}

// IsPrivilegeViolation returns true if the error is a process identity violation.
func IsPrivilegeViolation(err error) bool {
	return errors.Is(err, ErrPrivilegeViolation)
}

// IsSchedulerUnavailable returns true if the schedd could not be reached.
func IsSchedulerUnavailable(err error) bool {
	return errors.Is(err, ErrSchedulerUnavailable)
}
