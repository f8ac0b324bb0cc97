package cmd

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kbase/jobwatch/pkg/condor"
	"github.com/kbase/jobwatch/pkg/jobstore"
	"github.com/kbase/jobwatch/pkg/runregistry"
)

// Process exit codes. Values above 63 follow sysexits.h.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitFindings    = 3
	ExitDataErr     = 65
	ExitUnavailable = 69
	ExitNoPerm      = 77
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// exitCodeFor maps an error to the exit code the process should use.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch {
	case condor.IsPrivilegeViolation(err):
		return ExitNoPerm
	case condor.IsDataIntegrity(err):
		return ExitDataErr
	case condor.IsSchedulerUnavailable(err),
		errors.Is(err, jobstore.ErrStoreUnavailable):
		return ExitUnavailable
	case errors.Is(err, jobstore.ErrInvalidConfig),
		errors.Is(err, runregistry.ErrAmbiguousRunID):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// classifyError wraps err with the exit code its kind implies.
func classifyError(message string, err error) error {
	if err == nil {
		return nil
	}
	return exitError(exitCodeFor(err), message, err)
}

// ExitWithCode logs and terminates the process.
func ExitWithCode(logger *zap.Logger, code int, message string, err error) {
	if logger != nil {
		fields := []zap.Field{zap.Int("exit_code", code)}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		logger.Error(message, fields...)
		_ = logger.Sync()
	} else {
		fmt.Fprintf(os.Stderr, "%s: %v\n", message, err)
	}
	os.Exit(code)
}
