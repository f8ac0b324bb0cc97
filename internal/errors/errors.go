// Package errors maps domain failures onto stable application error codes
// and HTTP responses.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kbase/jobwatch/internal/observability"
	"github.com/kbase/jobwatch/pkg/condor"
	"github.com/kbase/jobwatch/pkg/jobstore"
	"github.com/kbase/jobwatch/pkg/runregistry"
)

// Application error codes.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeDataIntegrity      = "DATA_INTEGRITY"
	CodePrivilegeViolation = "PRIVILEGE_VIOLATION"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// AppError carries a stable code alongside a user-facing message.
type AppError struct {
	Code    string
	Message string
	Details map[string]any
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches response details and returns e.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// NewInvalidInputError reports a rejected request.
func NewInvalidInputError(message string) *AppError {
	return &AppError{Code: CodeInvalidInput, Message: message}
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

// NewExternalServiceError reports an unreachable dependency.
func NewExternalServiceError(message string) *AppError {
	return &AppError{Code: CodeServiceUnavailable, Message: message}
}

// WrapInternal wraps err as an internal error and logs it with the
// request id carried by ctx, if any.
func WrapInternal(ctx context.Context, err error, message string) *AppError {
	fields := []zap.Field{zap.Error(err)}
	if id := requestIDFrom(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	observability.CLILogger.Debug(message, fields...)
	return &AppError{Code: CodeInternal, Message: message, Cause: err}
}

// Classify returns the AppError describing err. Errors that are already
// AppErrors are returned unchanged.
func Classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, jobstore.ErrNotFound), errors.Is(err, runregistry.ErrRunNotFound):
		return &AppError{Code: CodeNotFound, Message: "resource not found", Cause: err}
	case errors.Is(err, jobstore.ErrInvalidConfig), errors.Is(err, runregistry.ErrAmbiguousRunID):
		return &AppError{Code: CodeInvalidInput, Message: "invalid input", Cause: err}
	case condor.IsDataIntegrity(err):
		return &AppError{Code: CodeDataIntegrity, Message: "scheduler returned inconsistent job data", Cause: err}
	case condor.IsPrivilegeViolation(err):
		return &AppError{Code: CodePrivilegeViolation, Message: "scheduler queries must not run as root", Cause: err}
	case condor.IsSchedulerUnavailable(err), errors.Is(err, jobstore.ErrStoreUnavailable):
		return &AppError{Code: CodeServiceUnavailable, Message: "dependent service unavailable", Cause: err}
	default:
		return &AppError{Code: CodeInternal, Message: "internal error", Cause: err}
	}
}

// StatusFor returns the HTTP status for an application error code.
func StatusFor(code string) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeDataIntegrity:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the JSON body of every error response.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// HTTPError is the error object inside HTTPErrorResponse.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// RespondWithError writes err as a JSON error response.
//
// Internal causes are logged, never echoed to the client.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := Classify(err)
	status := StatusFor(appErr.Code)

	msg := appErr.Message
	if appErr.Code != CodeInternal && appErr.Code != CodePrivilegeViolation && appErr.Cause != nil {
		msg = appErr.Error()
	}

	body := HTTPErrorResponse{Error: HTTPError{
		Code:      appErr.Code,
		Message:   msg,
		Details:   appErr.Details,
		RequestID: requestIDFrom(r.Context()),
	}}

	if status >= http.StatusInternalServerError {
		observability.CLILogger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", appErr.Code),
			zap.Error(err))
	}

	WriteJSON(w, status, body)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
