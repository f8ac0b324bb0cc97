package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/jobwatch/pkg/condor"
	"github.com/kbase/jobwatch/pkg/jobstore"
	"github.com/kbase/jobwatch/pkg/runregistry"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"not found", fmt.Errorf("get: %w", jobstore.ErrNotFound), CodeNotFound, http.StatusNotFound},
		{"run not found", runregistry.ErrRunNotFound, CodeNotFound, http.StatusNotFound},
		{"invalid input", NewInvalidInputError("bad"), CodeInvalidInput, http.StatusBadRequest},
		{"integrity", &condor.DataIntegrityError{BatchName: "j", Status: condor.StatusHeld}, CodeDataIntegrity, http.StatusBadGateway},
		{"privilege", &condor.PrivilegeViolationError{EUID: 0}, CodePrivilegeViolation, http.StatusInternalServerError},
		{"scheduler down", fmt.Errorf("x: %w", condor.ErrSchedulerUnavailable), CodeServiceUnavailable, http.StatusServiceUnavailable},
		{"store down", jobstore.ErrStoreUnavailable, CodeServiceUnavailable, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := Classify(tt.err)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, StatusFor(appErr.Code))
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	err := WrapInternal(context.Background(), cause, "wrapped")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "wrapped: cause", err.Error())
	assert.Equal(t, "plain", NewNotFoundError("plain").Error())
}

func TestRespondWithError(t *testing.T) {
	t.Run("internal cause hidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		rec := httptest.NewRecorder()

		RespondWithError(rec, req, errors.New("secret detail"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body HTTPErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, CodeInternal, body.Error.Code)
		assert.NotContains(t, body.Error.Message, "secret")
	})

	t.Run("details and request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req = req.WithContext(context.WithValue(req.Context(), chimw.RequestIDKey, "req-9"))
		rec := httptest.NewRecorder()

		RespondWithError(rec, req, NewExternalServiceError("schedd down").WithDetails(map[string]any{"binary": "condor_q"}))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body HTTPErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "schedd down", body.Error.Message)
		assert.Equal(t, "condor_q", body.Error.Details["binary"])
		assert.Equal(t, "req-9", body.Error.RequestID)
	})

	t.Run("integrity message includes job", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		rec := httptest.NewRecorder()

		RespondWithError(rec, req, &condor.DataIntegrityError{BatchName: "job-7", Status: condor.StatusHeld})

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		var body HTTPErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Contains(t, body.Error.Message, "job-7")
	})
}
