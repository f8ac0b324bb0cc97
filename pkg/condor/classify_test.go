package condor

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestWillComplete_ProgressingStates(t *testing.T) {
	for _, s := range []JobStatus{StatusUnexpanded, StatusIdle, StatusRunning} {
		t.Run(s.String(), func(t *testing.T) {
			ok, err := WillComplete(Record{BatchName: "job-1", Status: s})
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestWillComplete_TerminalStates(t *testing.T) {
	for _, s := range []JobStatus{StatusRemoved, StatusCompleted, StatusSubmissionErr, StatusNotFound} {
		t.Run(s.String(), func(t *testing.T) {
			ok, err := WillComplete(Record{BatchName: "job-1", Status: s})
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestWillComplete_Scenarios(t *testing.T) {
	t.Run("running", func(t *testing.T) {
		ok, err := WillComplete(Record{Status: 2})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("completed", func(t *testing.T) {
		ok, err := WillComplete(Record{Status: 4})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("held without reason", func(t *testing.T) {
		_, err := WillComplete(Record{BatchName: "5d1e2f", Status: 5})
		require.Error(t, err)

		var dErr *DataIntegrityError
		require.True(t, errors.As(err, &dErr))
		assert.Equal(t, "5d1e2f", dErr.BatchName)
		assert.True(t, IsDataIntegrity(err))
		assert.Contains(t, err.Error(), "5d1e2f")
	})

	t.Run("held with reason uses default policy", func(t *testing.T) {
		ok, err := WillComplete(Record{Status: 5, HoldReason: strPtr("preemption")})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("held with empty reason is not an integrity fault", func(t *testing.T) {
		ok, err := WillComplete(Record{Status: StatusHeld, HoldReason: strPtr("")})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestClassifier_HoldPolicy(t *testing.T) {
	policy := HoldPolicyFunc(func(reason string) bool {
		return strings.Contains(reason, "vacated")
	})
	c := NewClassifier(policy)

	outcome, err := c.Classify(Record{Status: StatusHeld, HoldReason: strPtr("job was vacated")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeHeldTransient, outcome)
	assert.True(t, outcome.WillComplete())

	outcome, err = c.Classify(Record{Status: StatusHeld, HoldReason: strPtr("exit code 1")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeHeld, outcome)
	assert.False(t, outcome.WillComplete())

	// Missing reason is a fault regardless of policy.
	_, err = c.Classify(Record{BatchName: "b", Status: StatusHeld})
	assert.True(t, IsDataIntegrity(err))
}

func TestClassify_Outcomes(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   Outcome
	}{
		{StatusUnexpanded, OutcomeProgressing},
		{StatusIdle, OutcomeProgressing},
		{StatusRunning, OutcomeProgressing},
		{StatusRemoved, OutcomeTerminal},
		{StatusCompleted, OutcomeTerminal},
		{StatusSubmissionErr, OutcomeTerminal},
		{StatusNotFound, OutcomeMissing},
	}
	for _, tt := range tests {
		got, err := Classify(Record{Status: tt.status})
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "status %s", tt.status)
	}
}

func TestNilClassifierUsesNeverResumes(t *testing.T) {
	var c *Classifier
	ok, err := c.WillComplete(Record{Status: StatusHeld, HoldReason: strPtr("anything")})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobStatus_String(t *testing.T) {
	assert.Equal(t, "Running", StatusRunning.String())
	assert.Equal(t, "Submission_err", StatusSubmissionErr.String())
	assert.Equal(t, "Not found in condor", StatusNotFound.String())
	assert.Equal(t, "Not found in condor", JobStatus(42).String())
}

func TestParseJobStatus(t *testing.T) {
	assert.Equal(t, StatusHeld, ParseJobStatus(5))
	assert.Equal(t, StatusUnexpanded, ParseJobStatus(0))
	assert.Equal(t, StatusNotFound, ParseJobStatus(7))
	assert.Equal(t, StatusNotFound, ParseJobStatus(-1))
}

func TestPrivilegeCheck(t *testing.T) {
	err := CheckNotRoot(0)
	require.Error(t, err)
	assert.True(t, IsPrivilegeViolation(err))

	assert.NoError(t, CheckNotRoot(1000))
}
