package condor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHoldPolicy(t *testing.T) {
	policy, err := ParseHoldPolicy([]byte(`
rules:
  - name: vacate
    glob: "*vacated*"
  - regex: "(?i)^preempt"
`))
	require.NoError(t, err)

	assert.True(t, policy.Resumes("Job was vacated by startd"))
	assert.True(t, policy.Resumes("PREEMPTED by higher priority user"))
	assert.False(t, policy.Resumes("Job failed with exit code 1"))
}

func TestRulePolicy_GlobSpansSlashes(t *testing.T) {
	policy, err := NewRulePolicy([]HoldRule{{Glob: "*vacated*"}})
	require.NoError(t, err)

	assert.True(t, policy.Resumes("Error from slot1@node/7: job vacated"))
}

func TestRulePolicy_MatchReturnsRule(t *testing.T) {
	policy, err := NewRulePolicy([]HoldRule{
		{Name: "first", Glob: "a*"},
		{Name: "second", Regex: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, policy.Len())

	rule, ok := policy.Match("abc")
	require.True(t, ok)
	assert.Equal(t, "first", rule.Name)

	rule, ok = policy.Match("xbx")
	require.True(t, ok)
	assert.Equal(t, "second", rule.Name)

	_, ok = policy.Match("zzz")
	assert.False(t, ok)
}

func TestNewRulePolicy_Validation(t *testing.T) {
	tests := []struct {
		name    string
		rule    HoldRule
		errPart string
	}{
		{"both", HoldRule{Glob: "*", Regex: ".*"}, "mutually exclusive"},
		{"neither", HoldRule{Name: "empty"}, "hold rule empty: glob or regex is required"},
		{"bad glob", HoldRule{Glob: "[abc"}, "invalid glob"},
		{"bad regex", HoldRule{Regex: "("}, "invalid regex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRulePolicy([]HoldRule{tt.rule})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidHoldPolicy)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestParseHoldPolicy_SchemaValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown top-level key", "rulez:\n  - glob: \"*\"\n"},
		{"unknown rule key", "rules:\n  - pattern: \"*\"\n"},
		{"rule without matcher", "rules:\n  - name: lonely\n"},
		{"empty glob", "rules:\n  - glob: \"\"\n"},
		{"rules not a list", "rules: vacated\n"},
		{"not an object", "- glob: \"*\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHoldPolicy([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidHoldPolicy)
		})
	}

	t.Run("rule errors past the schema", func(t *testing.T) {
		for _, doc := range []string{
			"rules:\n  - glob: \"*\"\n    regex: \".*\"\n",
			"rules:\n  - glob: \"[abc\"\n",
			"rules:\n  - regex: \"(\"\n",
		} {
			_, err := ParseHoldPolicy([]byte(doc))
			require.Error(t, err, doc)
			assert.ErrorIs(t, err, ErrInvalidHoldPolicy, doc)
		}
	})

	t.Run("schema reference and json are accepted", func(t *testing.T) {
		policy, err := ParseHoldPolicy([]byte(`{"$schema": "https://schemas.kbase.us/jobwatch/v1/hold-rules.schema.json", "rules": [{"regex": "vacate"}]}`))
		require.NoError(t, err)
		assert.True(t, policy.Resumes("job vacated"))
	})
}

func TestParseHoldPolicy_EmptyIsNeverResumes(t *testing.T) {
	for _, doc := range []string{"rules: []\n", ""} {
		policy, err := ParseHoldPolicy([]byte(doc))
		require.NoError(t, err)
		assert.False(t, policy.Resumes("preemption"))
	}
}

func TestLoadHoldPolicy(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		policy, err := LoadHoldPolicy("")
		require.NoError(t, err)
		assert.False(t, policy.Resumes("anything"))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadHoldPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "holds.yaml")
		require.NoError(t, os.WriteFile(path, []byte("rules:\n  - glob: \"*vacated*\"\n"), 0o644))

		policy, err := LoadHoldPolicy(path)
		require.NoError(t, err)
		assert.True(t, policy.Resumes("job vacated"))
	})
}

func TestConstraints(t *testing.T) {
	assert.Equal(t, "JobStatus == 1 || JobStatus == 2", StatusConstraint(StatusIdle, StatusRunning))
	assert.Equal(t, ConstraintIdleAndRunning, StatusConstraint(StatusIdle, StatusRunning))
	assert.Equal(t, "", StatusConstraint())

	assert.Equal(t, `JobBatchName == "5d1eabc"`, BatchNameConstraint(`5d1e"abc`))
	assert.Equal(t, "njsrequest_cpus=4", CleanInput("njs, request_cpus = 4"))

	assert.Equal(t, "(JobStatus == 1) && (JobBatchName == \"x\")",
		And("JobStatus == 1", " ", BatchNameConstraint("x")))
}
