package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerHealthChecker(t *testing.T) {
	t.Run("binary found", func(t *testing.T) {
		checker := schedulerHealthChecker{
			binary:   "condor_q",
			lookPath: func(string) (string, error) { return "/usr/bin/condor_q", nil },
		}
		assert.NoError(t, checker.CheckHealth(context.Background()))
	})

	t.Run("binary missing", func(t *testing.T) {
		checker := schedulerHealthChecker{
			binary:   "condor_q",
			lookPath: func(string) (string, error) { return "", errors.New("not found") },
		}
		err := checker.CheckHealth(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "condor_q not executable")
	})
}

func TestIdentityHealthChecker(t *testing.T) {
	tests := []struct {
		name       string
		identity   *AppIdentity
		errContain string
	}{
		{
			name:     "all fields valid",
			identity: &AppIdentity{BinaryName: "jobwatch", EnvPrefix: "JOBWATCH", ConfigName: "jobwatch"},
		},
		{
			name:       "nil identity",
			errContain: "not initialized",
		},
		{
			name:       "missing binary name",
			identity:   &AppIdentity{EnvPrefix: "JOBWATCH", ConfigName: "jobwatch"},
			errContain: "missing binary name",
		},
		{
			name:       "missing env prefix",
			identity:   &AppIdentity{BinaryName: "jobwatch", ConfigName: "jobwatch"},
			errContain: "missing env prefix",
		},
		{
			name:       "missing config name",
			identity:   &AppIdentity{BinaryName: "jobwatch", EnvPrefix: "JOBWATCH"},
			errContain: "missing config name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := identityHealthChecker{identity: tt.identity}.CheckHealth(context.Background())
			if tt.errContain == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContain)
		})
	}
}
