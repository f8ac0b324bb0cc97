package condor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	stdout []byte
	stderr []byte
	err    error
	block  bool

	calls   int
	gotName string
	gotArgs []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls++
	f.gotName = name
	f.gotArgs = args
	if f.block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	return f.stdout, f.stderr, f.err
}

func nonRoot() int { return 1000 }

func TestCLIQuerier_Args(t *testing.T) {
	q := NewCLIQuerier(CLIConfig{})

	args := q.Args(ConstraintIdleAndRunning, []string{AttrBatchName, AttrStatus})
	assert.Equal(t, []string{
		"-allusers", "-json",
		"-constraint", ConstraintIdleAndRunning,
		"-attributes", "JobBatchName,JobStatus",
	}, args)

	assert.Equal(t, []string{"-allusers", "-json"}, q.Args("  ", nil))
}

func TestCLIQuerier_Defaults(t *testing.T) {
	q := NewCLIQuerier(CLIConfig{})
	assert.Equal(t, "condor_q", q.Config().Binary)
	assert.Equal(t, 30*time.Second, q.Config().Timeout)
}

func TestCLIQuerier_Query(t *testing.T) {
	runner := &fakeRunner{stdout: []byte(`[
  {"JobBatchName": "job-1", "JobStatus": 2, "ClusterId": 7},
  {"JobStatus": 1}
]`)}
	q := NewCLIQuerier(CLIConfig{Binary: "/usr/bin/condor_q"}, WithRunner(runner), WithEUID(nonRoot))

	ads, err := q.Query(context.Background(), ConstraintIdleAndRunning, Projection())
	require.NoError(t, err)
	require.Len(t, ads, 2)
	assert.Equal(t, "/usr/bin/condor_q", runner.gotName)
	assert.Contains(t, runner.gotArgs, "-constraint")

	jobs, err := FetchActiveJobs(context.Background(), q, ConstraintIdleAndRunning)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(7), jobs["job-1"].ClusterID)
}

func TestCLIQuerier_EmptyOutput(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("\n")}
	q := NewCLIQuerier(CLIConfig{}, WithRunner(runner), WithEUID(nonRoot))

	ads, err := q.Query(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Empty(t, ads)
}

func TestCLIQuerier_RefusesRoot(t *testing.T) {
	runner := &fakeRunner{}
	q := NewCLIQuerier(CLIConfig{}, WithRunner(runner), WithEUID(func() int { return 0 }))

	_, err := q.Query(context.Background(), "", nil)
	require.Error(t, err)
	assert.True(t, IsPrivilegeViolation(err))
	assert.Equal(t, 0, runner.calls, "condor_q must not run as root")
}

func TestCLIQuerier_CommandFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1"), stderr: []byte("Failed to connect to schedd\n")}
	q := NewCLIQuerier(CLIConfig{}, WithRunner(runner), WithEUID(nonRoot))

	_, err := q.Query(context.Background(), ConstraintIdleAndRunning, nil)
	require.Error(t, err)
	assert.True(t, IsSchedulerUnavailable(err))

	var qErr *QueryError
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, "Failed to connect to schedd", qErr.Stderr)
}

func TestCLIQuerier_Timeout(t *testing.T) {
	runner := &fakeRunner{block: true}
	q := NewCLIQuerier(CLIConfig{Timeout: 20 * time.Millisecond}, WithRunner(runner), WithEUID(nonRoot))

	_, err := q.Query(context.Background(), "", nil)
	require.Error(t, err)
	assert.True(t, IsSchedulerUnavailable(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestCLIQuerier_InvalidJSON(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("-- Schedd: submit.example.org")}
	q := NewCLIQuerier(CLIConfig{}, WithRunner(runner), WithEUID(nonRoot))

	_, err := q.Query(context.Background(), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode condor_q json")
}

func TestCLIQuerier_RateLimitHonorsContext(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("[]")}
	q := NewCLIQuerier(CLIConfig{QueryRate: 0.001}, WithRunner(runner), WithEUID(nonRoot))

	_, err := q.Query(context.Background(), "", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = q.Query(ctx, "", nil)
	require.Error(t, err)
	assert.Equal(t, 1, runner.calls)
}
