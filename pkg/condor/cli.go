package condor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CommandRunner executes an external command and returns its output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// CLIConfig configures the condor_q based querier.
type CLIConfig struct {
	// Binary is the condor_q executable name or path.
	Binary string

	// Timeout bounds a single condor_q invocation.
	Timeout time.Duration

	// QueryRate caps condor_q invocations per second (0 = unlimited).
	QueryRate float64
}

// DefaultCLIConfig returns the defaults used by the portal.
func DefaultCLIConfig() CLIConfig {
	return CLIConfig{
		Binary:  "condor_q",
		Timeout: 30 * time.Second,
	}
}

// CLIQuerier implements Querier by shelling out to condor_q.
//
// Every query first checks the process identity; see CheckNotRoot.
type CLIQuerier struct {
	cfg     CLIConfig
	runner  CommandRunner
	limiter *rate.Limiter
	euid    func() int
	logger  *zap.Logger
}

// CLIOption customizes a CLIQuerier.
type CLIOption func(*CLIQuerier)

// WithRunner replaces the command runner (tests, wrappers).
func WithRunner(r CommandRunner) CLIOption {
	return func(q *CLIQuerier) { q.runner = r }
}

// WithLogger sets the logger used for query diagnostics.
func WithLogger(l *zap.Logger) CLIOption {
	return func(q *CLIQuerier) { q.logger = l }
}

// WithEUID overrides the effective uid lookup.
func WithEUID(fn func() int) CLIOption {
	return func(q *CLIQuerier) { q.euid = fn }
}

// NewCLIQuerier creates a querier. Zero config values fall back to
// DefaultCLIConfig.
func NewCLIQuerier(cfg CLIConfig, opts ...CLIOption) *CLIQuerier {
	def := DefaultCLIConfig()
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = def.Binary
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	q := &CLIQuerier{
		cfg:    cfg,
		runner: ExecRunner{},
		euid:   os.Geteuid,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = zap.NewNop()
	}
	if cfg.QueryRate > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(cfg.QueryRate), 1)
	}
	return q
}

// Config returns the effective configuration.
func (q *CLIQuerier) Config() CLIConfig {
	return q.cfg
}

// Args returns the condor_q arguments for a query.
func (q *CLIQuerier) Args(requirements string, projection []string) []string {
	args := []string{"-allusers", "-json"}
	if r := strings.TrimSpace(requirements); r != "" {
		args = append(args, "-constraint", r)
	}
	if len(projection) > 0 {
		args = append(args, "-attributes", strings.Join(projection, ","))
	}
	return args
}

// Query implements Querier.
func (q *CLIQuerier) Query(ctx context.Context, requirements string, projection []string) ([]ClassAd, error) {
	if err := CheckNotRoot(q.euid()); err != nil {
		return nil, err
	}

	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, q.cfg.Timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, err := q.runner.Run(ctx, q.cfg.Binary, q.Args(requirements, projection)...)
	if err != nil {
		qerr := &QueryError{
			Op:         q.cfg.Binary,
			Constraint: requirements,
			Stderr:     strings.TrimSpace(string(stderr)),
			Err:        fmt.Errorf("%w: %v", ErrSchedulerUnavailable, err),
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			qerr.Err = fmt.Errorf("%w: timed out after %s", ErrSchedulerUnavailable, q.cfg.Timeout)
		}
		return nil, qerr
	}

	ads, err := ParseClassAds(stdout)
	if err != nil {
		return nil, &QueryError{Op: q.cfg.Binary, Constraint: requirements, Err: err}
	}

	q.logger.Debug("Queried schedd",
		zap.String("constraint", requirements),
		zap.Int("ads", len(ads)),
		zap.Duration("elapsed", time.Since(start)))
	return ads, nil
}

// ParseClassAds decodes `condor_q -json` output. condor_q prints nothing at
// all when no job matches, so empty input yields no ads.
func ParseClassAds(data []byte) ([]ClassAd, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var ads []ClassAd
	if err := json.Unmarshal(data, &ads); err != nil {
		return nil, fmt.Errorf("decode condor_q json: %w", err)
	}
	return ads, nil
}

var _ Querier = (*CLIQuerier)(nil)
