package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kbase/jobwatch/internal/config"
	"github.com/kbase/jobwatch/internal/observability"
	"github.com/kbase/jobwatch/pkg/condor"
	"github.com/kbase/jobwatch/pkg/jobstore"
	"github.com/kbase/jobwatch/pkg/runregistry"
)

// Seams replaced in tests.
var (
	newQuerier = func(cfg *config.Config, logger *zap.Logger) condor.Querier {
		return condor.NewCLIQuerier(cfg.Condor.CLIConfig(), condor.WithLogger(logger))
	}
	openStore = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (jobstore.Store, error) {
		return jobstore.Open(ctx, cfg.Store, logger)
	}
	ensureNotRoot = condor.EnsureNotRoot
)

// newClassifier builds a classifier from the configured hold rules.
func newClassifier(cfg *config.Config) (*condor.Classifier, error) {
	if cfg.Condor.HoldRules == "" {
		return condor.NewClassifier(nil), nil
	}
	policy, err := condor.LoadHoldPolicy(cfg.Condor.HoldRules)
	if err != nil {
		return nil, exitError(ExitUsage, "load hold rules", err)
	}
	observability.CLILogger.Debug("Loaded hold rules", zap.String("path", cfg.Condor.HoldRules))
	return condor.NewClassifier(policy), nil
}

// requireNotRoot runs the process identity precondition for scheduler access.
func requireNotRoot() error {
	if err := ensureNotRoot(); err != nil {
		return exitError(ExitNoPerm, "refusing to query the scheduler", err)
	}
	return nil
}

func defaultConstraint(cfg *config.Config, override string) string {
	if override != "" {
		return override
	}
	if cfg.Condor.Constraint != "" {
		return cfg.Condor.Constraint
	}
	return condor.ConstraintIdleOrRunningOrHeld
}

func runStore(cfg *config.Config) (*runregistry.Store, error) {
	if cfg.Runs.Dir == "" {
		return nil, fmt.Errorf("runs.dir is not configured")
	}
	return runregistry.NewStore(cfg.Runs.Dir), nil
}
