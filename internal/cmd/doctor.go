package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kbase/jobwatch/internal/config"
	"github.com/kbase/jobwatch/internal/observability"
	"github.com/kbase/jobwatch/pkg/condor"
)

var (
	doctorSkipStore bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment jobwatch needs: the scheduler
client, the process identity, the job store and the run registry.

Examples:
  jobwatch doctor               # Full environment check
  jobwatch doctor --skip-store  # Skip the job store connection`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorSkipStore, "skip-store", false, "Do not connect to the job store")
}

// doctorCheck is one diagnostic. Run returns a short detail on success.
type doctorCheck struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	bannerName := "doctor"
	if identity := GetAppIdentity(); identity != nil && identity.BinaryName != "" {
		bannerName = identity.BinaryName + " doctor"
	}
	observability.CLILogger.Info("=== " + bannerName + " ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	cfg, err := currentConfig(cmd.Context())
	if err != nil {
		observability.CLILogger.Error("Checking configuration... ❌ Cannot load configuration", zap.Error(err))
		return exitError(ExitUsage, "load configuration", err)
	}

	ok := runDoctorChecks(cmd.Context(), observability.CLILogger, doctorChecks(cfg, doctorSkipStore))

	observability.CLILogger.Info("")
	if ok {
		observability.CLILogger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")

	if !ok {
		return exitError(ExitFailure, "diagnostic checks failed", nil)
	}
	return nil
}

func runDoctorChecks(ctx context.Context, logger *zap.Logger, checks []doctorCheck) bool {
	allChecks := true
	for i, check := range checks {
		prefix := fmt.Sprintf("[%d/%d] Checking %s...", i+1, len(checks), check.name)
		detail, err := check.run(ctx)
		if err != nil {
			logger.Error(prefix+" ❌ "+err.Error(), zap.String("check", check.name))
			allChecks = false
			continue
		}
		logger.Info(prefix+" ✅ "+detail, zap.String("check", check.name))
	}
	return allChecks
}

func doctorChecks(cfg *config.Config, skipStore bool) []doctorCheck {
	checks := []doctorCheck{
		{name: "Go version", run: checkGoVersion},
		{name: "configuration", run: func(context.Context) (string, error) {
			if err := cfg.Validate(); err != nil {
				return "", err
			}
			return "valid", nil
		}},
		{name: "process identity", run: func(context.Context) (string, error) {
			if err := ensureNotRoot(); err != nil {
				return "", err
			}
			return fmt.Sprintf("uid %d", os.Geteuid()), nil
		}},
		{name: "scheduler client", run: func(ctx context.Context) (string, error) {
			binary := cfg.Condor.CLIConfig().Binary
			if err := (schedulerHealthChecker{binary: binary}).CheckHealth(ctx); err != nil {
				return "", err
			}
			return binary, nil
		}},
		{name: "hold rules", run: func(context.Context) (string, error) {
			if cfg.Condor.HoldRules == "" {
				return "none configured", nil
			}
			if _, err := condor.LoadHoldPolicy(cfg.Condor.HoldRules); err != nil {
				return "", err
			}
			return cfg.Condor.HoldRules, nil
		}},
		{name: "run registry", run: func(context.Context) (string, error) {
			return checkWritableDir(cfg.Runs.Dir)
		}},
	}
	if !skipStore {
		checks = append(checks, doctorCheck{name: "job store", run: func(ctx context.Context) (string, error) {
			return checkStore(ctx, cfg)
		}})
	}
	return checks
}

func checkGoVersion(context.Context) (string, error) {
	return fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH), nil
}

func checkWritableDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("runs.dir is not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return "", fmt.Errorf("%s not writable: %w", dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return filepath.Clean(dir), nil
}

func checkStore(ctx context.Context, cfg *config.Config) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := openStore(ctx, cfg, observability.CLILogger)
	if err != nil {
		return "", err
	}
	defer func() { _ = store.Close(context.Background()) }()

	if err := store.Ping(ctx); err != nil {
		return "", err
	}
	return cfg.Store.Driver, nil
}
