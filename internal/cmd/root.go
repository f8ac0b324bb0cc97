// Package cmd implements the jobwatch command line.
package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kbase/jobwatch/internal/config"
	"github.com/kbase/jobwatch/internal/observability"
	"github.com/kbase/jobwatch/internal/server/handlers"
)

// AppIdentity names the binary and its configuration surface.
type AppIdentity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

var (
	versionInfo = struct {
		Version   string
		Commit    string
		BuildDate string
	}{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

	appIdentity *AppIdentity

	cfgFile          string
	deploymentConfig string
	logLevel         string
	verbose          bool

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "jobwatch",
	Short: "Track HTCondor jobs against the job tracking database",
	Long: `jobwatch polls the HTCondor schedd, classifies each job and compares the
result with the job tracking database, so jobs that can no longer finish
are found before their tracking documents go stale.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initApp,
}

func init() {
	appIdentity = &AppIdentity{
		BinaryName: "jobwatch",
		EnvPrefix:  config.EnvPrefix,
		ConfigName: config.ConfigName,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ./jobwatch.yaml or user config dir)")
	pf.StringVar(&deploymentConfig, "deployment-config", "", "Legacy deployment INI file (default: $KB_DEPLOYMENT_CONFIG)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// SetVersionInfo records build metadata.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(version, commit, buildDate)
}

// GetAppIdentity returns the application identity, or nil before init.
func GetAppIdentity() *AppIdentity {
	return appIdentity
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	observability.InitCLILogger("jobwatch", false)

	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return ExitOK
	}

	code := exitCodeFor(err)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) && isUsageError(err) {
		code = ExitUsage
	}
	observability.CLILogger.Error("Command failed",
		zap.Int("exit_code", code),
		zap.Error(err))
	_ = observability.CLILogger.Sync()
	return code
}

func initApp(cmd *cobra.Command, _ []string) error {
	observability.InitCLILogger("jobwatch", verbose)
	if logLevel != "" {
		if err := observability.SetCLILogLevel("jobwatch", logLevel); err != nil {
			return exitError(ExitUsage, "invalid --log-level", err)
		}
	}

	cfg, err := config.LoadWithOptions(cmd.Context(), config.Options{
		ConfigFile:       cfgFile,
		DeploymentConfig: deploymentConfig,
	})
	if err != nil {
		return exitError(ExitUsage, "load configuration", err)
	}
	appConfig = cfg

	observability.CLILogger.Debug("Configuration loaded",
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("condor_binary", cfg.Condor.Binary),
		zap.String("runs_dir", cfg.Runs.Dir))
	return nil
}

// currentConfig returns the loaded config, falling back to defaults.
func currentConfig(ctx context.Context) (*config.Config, error) {
	if appConfig != nil {
		return appConfig, nil
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	appConfig = cfg
	return cfg, nil
}

func isUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "accepts ", "requires at least", "invalid argument"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
