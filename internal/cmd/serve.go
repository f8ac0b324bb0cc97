package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kbase/jobwatch/internal/config"
	"github.com/kbase/jobwatch/internal/observability"
	"github.com/kbase/jobwatch/internal/server"
	"github.com/kbase/jobwatch/internal/server/handlers"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the jobwatch HTTP API: health probes, scheduler job listing,
tracking document lookup and on-demand reconciliation.

The server refuses to start as root, the same as the CLI commands that
query the scheduler.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind address (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides server.port)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := currentConfig(cmd.Context())
	if err != nil {
		return exitError(ExitUsage, "load configuration", err)
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logger, err := observability.NewLogger("jobwatch", cfg.Logging)
	if err != nil {
		return exitError(ExitUsage, "configure logging", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := requireNotRoot(); err != nil {
		return err
	}

	classifier, err := newClassifier(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return classifyError("open job store", err)
	}
	defer func() { _ = store.Close(context.Background()) }()

	runs, err := runStore(cfg)
	if err != nil {
		return exitError(ExitUsage, "run registry", err)
	}

	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("identity", identityHealthChecker{identity: GetAppIdentity()})
	health.RegisterChecker("scheduler", schedulerHealthChecker{binary: cfg.Condor.CLIConfig().Binary})
	health.RegisterChecker("store", handlers.CheckerFor(store))

	api := &handlers.JobsAPI{
		Querier:    newQuerier(cfg, logger),
		Store:      store,
		Classifier: classifier,
		Constraint: defaultConstraint(cfg, ""),
		Runs:       runs,
		Logger:     logger,
	}

	logger.Debug("Building HTTP server", serverConfigSummary(cfg)...)
	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithJobsAPI(api),
		server.WithLogger(logger),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return exitError(ExitFailure, "http server", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitError(ExitFailure, "graceful shutdown", err)
	}
	if err := <-errCh; err != nil {
		return exitError(ExitFailure, "http server", err)
	}
	logger.Info("Server stopped")
	return nil
}

// identityHealthChecker reports a misconfigured binary identity.
type identityHealthChecker struct {
	identity *AppIdentity
}

func (c identityHealthChecker) CheckHealth(context.Context) error {
	if c.identity == nil {
		return errors.New("app identity not initialized")
	}
	switch {
	case c.identity.BinaryName == "":
		return errors.New("missing binary name")
	case c.identity.EnvPrefix == "":
		return errors.New("missing env prefix")
	case c.identity.ConfigName == "":
		return errors.New("missing config name")
	}
	return nil
}

// schedulerHealthChecker reports whether condor_q can be executed.
type schedulerHealthChecker struct {
	binary   string
	lookPath func(string) (string, error)
}

func (c schedulerHealthChecker) CheckHealth(context.Context) error {
	lookPath := c.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath(c.binary); err != nil {
		return fmt.Errorf("%s not executable: %w", c.binary, err)
	}
	return nil
}

var _ handlers.HealthChecker = identityHealthChecker{}
var _ handlers.HealthChecker = schedulerHealthChecker{}

func serverConfigSummary(cfg *config.Config) []zap.Field {
	return []zap.Field{
		zap.String("addr", cfg.Server.Addr()),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("condor_binary", cfg.Condor.CLIConfig().Binary),
	}
}
