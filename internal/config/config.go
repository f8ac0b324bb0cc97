// Package config loads jobwatch configuration.
//
// Sources are layered lowest to highest: built-in defaults, an optional
// YAML file, the legacy deployment INI file, JOBWATCH_* environment
// variables and finally runtime overrides supplied by the caller.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbase/jobwatch/internal/observability"
	"github.com/kbase/jobwatch/pkg/condor"
	"github.com/kbase/jobwatch/pkg/jobstore"
)

// Config is the fully resolved application configuration.
type Config struct {
	Server  ServerConfig                `mapstructure:"server" yaml:"server"`
	Logging observability.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Condor  CondorConfig                `mapstructure:"condor" yaml:"condor"`
	Store   jobstore.Config             `mapstructure:"store" yaml:"store"`
	Runs    RunsConfig                  `mapstructure:"runs" yaml:"runs"`

	// DeploymentConfig is the path of the legacy INI deployment file.
	DeploymentConfig string `mapstructure:"deployment_config" yaml:"deployment_config"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CondorConfig configures scheduler access.
type CondorConfig struct {
	Binary    string        `mapstructure:"binary" yaml:"binary"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	QueryRate float64       `mapstructure:"query_rate" yaml:"query_rate"`

	// Constraint is the default poll constraint.
	Constraint string `mapstructure:"constraint" yaml:"constraint"`

	// HoldRules is an optional path to a hold-reason rules file.
	HoldRules string `mapstructure:"hold_rules" yaml:"hold_rules"`
}

// CLIConfig converts to the querier configuration.
func (c CondorConfig) CLIConfig() condor.CLIConfig {
	cfg := condor.DefaultCLIConfig()
	if strings.TrimSpace(c.Binary) != "" {
		cfg.Binary = c.Binary
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	cfg.QueryRate = c.QueryRate
	return cfg
}

// RunsConfig configures the run registry.
type RunsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Validate rejects inconsistent configurations. Store settings are
// validated when the store is opened, since not every command needs one.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Condor.Timeout < 0 {
		return fmt.Errorf("condor.timeout must not be negative")
	}
	if c.Condor.QueryRate < 0 {
		return fmt.Errorf("condor.query_rate must not be negative")
	}
	if _, err := observability.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Profile) {
	case "", observability.ProfileStructured, observability.ProfileConsole:
	default:
		return fmt.Errorf("logging.profile %q must be structured or console", c.Logging.Profile)
	}
	switch strings.ToLower(c.Store.Driver) {
	case "", jobstore.DriverMongo, jobstore.DriverSQLite:
	default:
		return fmt.Errorf("store.driver %q must be mongo or sqlite", c.Store.Driver)
	}
	return nil
}
