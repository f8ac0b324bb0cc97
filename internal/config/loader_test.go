package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps tests away from the developer's own config files.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	chdirForTest(t, dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Setenv(DeploymentConfigEnv, "")
}

// chdirForTest mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolate(t)
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)

		assert.Equal(t, "condor_q", cfg.Condor.Binary)
		assert.Equal(t, 30*time.Second, cfg.Condor.Timeout)
		assert.Equal(t, 2.0, cfg.Condor.QueryRate)

		assert.Equal(t, "mongo", cfg.Store.Driver)
		assert.Equal(t, 27017, cfg.Store.Mongo.Port)
		assert.Equal(t, "jobstate", cfg.Store.Mongo.Collection)
		assert.Equal(t, 10*time.Second, cfg.Store.Mongo.ConnectTimeout)
		assert.NotEmpty(t, cfg.Runs.Dir)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("JOBWATCH_PORT", "3000")
		t.Setenv("JOBWATCH_LOG_LEVEL", "warn")
		t.Setenv("JOBWATCH_STORE_DRIVER", "sqlite")
		t.Setenv("JOBWATCH_CONDOR_TIMEOUT", "45s")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, "sqlite", cfg.Store.Driver)
		assert.Equal(t, 45*time.Second, cfg.Condor.Timeout)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		isolate(t)
		t.Setenv("JOBWATCH_PORT", "4000")

		cfg, err := Load(ctx, map[string]any{
			"server": map[string]any{"port": 5000},
		})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("InvalidValues", func(t *testing.T) {
		isolate(t)
		_, err := Load(ctx, map[string]any{"logging": map[string]any{"level": "shouty"}})
		assert.Error(t, err)

		_, err = Load(ctx, map[string]any{"store": map[string]any{"driver": "postgres"}})
		assert.Error(t, err)
	})
}

func TestLoadWithOptions_YAMLFile(t *testing.T) {
	isolate(t)
	path := writeFile(t, "jobwatch.yaml", `
server:
  port: 8181
condor:
  binary: /opt/condor/bin/condor_q
  timeout: 1m
  constraint: "JobStatus == 5"
store:
  driver: mongo
  mongo:
    host: mongo-a,mongo-b
    database: njs
`)
	t.Setenv("JOBWATCH_MONGO_HOST", "from-env")

	cfg, err := LoadWithOptions(context.Background(), Options{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "/opt/condor/bin/condor_q", cfg.Condor.Binary)
	assert.Equal(t, time.Minute, cfg.Condor.Timeout)
	assert.Equal(t, "JobStatus == 5", cfg.Condor.Constraint)
	assert.Equal(t, "from-env", cfg.Store.Mongo.Host)
	assert.Equal(t, "njs", cfg.Store.Mongo.Database)

	cli := cfg.Condor.CLIConfig()
	assert.Equal(t, "/opt/condor/bin/condor_q", cli.Binary)
	assert.Equal(t, time.Minute, cli.Timeout)
}

func TestLoadWithOptions_MissingFile(t *testing.T) {
	isolate(t)
	_, err := LoadWithOptions(context.Background(), Options{ConfigFile: "/nonexistent/jobwatch.yaml"})
	assert.Error(t, err)
}

func TestLoadWithOptions_DeploymentConfig(t *testing.T) {
	isolate(t)
	path := writeFile(t, "deploy.cfg", `
[NarrativeJobService]
ujs-mongodb-host = ci-mongo
ujs-mongodb-database = userjobstate
ujs-mongodb-user = ujsserv
ujs-mongodb-pwd = secret
mongodb-database = exec_engine
`)

	t.Run("explicit path", func(t *testing.T) {
		cfg, err := LoadWithOptions(context.Background(), Options{DeploymentConfig: path})
		require.NoError(t, err)

		m := cfg.Store.Mongo
		assert.Equal(t, "ci-mongo", m.Host)
		assert.Equal(t, "userjobstate", m.AuthDatabase)
		assert.Equal(t, "exec_engine", m.Database)
		assert.Equal(t, "ujsserv", m.Username)
		assert.Equal(t, "secret", m.Password)
		assert.Equal(t, "jobstate", m.Collection)
		assert.Equal(t, path, cfg.DeploymentConfig)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv(DeploymentConfigEnv, path)
		cfg, err := Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ci-mongo", cfg.Store.Mongo.Host)
	})

	t.Run("env beats deployment file", func(t *testing.T) {
		t.Setenv("JOBWATCH_STORE_MONGO_HOST", "override")
		cfg, err := LoadWithOptions(context.Background(), Options{DeploymentConfig: path})
		require.NoError(t, err)
		assert.Equal(t, "override", cfg.Store.Mongo.Host)
	})
}

func TestLoadDeploymentConfig_Errors(t *testing.T) {
	_, err := LoadDeploymentConfig(filepath.Join(t.TempDir(), "missing.cfg"))
	assert.Error(t, err)

	noSection := writeFile(t, "a.cfg", "[Other]\nkey = v\n")
	_, err = LoadDeploymentConfig(noSection)
	assert.Error(t, err)

	noHost := writeFile(t, "b.cfg", "[NarrativeJobService]\nmongodb-database = x\n")
	_, err = LoadDeploymentConfig(noHost)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ujs-mongodb-host")
}

func TestGetConfig(t *testing.T) {
	isolate(t)
	cfg, err := Load(context.Background(), map[string]any{"server": map[string]any{"port": 7001}})
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
}

func TestEnvSpecs(t *testing.T) {
	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	names := make(map[string]bool)
	for _, spec := range specs {
		names[spec.Name] = true
		assert.Contains(t, spec.Name, "JOBWATCH_")
		assert.NotEmpty(t, spec.Path, "env var %s should have a path", spec.Name)
	}
	assert.True(t, names["JOBWATCH_LOG_LEVEL"])
	assert.True(t, names["JOBWATCH_PORT"])
	assert.True(t, names["JOBWATCH_MONGO_HOST"])
}

func TestFlatten(t *testing.T) {
	got := flatten("", map[string]any{
		"server": map[string]any{"port": 1},
		"top":    "x",
	})
	assert.Equal(t, map[string]any{"server.port": 1, "top": "x"}, got)
}
