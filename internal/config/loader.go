package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "JOBWATCH"

	// ConfigName is the base name of the YAML config file.
	ConfigName = "jobwatch"

	// DeploymentConfigEnv names the legacy deployment INI file.
	DeploymentConfigEnv = "KB_DEPLOYMENT_CONFIG"
)

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// EnvSpec maps an environment variable onto a config key.
type EnvSpec struct {
	Name string
	Path string
}

// Options controls where Load looks for files.
type Options struct {
	// ConfigFile is an explicit YAML file; when empty the default search
	// paths are used and a missing file is not an error.
	ConfigFile string

	// DeploymentConfig is an explicit legacy INI file. When empty,
	// KB_DEPLOYMENT_CONFIG is consulted.
	DeploymentConfig string
}

// Load resolves configuration with default search paths.
//
// Later overrides win over earlier ones and over every other source.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadWithOptions(ctx, Options{}, overrides...)
}

// LoadWithOptions resolves configuration and stores it for GetConfig.
func LoadWithOptions(_ context.Context, opts Options, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := readConfigFile(v, opts.ConfigFile); err != nil {
		return nil, err
	}

	deployment := strings.TrimSpace(opts.DeploymentConfig)
	if deployment == "" {
		deployment = strings.TrimSpace(os.Getenv(DeploymentConfigEnv))
	}
	if deployment == "" {
		deployment = v.GetString("deployment_config")
	}
	if deployment != "" {
		legacy, err := LoadDeploymentConfig(deployment)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(map[string]any{"store": map[string]any{"mongo": legacy.toMap()}}); err != nil {
			return nil, fmt.Errorf("merge deployment config: %w", err)
		}
		v.Set("deployment_config", deployment)
	}

	bindEnv(v)

	for _, o := range overrides {
		// v.Set ranks above environment variables; merged config does not.
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("condor.binary", "condor_q")
	v.SetDefault("condor.timeout", "30s")
	v.SetDefault("condor.query_rate", 2.0)
	v.SetDefault("condor.constraint", "")
	v.SetDefault("condor.hold_rules", "")

	v.SetDefault("store.driver", "mongo")
	v.SetDefault("store.mongo.host", "")
	v.SetDefault("store.mongo.port", 27017)
	v.SetDefault("store.mongo.username", "")
	v.SetDefault("store.mongo.password", "")
	v.SetDefault("store.mongo.auth_database", "")
	v.SetDefault("store.mongo.database", "")
	v.SetDefault("store.mongo.collection", "jobstate")
	v.SetDefault("store.mongo.connect_timeout", "10s")
	v.SetDefault("store.sqlite.path", "")

	v.SetDefault("runs.dir", defaultRunsDir())
	v.SetDefault("deployment_config", "")
}

func defaultRunsDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, ConfigName, "runs")
	}
	return filepath.Join(os.TempDir(), ConfigName, "runs")
}

func readConfigFile(v *viper.Viper, path string) error {
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName(ConfigName)
	for _, dir := range getUserConfigPaths() {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func getUserConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, ConfigName))
	}
	return paths
}

// getEnvSpecs lists the short environment aliases. Every other key is
// reachable as JOBWATCH_<SECTION>_<KEY>.
func getEnvSpecs() []EnvSpec {
	return []EnvSpec{
		{Name: EnvPrefix + "_HOST", Path: "server.host"},
		{Name: EnvPrefix + "_PORT", Path: "server.port"},
		{Name: EnvPrefix + "_READ_TIMEOUT", Path: "server.read_timeout"},
		{Name: EnvPrefix + "_SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
		{Name: EnvPrefix + "_LOG_LEVEL", Path: "logging.level"},
		{Name: EnvPrefix + "_LOG_PROFILE", Path: "logging.profile"},
		{Name: EnvPrefix + "_CONDOR_Q", Path: "condor.binary"},
		{Name: EnvPrefix + "_MONGO_HOST", Path: "store.mongo.host"},
		{Name: EnvPrefix + "_MONGO_USER", Path: "store.mongo.username"},
		{Name: EnvPrefix + "_MONGO_PASSWORD", Path: "store.mongo.password"},
		{Name: EnvPrefix + "_RUNS_DIR", Path: "runs.dir"},
	}
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, spec := range getEnvSpecs() {
		// Long form first so the short alias is checked after it.
		long := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(spec.Path, ".", "_"))
		_ = v.BindEnv(spec.Path, long, spec.Name)
	}
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
