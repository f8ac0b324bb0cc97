package jobstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Defaults for the tracking database.
const (
	DefaultPort           = 27017
	DefaultCollection     = "jobstate"
	DefaultConnectTimeout = 10 * time.Second
)

// Config selects and configures a backend.
type Config struct {
	// Driver is "mongo" (default) or "sqlite".
	Driver string       `mapstructure:"driver" yaml:"driver"`
	Mongo  MongoConfig  `mapstructure:"mongo" yaml:"mongo"`
	SQLite SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`
}

// MongoConfig holds connection parameters for the tracking database.
type MongoConfig struct {
	// Host is a host or comma-separated host list; ports are optional.
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`

	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`

	// AuthDatabase is the database the credentials are defined in.
	AuthDatabase string `mapstructure:"auth_database" yaml:"auth_database"`

	// Database holds the jobs collection.
	Database   string `mapstructure:"database" yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// SQLiteConfig configures the local snapshot backend.
type SQLiteConfig struct {
	// Path is a file path or ":memory:".
	Path string `mapstructure:"path" yaml:"path"`
}

// WithDefaults fills zero values.
func (c MongoConfig) WithDefaults() MongoConfig {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if strings.TrimSpace(c.Collection) == "" {
		c.Collection = DefaultCollection
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.AuthDatabase == "" {
		c.AuthDatabase = c.Database
	}
	return c
}

// Validate checks required fields.
func (c MongoConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: mongo host is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("%w: mongo database is required", ErrInvalidConfig)
	}
	if (c.Username == "") != (c.Password == "") {
		return fmt.Errorf("%w: mongo username and password must be set together", ErrInvalidConfig)
	}
	return nil
}

// URI renders the connection string without credentials.
func (c MongoConfig) URI() string {
	c = c.WithDefaults()
	hosts := strings.Split(c.Host, ",")
	addrs := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.Contains(h, ":") {
			h = h + ":" + strconv.Itoa(c.Port)
		}
		addrs = append(addrs, h)
	}
	return "mongodb://" + strings.Join(addrs, ",") + "/"
}

// Validate checks the configuration for the selected driver.
func (c Config) Validate() error {
	switch c.driver() {
	case DriverMongo:
		return c.Mongo.Validate()
	case DriverSQLite:
		if strings.TrimSpace(c.SQLite.Path) == "" {
			return fmt.Errorf("%w: sqlite path is required", ErrInvalidConfig)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, c.Driver)
	}
}

func (c Config) driver() string {
	d := strings.ToLower(strings.TrimSpace(c.Driver))
	if d == "" {
		return DriverMongo
	}
	return d
}

// Open connects to the configured backend. SQLite stores are migrated
// before they are returned.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.driver() {
	case DriverSQLite:
		s, err := OpenSQLite(ctx, cfg.SQLite, logger)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		return s, nil
	default:
		return NewMongoStore(ctx, cfg.Mongo, logger)
	}
}
