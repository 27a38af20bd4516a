package config

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"eavview/internal/bootstrap/logging"
	"eavview/internal/errs"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	State     StateConfig     `mapstructure:"state"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Projector ProjectorConfig `mapstructure:"projector"`
	MCP       MCPConfig       `mapstructure:"mcp"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig points at the database holding the entity and lookup
// tables. The views are created there.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectRetries  int           `mapstructure:"connect_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout"`
}

// StateConfig is the local database remembering which definition was last
// applied for every view.
type StateConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type CatalogConfig struct {
	Path          string        `mapstructure:"path"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

type ProjectorConfig struct {
	VerifyColumns  bool `mapstructure:"verify_columns"`
	AuditCoercions bool `mapstructure:"audit_coercions"`
}

type MCPConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	// Listen serves streamable HTTP on this address; empty means stdio.
	Listen string `mapstructure:"listen"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EAVVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("catalog", firstNonEmpty(cfg.Catalog.Path, "builtin")),
	)

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if strings.TrimSpace(c.State.DSN) == "" {
		return errors.New("state.dsn is required")
	}
	if c.Database.ConnectRetries < 1 {
		return errors.New("database.connect_retries must be at least 1")
	}
	if c.Database.CommandTimeout < 0 {
		return errors.New("database.command_timeout must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "eavview")
	v.SetDefault("app.env", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "root:password@tcp(localhost:3306)/custlight?parseTime=true")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.connect_retries", 3)
	v.SetDefault("database.retry_backoff", 500*time.Millisecond)
	v.SetDefault("database.command_timeout", 30*time.Second)
	v.SetDefault("state.driver", "sqlite")
	v.SetDefault("state.dsn", ".eavview/state.sqlite")
	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.watch_debounce", 500*time.Millisecond)
	v.SetDefault("projector.verify_columns", true)
	v.SetDefault("projector.audit_coercions", true)
	v.SetDefault("mcp.name", "eavview")
	v.SetDefault("mcp.version", "0.1.0")
	v.SetDefault("mcp.listen", "")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
