package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"eavview/internal/bootstrap/config"
	"eavview/internal/bootstrap/logging"
	"eavview/internal/errs"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Open connects to the target database holding the lookup tables. Failed
// attempts are retried with a linear backoff; each attempt pings.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.database"), slog.String("role", "target"))

	dialector, err := dialectorFor(logCtx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		db, err := openAndPing(ctx, dialector)
		if err == nil {
			if err := applyPool(db, cfg); err != nil {
				return nil, err
			}
			logging.Info(logCtx, "database opened",
				slog.String("driver", NormalizeDriver(cfg.Driver)),
				slog.String("dsn", RedactDSN(cfg.Driver, cfg.DSN)),
				slog.Int("attempt", attempt),
			)
			return db, nil
		}

		lastErr = err
		logging.Warn(logCtx, "database open attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", retries),
			slog.Any("err", errs.Loggable(err)),
		)
		if attempt == retries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errs.Wrap(ctx.Err(), "wait for database retry")
		case <-time.After(cfg.RetryBackoff * time.Duration(attempt)):
		}
	}

	return nil, errs.Wrapf(lastErr, "open %s database after %d attempts", NormalizeDriver(cfg.Driver), retries)
}

// OpenState opens the local state database (SQLite by default).
func OpenState(ctx context.Context, cfg config.StateConfig) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.database"), slog.String("role", "state"))

	dialector, err := dialectorFor(logCtx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := openAndPing(ctx, dialector)
	if err != nil {
		return nil, errs.Wrap(err, "open state db")
	}
	logging.Info(logCtx, "database opened", slog.String("driver", NormalizeDriver(cfg.Driver)), slog.String("dsn", RedactDSN(cfg.Driver, cfg.DSN)))
	return db, nil
}

func NormalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql", "mariadb":
		return DriverMySQL
	case "sqlite", "sqlite3":
		return DriverSQLite
	default:
		return strings.ToLower(strings.TrimSpace(driver))
	}
}

// RedactDSN removes the password from a MySQL DSN so it can be logged.
func RedactDSN(driver string, dsn string) string {
	if NormalizeDriver(driver) != DriverMySQL {
		return dsn
	}
	parsed, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "<unparseable dsn>"
	}
	if parsed.Passwd != "" {
		parsed.Passwd = "xxxxx"
	}
	return parsed.FormatDSN()
}

func dialectorFor(ctx context.Context, driver string, dsn string) (gorm.Dialector, error) {
	switch NormalizeDriver(driver) {
	case DriverMySQL:
		parsed, err := mysqldriver.ParseDSN(dsn)
		if err != nil {
			return nil, errs.Wrap(err, "parse mysql dsn")
		}
		if parsed.DBName == "" {
			return nil, errors.New("mysql dsn must name a database")
		}
		return gormmysql.New(gormmysql.Config{DSNConfig: parsed}), nil
	case DriverSQLite:
		if err := ensureSQLiteDirectory(ctx, dsn); err != nil {
			return nil, errs.Wrap(err, "ensure sqlite directory")
		}
		return gormsqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func openAndPing(ctx context.Context, dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, errs.Wrap(err, "open db")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errs.Wrap(err, "get sql db")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, errs.Wrap(err, "ping db")
	}
	return db, nil
}

func applyPool(db *gorm.DB, cfg config.DatabaseConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errs.Wrap(err, "get sql db")
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return nil
}

func ensureSQLiteDirectory(ctx context.Context, dsn string) error {
	candidate := strings.TrimSpace(dsn)
	if candidate == "" || strings.Contains(candidate, ":memory:") {
		return nil
	}

	if strings.HasPrefix(strings.ToLower(candidate), "file:") {
		candidate = candidate[len("file:"):]
	}
	if idx := strings.Index(candidate, "?"); idx >= 0 {
		candidate = candidate[:idx]
	}

	dir := filepath.Dir(candidate)
	if dir == "" || dir == "." {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrapf(err, "create sqlite directory %q", dir)
	}

	logging.Debug(ctx, "sqlite directory ensured", slog.String("dir", dir))
	return nil
}
