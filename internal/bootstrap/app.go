package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"eavview/internal/bootstrap/config"
	"eavview/internal/bootstrap/database"
	"eavview/internal/bootstrap/logging"
	"eavview/internal/errs"
	"eavview/internal/infrastructure/persistence/model"
)

// App holds the two connections every command works with: the target
// database the views live in and the local state database.
type App struct {
	Config   config.Config
	TargetDB *gorm.DB
	StateDB  *gorm.DB
}

func New(ctx context.Context, configFile string) (*App, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "loading application config", slog.String("config_file", configFile))

	cfg, err := config.Load(logCtx, configFile)
	if err != nil {
		return nil, errs.Wrap(err, "load config")
	}

	target, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, errs.Wrap(err, "open target database")
	}
	state, err := database.OpenState(logCtx, cfg.State)
	if err != nil {
		closeDB(target)
		return nil, errs.Wrap(err, "open state database")
	}

	logging.Info(logCtx, "application bootstrap completed", slog.String("database_driver", cfg.Database.Driver))

	return &App{
		Config:   cfg,
		TargetDB: target,
		StateDB:  state,
	}, nil
}

// InitSchema creates the state tables. The target database is never
// migrated; its lookup tables belong to the source application.
func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Debug(logCtx, "start state schema migration")

	if err := a.StateDB.WithContext(ctx).AutoMigrate(&model.ViewState{}); err != nil {
		return errs.Wrap(err, "auto migrate state schema")
	}

	logging.Debug(logCtx, "state schema migration completed")
	return nil
}

func (a *App) Close(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	failures := make([]error, 0, 2)
	for _, db := range []*gorm.DB{a.TargetDB, a.StateDB} {
		if db == nil {
			continue
		}
		sqlDB, err := db.DB()
		if err != nil {
			failures = append(failures, errs.Wrap(err, "get sql db"))
			continue
		}
		if err := sqlDB.Close(); err != nil {
			failures = append(failures, errs.Wrap(err, "close sql db"))
		}
	}
	if err := errs.Collect(failures...); err != nil {
		return err
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "bootstrap.app")), "database connections closed")
	return nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
