package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"eavview/internal/bootstrap/config"
	"eavview/internal/bootstrap/database"
	"eavview/internal/bootstrap/logging"
	"eavview/internal/domain/eav"
	"eavview/internal/errs"
	"eavview/internal/infrastructure/catalog"
	"eavview/internal/infrastructure/persistence/repository"
	"eavview/internal/infrastructure/persistence/uow"
	"eavview/internal/infrastructure/statestore"
	"eavview/internal/ports"
	"eavview/internal/usecase/projector"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(
		fx.Annotate(
			provideTargetDatabase,
			fx.ResultTags(`name:"targetDB"`),
		),
	),
	fx.Provide(
		fx.Annotate(
			provideStateDatabase,
			fx.ResultTags(`name:"stateDB"`),
		),
	),
	fx.Provide(provideApp),
	fx.Provide(provideDatabaseConfig),
	fx.Provide(
		fx.Annotate(
			repository.NewViewRepository,
			fx.ParamTags(`name:"targetDB"`),
			fx.As(new(ports.ViewRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			uow.NewUnitOfWork,
			fx.ParamTags(`name:"targetDB"`),
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			statestore.NewSQLiteStateStore,
			fx.ParamTags(`name:"stateDB"`),
			fx.As(new(ports.ViewStateStore)),
		),
	),
	fx.Provide(provideCatalog),
	fx.Provide(provideProjector),
	fx.Invoke(registerStateMigration),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabaseConfig(cfg config.Config) config.DatabaseConfig {
	return cfg.Database
}

func provideTargetDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}
	lc.Append(closeHook(db))
	return db, nil
}

func provideStateDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.OpenState(logCtx, cfg.State)
	if err != nil {
		return nil, err
	}
	lc.Append(closeHook(db))
	return db, nil
}

type appParams struct {
	fx.In

	Config   config.Config
	TargetDB *gorm.DB `name:"targetDB"`
	StateDB  *gorm.DB `name:"stateDB"`
}

func provideApp(p appParams) *App {
	return &App{
		Config:   p.Config,
		TargetDB: p.TargetDB,
		StateDB:  p.StateDB,
	}
}

func provideCatalog(ctx context.Context, cfg config.Config) (eav.Catalog, error) {
	loaded, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return eav.Catalog{}, err
	}
	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")),
		"catalog loaded",
		slog.String("source", catalog.SourceName(cfg.Catalog.Path)),
		slog.Int("views", len(loaded.Views)),
	)
	return loaded, nil
}

func provideProjector(
	cfg config.Config,
	repo ports.ViewRepository,
	unit ports.UnitOfWork,
	state ports.ViewStateStore,
	views eav.Catalog,
) (*projector.Service, error) {
	return projector.NewService(repo, unit, state, views, projector.Options{
		VerifyColumns:  cfg.Projector.VerifyColumns,
		AuditCoercions: cfg.Projector.AuditCoercions,
	})
}

// registerStateMigration makes sure the state table exists before any
// command reads or records view state.
func registerStateMigration(lc fx.Lifecycle, app *App) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return errs.Wrap(app.InitSchema(ctx), "migrate state schema")
		},
	})
}

func closeHook(db *gorm.DB) fx.Hook {
	return fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}
}
