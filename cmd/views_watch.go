package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"eavview/internal/bootstrap"
	"eavview/internal/bootstrap/logging"
	"eavview/internal/errs"
	"eavview/internal/infrastructure/catalog"
	"eavview/internal/usecase/catalogwatch"
	"eavview/internal/usecase/projector"
)

var viewsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Project all views, then re-project whenever the catalog file changes",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *projector.Service) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.WithAttrs(ctx, slog.String("command", cmd.CommandPath()))

		out := cmd.OutOrStdout()
		batch, err := svc.ProjectAll(ctx, false)
		if writeErr := writeBatch(out, batch); writeErr != nil {
			return errs.Wrap(writeErr, "write watch output")
		}
		if err != nil {
			logging.Warn(ctx, "initial projection finished with failures", slog.Any("err", errs.Loggable(err)))
		}

		debounce, _ := cmd.Flags().GetDuration("debounce")
		if debounce <= 0 {
			debounce = app.Config.Catalog.WatchDebounce
		}
		watcher, err := catalogwatch.New(app.Config.Catalog.Path, catalog.Load, svc, catalogwatch.Options{
			Debounce: debounce,
			OnReload: func(reload catalogwatch.Reload) {
				if reload.Err != nil {
					_, _ = fmt.Fprintf(out, "reload rejected: %v\n", reload.Err)
					return
				}
				_ = writeBatch(out, reload.Batch)
			},
		})
		if err != nil {
			return errs.Wrap(err, "start catalog watch")
		}

		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error(ctx, "catalog watch failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "watch catalog")
		}
		logging.Info(ctx, "catalog watch stopped")
		return nil
	}),
}

func init() {
	viewsWatchCmd.Flags().Duration("debounce", 0, "Quiet period before a change is applied (defaults to catalog.watch_debounce)")
}
