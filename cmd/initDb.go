/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"eavview/internal/bootstrap"
	"eavview/internal/bootstrap/logging"
	"eavview/internal/errs"
	"eavview/internal/usecase/projector"
)

// initDbCmd represents the initDb command
var initDbCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize the state database and check catalog source tables",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *projector.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		logging.Info(ctx, "start init-db")

		if err := app.InitSchema(ctx); err != nil {
			logging.Error(ctx, "initialize schema failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "initialize schema")
		}

		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(out, "state schema initialized: %s\n", app.Config.State.DSN); err != nil {
			return errs.Wrap(err, "write init-db output")
		}

		tables := make(map[string]struct{})
		for _, spec := range svc.Catalog().Views {
			for _, table := range spec.SourceTables() {
				tables[table] = struct{}{}
			}
		}
		names := make([]string, 0, len(tables))
		for name := range tables {
			names = append(names, name)
		}
		sort.Strings(names)

		missing := 0
		for _, name := range names {
			present := app.TargetDB.WithContext(ctx).Migrator().HasTable(name)
			mark := "ok"
			if !present {
				mark = "missing"
				missing++
			}
			if _, err := fmt.Fprintf(out, "  %-20s %s\n", name, mark); err != nil {
				return errs.Wrap(err, "write init-db output")
			}
		}

		logging.Info(ctx, "init-db finished",
			slog.String("state_dsn", app.Config.State.DSN),
			slog.Int("source_tables", len(names)),
			slog.Int("missing_tables", missing),
		)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(initDbCmd)
}
