package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"eavview/internal/bootstrap"
	"eavview/internal/bootstrap/logging"
	"eavview/internal/errs"
	"eavview/internal/infrastructure/catalog"
	"eavview/internal/usecase/projector"
)

var viewsCmd = &cobra.Command{
	Use:   "views",
	Short: "Manage the projected EAV views",
}

var viewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog views and their install state",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *projector.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		asTOML, _ := cmd.Flags().GetBool("toml")
		if asTOML {
			raw, err := catalog.Encode(svc.Catalog())
			if err != nil {
				return errs.Wrap(err, "encode catalog")
			}
			if _, err := cmd.OutOrStdout().Write(raw); err != nil {
				return errs.Wrap(err, "write list output")
			}
			return nil
		}

		statuses, err := svc.Status(ctx)
		if err != nil {
			logging.Error(ctx, "load view status failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "load view status")
		}

		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(out, "catalog: %s (%d views, dialect=%s)\n", catalog.SourceName(app.Config.Catalog.Path), len(statuses), svc.Dialect().Name()); err != nil {
			return errs.Wrap(err, "write list output")
		}
		for _, status := range statuses {
			applied := "-"
			if !status.AppliedAt.IsZero() {
				applied = status.AppliedAt.UTC().Format("2006-01-02T15:04:05Z")
			}
			if _, err := fmt.Fprintf(out, "%-16s %-9s rows=%d run=%s applied=%s\n",
				status.View, statusLabel(status), status.Rows, fallbackText(status.RunID, "-"), applied); err != nil {
				return errs.Wrap(err, "write list output")
			}
		}
		return nil
	}),
}

var viewsPlanCmd = &cobra.Command{
	Use:   "plan [view...]",
	Short: "Print the DDL a projection would run",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *projector.Service) error {
		defs, err := svc.Plan(cmd.Flags().Args()...)
		if err != nil {
			return errs.Wrap(err, "plan views")
		}

		out := cmd.OutOrStdout()
		for _, def := range defs {
			if _, err := fmt.Fprintf(out, "-- %s (%s) fingerprint=%s\n", def.View, def.Dialect, def.Fingerprint); err != nil {
				return errs.Wrap(err, "write plan output")
			}
			for _, statement := range def.Statements {
				if _, err := fmt.Fprintf(out, "%s;\n", statement); err != nil {
					return errs.Wrap(err, "write plan output")
				}
			}
			if _, err := fmt.Fprintln(out); err != nil {
				return errs.Wrap(err, "write plan output")
			}
		}
		return nil
	}),
}

var viewsDescribeCmd = &cobra.Command{
	Use:   "describe [view]",
	Short: "Describe views the way a query agent sees them",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *projector.Service) error {
		descriptions := svc.Describe()
		if len(cmd.Flags().Args()) == 1 {
			name := cmd.Flags().Arg(0)
			filtered := descriptions[:0]
			for _, item := range descriptions {
				if item.Name == name {
					filtered = append(filtered, item)
				}
			}
			if len(filtered) == 0 {
				return fmt.Errorf("view %s is not in the catalog", name)
			}
			descriptions = filtered
		}

		out := cmd.OutOrStdout()
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(descriptions); err != nil {
				return errs.Wrap(err, "write describe output")
			}
			return nil
		}

		for _, item := range descriptions {
			if _, err := fmt.Fprintf(out, "%s: %s\n", item.Name, item.Summary); err != nil {
				return errs.Wrap(err, "write describe output")
			}
		}
		return nil
	}),
}

var viewsSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the catalog file format",
	RunE: func(cmd *cobra.Command, _ []string) error {
		raw, err := catalog.Schema()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(raw)); err != nil {
			return errs.Wrap(err, "write schema output")
		}
		return nil
	},
}

func statusLabel(status projector.ViewStatus) string {
	switch {
	case !status.Installed:
		return "missing"
	case status.Current:
		return "current"
	case !status.Recorded:
		return "unmanaged"
	default:
		return "stale"
	}
}

func fallbackText(value string, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

func init() {
	rootCmd.AddCommand(viewsCmd)
	viewsCmd.AddCommand(viewsListCmd)
	viewsCmd.AddCommand(viewsPlanCmd)
	viewsCmd.AddCommand(viewsDescribeCmd)
	viewsCmd.AddCommand(viewsApplyCmd)
	viewsCmd.AddCommand(viewsVerifyCmd)
	viewsCmd.AddCommand(viewsDropCmd)
	viewsCmd.AddCommand(viewsJoinCmd)
	viewsCmd.AddCommand(viewsWatchCmd)
	viewsCmd.AddCommand(viewsSchemaCmd)

	viewsListCmd.Flags().Bool("toml", false, "Print the active catalog as TOML")
	viewsDescribeCmd.Flags().Bool("json", false, "Print descriptions as JSON")
}
