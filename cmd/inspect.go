package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"eavview/internal/bootstrap"
	"eavview/internal/bootstrap/logging"
	"eavview/internal/errs"
	"eavview/internal/usecase/projector"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [relation]",
	Short: "Show the tables and views of the target database as Markdown",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *projector.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		sample, _ := cmd.Flags().GetInt("sample")
		markdown, err := svc.Inspect(ctx, cmd.Flags().Arg(0), sample)
		if err != nil {
			logging.Error(ctx, "inspect schema failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "inspect schema")
		}

		if _, err := fmt.Fprintln(cmd.OutOrStdout(), markdown); err != nil {
			return errs.Wrap(err, "write inspect output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Int("sample", 0, "Sample rows to print for a single relation")
}
