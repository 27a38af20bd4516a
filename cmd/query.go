package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"eavview/internal/bootstrap"
	"eavview/internal/bootstrap/logging"
	"eavview/internal/errs"
	"eavview/internal/usecase/projector"
)

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run one read-only statement against the target database",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *projector.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		limit, _ := cmd.Flags().GetInt("limit")
		statement := strings.Join(cmd.Flags().Args(), " ")
		rows, err := svc.Query(ctx, statement, limit)
		if err != nil {
			logging.Error(ctx, "query failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "run query")
		}

		if _, err := fmt.Fprintln(cmd.OutOrStdout(), projector.RenderMarkdownTable(rows)); err != nil {
			return errs.Wrap(err, "write query output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().Int("limit", 100, "Maximum rows to print")
}
