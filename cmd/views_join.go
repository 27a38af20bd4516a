package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"eavview/internal/bootstrap"
	"eavview/internal/bootstrap/logging"
	"eavview/internal/errs"
	"eavview/internal/usecase/projector"
)

var viewsJoinCmd = newViewsJoinCmd(nil)

func newViewsJoinCmd(svc *projector.Service) *cobra.Command {
	runWithService := func(cmd *cobra.Command, joinSvc *projector.Service) error {
		if joinSvc == nil {
			return errors.New("projector service is not configured")
		}

		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		from, _ := cmd.Flags().GetString("from")
		ref, _ := cmd.Flags().GetString("ref")
		to, _ := cmd.Flags().GetString("to")
		limit, _ := cmd.Flags().GetInt("limit")

		result, err := joinSvc.JoinCast(ctx, projector.JoinCastInput{
			From:      strings.TrimSpace(from),
			RefColumn: strings.TrimSpace(ref),
			To:        strings.TrimSpace(to),
			Limit:     limit,
		})
		if err != nil {
			logging.Error(ctx, "cast join failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "cast join")
		}

		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(out, "-- %s.%s -> %s.%s\n%s;\n", result.Join.From, result.Join.RefColumn, result.Join.To, result.Join.ToColumn, result.Join.Query); err != nil {
			return errs.Wrap(err, "write join output")
		}
		if result.Rows == nil {
			return nil
		}

		if _, err := fmt.Fprintf(out, "\n%s\n", projector.RenderMarkdownTable(*result.Rows)); err != nil {
			return errs.Wrap(err, "write join output")
		}
		return nil
	}

	runE := withApp(func(cmd *cobra.Command, _ *bootstrap.App, appSvc *projector.Service) error {
		return runWithService(cmd, appSvc)
	})
	if svc != nil {
		runE = func(cmd *cobra.Command, _ []string) error {
			return runWithService(cmd, svc)
		}
	}

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Build (and optionally run) a cast join between two views",
		RunE:  runE,
	}
	cmd.Flags().String("from", "", "View holding the text reference column")
	cmd.Flags().String("ref", "", "Reference column, for example customer_ref")
	cmd.Flags().String("to", "", "Referenced view (defaults to the column's references)")
	cmd.Flags().Int("limit", 0, "Run the join and print at most this many rows (0 prints the SQL only)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}
