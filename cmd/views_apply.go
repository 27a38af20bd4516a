package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"eavview/internal/bootstrap"
	"eavview/internal/bootstrap/logging"
	"eavview/internal/errs"
	"eavview/internal/usecase/projector"
)

var viewsApplyCmd = newViewsApplyCmd(nil)

func newViewsApplyCmd(svc *projector.Service) *cobra.Command {
	runWithService := func(cmd *cobra.Command, applySvc *projector.Service) error {
		if applySvc == nil {
			return errors.New("projector service is not configured")
		}

		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		force, _ := cmd.Flags().GetBool("force")

		batch, applyErr := applySvc.Apply(ctx, cmd.Flags().Args(), force)
		if len(batch.Results) == 0 && applyErr != nil {
			logging.Error(ctx, "apply views failed", slog.Any("err", errs.Loggable(applyErr)))
			return errs.Wrap(applyErr, "apply views")
		}

		if err := writeBatch(cmd.OutOrStdout(), batch); err != nil {
			return errs.Wrap(err, "write apply output")
		}
		if applyErr != nil {
			return errs.Wrapf(applyErr, "%d of %d views failed", batch.Count(projector.OutcomeFailed), len(batch.Results))
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
		Use:   "apply [view...]",
		Short: "Create or replace catalog views (all when none are named)",
		RunE:  runE,
	}
	cmd.Flags().Bool("force", false, "Replace views even when their definition is unchanged")
	return cmd
}

var viewsVerifyCmd = &cobra.Command{
	Use:   "verify [view]",
	Short: "Check installed views against their catalog columns",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *projector.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		var items []projector.Verification
		var failures []error
		if len(cmd.Flags().Args()) == 1 {
			item, err := svc.Verify(ctx, cmd.Flags().Arg(0))
			if err != nil {
				failures = append(failures, err)
			} else {
				items = append(items, item)
			}
		} else {
			verified, err := svc.VerifyAll(ctx)
			items = verified
			if joined, ok := err.(interface{ Unwrap() []error }); ok {
				failures = joined.Unwrap()
			} else if err != nil {
				failures = append(failures, err)
			}
		}

		out := cmd.OutOrStdout()
		for _, item := range items {
			if _, err := fmt.Fprintf(out, "ok      %-16s columns=%d rows=%d\n", item.View, len(item.Columns), item.Rows); err != nil {
				return errs.Wrap(err, "write verify output")
			}
		}
		for _, failure := range failures {
			if _, err := fmt.Fprintf(out, "failed  %s\n", failure.Error()); err != nil {
				return errs.Wrap(err, "write verify output")
			}
		}
		if verifyErr := errs.Collect(failures...); verifyErr != nil {
			logging.Warn(ctx, "view verification failed", slog.Any("err", errs.Loggable(verifyErr)))
			return errs.Wrap(verifyErr, "verify views")
		}
		return nil
	}),
}

var viewsDropCmd = &cobra.Command{
	Use:   "drop <view>",
	Short: "Drop a catalog view and forget its recorded state",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *projector.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		name := cmd.Flags().Arg(0)
		if err := svc.DropView(ctx, name); err != nil {
			logging.Error(ctx, "drop view failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "drop view")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "dropped view: %s\n", name); err != nil {
			return errs.Wrap(err, "write drop output")
		}
		return nil
	}),
}

func writeBatch(out io.Writer, batch projector.BatchResult) error {
	if _, err := fmt.Fprintf(out, "run %s\n", batch.RunID); err != nil {
		return err
	}
	for _, result := range batch.Results {
		line := fmt.Sprintf("%-9s %-16s rows=%d", result.Outcome, result.View, result.Rows)
		if nulled := formatNulled(result.Nulled); nulled != "" {
			line += " nulled=" + nulled
		}
		if result.Err != nil {
			line += " error=" + result.Err.Error()
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(out, "applied=%d unchanged=%d failed=%d\n",
		batch.Count(projector.OutcomeApplied),
		batch.Count(projector.OutcomeUnchanged),
		batch.Count(projector.OutcomeFailed),
	)
	return err
}

// formatNulled renders non-zero coercion counts as col:n pairs in column order.
func formatNulled(nulled map[string]int64) string {
	columns := make([]string, 0, len(nulled))
	for column, count := range nulled {
		if count > 0 {
			columns = append(columns, column)
		}
	}
	sort.Strings(columns)

	parts := make([]string, 0, len(columns))
	for _, column := range columns {
		parts = append(parts, fmt.Sprintf("%s:%d", column, nulled[column]))
	}
	return strings.Join(parts, ",")
}
