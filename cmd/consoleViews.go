package cmd

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"eavview/internal/bootstrap"
	"eavview/internal/bootstrap/logging"
	"eavview/internal/errs"
	"eavview/internal/usecase/projector"
	"eavview/internal/usecase/viewconsole"
)

var consoleViewsCmd = &cobra.Command{
	Use:   "views",
	Short: "Start the view console (status, columns, sample rows)",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *projector.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		sampleRows, _ := cmd.Flags().GetInt("sample")
		refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")
		if refreshInterval <= 0 {
			refreshInterval = 10 * time.Second
		}

		model := viewconsole.NewViewModel(ctx, svc, viewconsole.Options{
			SampleRows:      sampleRows,
			RefreshInterval: refreshInterval,
		})

		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return errs.Wrap(err, "run view console")
		}
		return nil
	}),
}

func init() {
	consoleCmd.AddCommand(consoleViewsCmd)
	consoleViewsCmd.Flags().Int("sample", 5, "Sample rows shown for the selected view")
	consoleViewsCmd.Flags().Duration("refresh-interval", 10*time.Second, "Auto refresh interval")
}
