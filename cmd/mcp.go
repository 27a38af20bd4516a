package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"eavview/internal/bootstrap"
	"eavview/internal/bootstrap/logging"
	"eavview/internal/errs"
	"eavview/internal/usecase/mcpserver"
	"eavview/internal/usecase/projector"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol server commands",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the view tools over stdio, or streamable HTTP with --listen",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *projector.Service) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.WithAttrs(ctx, slog.String("command", cmd.CommandPath()))

		server, err := mcpserver.NewServer(svc, mcpserver.Config{
			Name:    app.Config.MCP.Name,
			Version: app.Config.MCP.Version,
		})
		if err != nil {
			return errs.Wrap(err, "build MCP server")
		}

		listen, _ := cmd.Flags().GetString("listen")
		if strings.TrimSpace(listen) == "" {
			listen = app.Config.MCP.Listen
		}
		if strings.TrimSpace(listen) != "" {
			if err := mcpserver.ServeHTTP(ctx, listen, mcpserver.NewHTTPHandler(server)); err != nil {
				logging.Error(ctx, "mcp http server failed", slog.Any("err", errs.Loggable(err)))
				return err
			}
			return nil
		}

		if err := mcpserver.Serve(ctx, server, &mcp.StdioTransport{}); err != nil {
			logging.Error(ctx, "mcp server failed", slog.Any("err", errs.Loggable(err)))
			return err
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.AddCommand(mcpServeCmd)
	mcpServeCmd.Flags().String("listen", "", "Serve streamable HTTP on this address instead of stdio (overrides mcp.listen)")
}
