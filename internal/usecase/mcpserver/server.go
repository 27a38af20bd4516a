package mcpserver

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"eavview/internal/bootstrap/logging"
	"eavview/internal/domain/eav"
	"eavview/internal/errs"
	"eavview/internal/usecase/projector"
)

// Projector is the projector surface exposed as MCP tools.
type Projector interface {
	Apply(ctx context.Context, names []string, force bool) (projector.BatchResult, error)
	JoinCast(ctx context.Context, input projector.JoinCastInput) (projector.JoinCastResult, error)
	Describe() []eav.ViewDescription
	Inspect(ctx context.Context, relation string, sample int) (string, error)
	Query(ctx context.Context, query string, limit int) (projector.QueryRows, error)
}

type Config struct {
	Name    string
	Version string
}

// NewServer registers every view tool on a new MCP server.
func NewServer(p Projector, cfg Config) (*mcp.Server, error) {
	if p == nil {
		return nil, errors.New("projector is required")
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "eavview"
	}
	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = "dev"
	}

	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	mcp.AddTool(server, ProjectViewTool(), ProjectViewHandler(p))
	mcp.AddTool(server, JoinCastTool(), JoinCastHandler(p))
	mcp.AddTool(server, DescribeViewsTool(), DescribeViewsHandler(p))
	mcp.AddTool(server, IntrospectSchemaTool(), IntrospectSchemaHandler(p))
	mcp.AddTool(server, QueryViewTool(), QueryViewHandler(p))
	return server, nil
}

// Serve runs server on transport until the client disconnects or ctx is
// done. Cancellation is a normal shutdown.
func Serve(ctx context.Context, server *mcp.Server, transport mcp.Transport) error {
	if server == nil {
		return errors.New("MCP server is not configured")
	}
	if transport == nil {
		transport = &mcp.StdioTransport{}
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "mcpserver"))
	logging.Info(logCtx, "mcp server started")

	err := server.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		return errs.Wrap(err, "serve MCP")
	}
	logging.Info(logCtx, "mcp server stopped")
	return nil
}
