package mcpserver

import (
	"context"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"eavview/internal/bootstrap/logging"
	"eavview/internal/domain/eav"
	"eavview/internal/errs"
	"eavview/internal/usecase/projector"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// ProjectViewInput represents the MCP tool input for projecting views.
type ProjectViewInput struct {
	Views []string `json:"views,omitempty" jsonschema:"catalog views to project; all views when omitted"`
	Force bool     `json:"force,omitempty" jsonschema:"re-issue the DDL even when the definition is unchanged"`
}

// ViewOutcome is the result of projecting one view.
type ViewOutcome struct {
	View    string           `json:"view" jsonschema:"view name"`
	Outcome string           `json:"outcome" jsonschema:"applied, unchanged or failed"`
	Rows    int64            `json:"rows" jsonschema:"row count after projection"`
	Nulled  map[string]int64 `json:"nulled,omitempty" jsonschema:"per typed column, source values the coercion turned into NULL"`
	Error   string           `json:"error,omitempty" jsonschema:"failure reason"`
}

// ProjectViewResult represents the MCP tool output for projecting views.
type ProjectViewResult struct {
	RunID   string        `json:"run_id" jsonschema:"projection run identifier"`
	Results []ViewOutcome `json:"results" jsonschema:"one entry per view in catalog order"`
}

// JoinCastInput represents the MCP tool input for a cast join.
type JoinCastInput struct {
	From      string `json:"from" jsonschema:"view holding the textual reference"`
	RefColumn string `json:"ref_column" jsonschema:"reference column of the from view"`
	To        string `json:"to,omitempty" jsonschema:"referenced view; defaults to the view the column declares"`
	Limit     int    `json:"limit,omitempty" jsonschema:"when positive, run the join and return at most this many rows"`
}

// JoinCastResult represents the MCP tool output for a cast join.
type JoinCastResult struct {
	From      string   `json:"from"`
	RefColumn string   `json:"ref_column"`
	To        string   `json:"to"`
	ToColumn  string   `json:"to_column" jsonschema:"id column of the referenced view"`
	Predicate string   `json:"predicate" jsonschema:"join predicate casting the reference to a number"`
	Query     string   `json:"query" jsonschema:"complete SELECT joining both views"`
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
}

// DescribeViewsInput represents the MCP tool input for describing views.
type DescribeViewsInput struct {
	View string `json:"view,omitempty" jsonschema:"describe only this view"`
}

// DescribeViewsResult represents the MCP tool output for describing views.
type DescribeViewsResult struct {
	Views []eav.ViewDescription `json:"views"`
}

// IntrospectSchemaInput represents the MCP tool input for schema introspection.
type IntrospectSchemaInput struct {
	Relation string `json:"relation,omitempty" jsonschema:"table or view to inspect; all relations when omitted"`
	Sample   int    `json:"sample,omitempty" jsonschema:"number of sample rows to include (at most 50)"`
}

// IntrospectSchemaResult represents the MCP tool output for schema introspection.
type IntrospectSchemaResult struct {
	Markdown string `json:"markdown"`
}

// QueryViewInput represents the MCP tool input for a read-only query.
type QueryViewInput struct {
	SQL   string `json:"sql" jsonschema:"a single SELECT or WITH statement"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum rows to return (default 100, at most 1000)"`
}

// QueryViewResult represents the MCP tool output for a read-only query.
type QueryViewResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
	Markdown  string   `json:"markdown" jsonschema:"the rows rendered as a Markdown table"`
}

func ProjectViewTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "project_view",
		Description: "Create or replace the relational views pivoted from the EAV lookup tables. Unchanged views are skipped unless force is set.",
	}
}

func JoinCastTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "join_cast",
		Description: "Build (and optionally run) the join between a view's textual reference column and the view it references. Non-numeric references never match.",
	}
}

func DescribeViewsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "describe_views",
		Description: "Describe the projected views: columns, types and how to join cross-entity references.",
	}
}

func IntrospectSchemaTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "introspect_schema",
		Description: "List tables and views with row counts, or show one relation's columns and sample rows, as Markdown.",
	}
}

func QueryViewTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "query_view",
		Description: "Run a read-only SELECT against the database and return the rows.",
	}
}

func ProjectViewHandler(p Projector) mcp.ToolHandlerFor[ProjectViewInput, ProjectViewResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ProjectViewInput) (*mcp.CallToolResult, ProjectViewResult, error) {
		names := make([]string, 0, len(input.Views))
		for _, name := range input.Views {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				names = append(names, trimmed)
			}
		}

		batch, err := p.Apply(toolContext(ctx, "project_view"), names, input.Force)
		if len(batch.Results) == 0 && err != nil {
			return nil, ProjectViewResult{}, err
		}

		result := ProjectViewResult{RunID: batch.RunID, Results: make([]ViewOutcome, 0, len(batch.Results))}
		for _, item := range batch.Results {
			outcome := ViewOutcome{
				View:    item.View,
				Outcome: string(item.Outcome),
				Rows:    item.Rows,
				Nulled:  item.Nulled,
			}
			if item.Err != nil {
				outcome.Error = item.Err.Error()
			}
			result.Results = append(result.Results, outcome)
		}
		return nil, result, nil
	}
}

func JoinCastHandler(p Projector) mcp.ToolHandlerFor[JoinCastInput, JoinCastResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input JoinCastInput) (*mcp.CallToolResult, JoinCastResult, error) {
		limit := input.Limit
		if limit > maxQueryLimit {
			limit = maxQueryLimit
		}
		joined, err := p.JoinCast(toolContext(ctx, "join_cast"), projector.JoinCastInput{
			From:      input.From,
			RefColumn: input.RefColumn,
			To:        input.To,
			Limit:     limit,
		})
		if err != nil {
			return nil, JoinCastResult{}, err
		}

		result := JoinCastResult{
			From:      joined.Join.From,
			RefColumn: joined.Join.RefColumn,
			To:        joined.Join.To,
			ToColumn:  joined.Join.ToColumn,
			Predicate: joined.Join.Predicate,
			Query:     joined.Join.Query,
			Columns:   joined.Join.Columns,
		}
		if joined.Rows != nil {
			result.Rows = nonNilRows(joined.Rows.Rows)
			result.Truncated = joined.Rows.Truncated
		}
		return nil, result, nil
	}
}

func DescribeViewsHandler(p Projector) mcp.ToolHandlerFor[DescribeViewsInput, DescribeViewsResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input DescribeViewsInput) (*mcp.CallToolResult, DescribeViewsResult, error) {
		items := p.Describe()
		name := strings.TrimSpace(input.View)
		if name == "" {
			return nil, DescribeViewsResult{Views: items}, nil
		}
		for _, item := range items {
			if item.Name == name {
				return nil, DescribeViewsResult{Views: []eav.ViewDescription{item}}, nil
			}
		}
		return nil, DescribeViewsResult{}, errs.Wrapf(eav.ErrUnknownView, "describe %s", name)
	}
}

func IntrospectSchemaHandler(p Projector) mcp.ToolHandlerFor[IntrospectSchemaInput, IntrospectSchemaResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input IntrospectSchemaInput) (*mcp.CallToolResult, IntrospectSchemaResult, error) {
		markdown, err := p.Inspect(toolContext(ctx, "introspect_schema"), input.Relation, input.Sample)
		if err != nil {
			return nil, IntrospectSchemaResult{}, err
		}
		return nil, IntrospectSchemaResult{Markdown: markdown}, nil
	}
}

func QueryViewHandler(p Projector) mcp.ToolHandlerFor[QueryViewInput, QueryViewResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input QueryViewInput) (*mcp.CallToolResult, QueryViewResult, error) {
		limit := input.Limit
		switch {
		case limit <= 0:
			limit = defaultQueryLimit
		case limit > maxQueryLimit:
			limit = maxQueryLimit
		}

		rows, err := p.Query(toolContext(ctx, "query_view"), input.SQL, limit)
		if err != nil {
			return nil, QueryViewResult{}, err
		}
		columns := rows.Columns
		if columns == nil {
			columns = []string{}
		}
		return nil, QueryViewResult{
			Columns:   columns,
			Rows:      nonNilRows(rows.Rows),
			Truncated: rows.Truncated,
			Markdown:  projector.RenderMarkdownTable(rows),
		}, nil
	}
}

func toolContext(ctx context.Context, tool string) context.Context {
	ctx = logging.WithAttrs(ctx, slog.String("component", "mcpserver"), slog.String("tool", tool))
	logging.Debug(ctx, "tool called")
	return ctx
}

func nonNilRows(rows [][]any) [][]any {
	if rows == nil {
		return [][]any{}
	}
	return rows
}
