package projector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"eavview/internal/domain/eav"
	"eavview/internal/errs"
	"eavview/internal/ports"
)

const (
	maxSampleRows  = 50
	sampleCellSize = 30
)

// Inspect renders the schema as Markdown. With an empty relation it lists
// every table and view with its row count; otherwise it shows the columns
// of one relation and, when sample > 0, up to sample rows.
func (s *Service) Inspect(ctx context.Context, relation string, sample int) (string, error) {
	if err := checkContext(ctx); err != nil {
		return "", err
	}

	relations, err := s.repo.ListRelations(ctx)
	if err != nil {
		return "", err
	}

	name := strings.TrimSpace(relation)
	if name == "" {
		return s.renderRelations(ctx, relations), nil
	}

	found := false
	names := make([]string, 0, len(relations))
	for _, item := range relations {
		names = append(names, item.Name)
		if item.Name == name {
			found = true
		}
	}
	if !found {
		sort.Strings(names)
		return "", fmt.Errorf("%w: relation %s not found; available: %s", eav.ErrUnknownView, name, strings.Join(names, ", "))
	}

	return s.renderRelation(ctx, name, sample)
}

func (s *Service) renderRelations(ctx context.Context, relations []ports.Relation) string {
	if len(relations) == 0 {
		return "No tables or views found."
	}

	lines := []string{"## Tables & Views", ""}
	for _, item := range relations {
		count, err := s.repo.CountRows(ctx, item.Name)
		if err != nil {
			lines = append(lines, fmt.Sprintf("- **%s** (%s)", item.Name, item.Kind))
			continue
		}
		lines = append(lines, fmt.Sprintf("- **%s** (%s, %s rows)", item.Name, item.Kind, groupThousands(count)))
	}
	return strings.Join(lines, "\n")
}

func (s *Service) renderRelation(ctx context.Context, name string, sample int) (string, error) {
	columns, err := s.repo.Columns(ctx, name)
	if err != nil {
		return "", errs.Wrapf(err, "inspect %s", name)
	}

	descriptions := map[string]string{}
	if spec, ok := s.Catalog().View(name); ok {
		for _, column := range eav.Describe(spec, s.dialect).Columns {
			descriptions[column.Name] = column.Description
		}
	}

	lines := []string{"## " + name, ""}
	if len(columns) > 0 {
		lines = append(lines, "### Columns", "", "| Column | Type | Nullable | Notes |", "| --- | --- | --- | --- |")
		for _, column := range columns {
			lines = append(lines, fmt.Sprintf("| %s | %s | %s | %s |",
				column.Name,
				fallback(column.DatabaseType, "?"),
				nullableLabel(column.Nullable),
				escapeCell(descriptions[column.Name]),
			))
		}
		lines = append(lines, "")
	}

	if sample > 0 {
		if sample > maxSampleRows {
			sample = maxSampleRows
		}
		lines = append(lines, "### Sample")
		rows, err := s.repo.Query(ctx, "SELECT * FROM "+s.dialect.QuoteIdent(name), sample)
		switch {
		case err != nil:
			lines = append(lines, "_Error fetching sample: "+err.Error()+"_")
		case len(rows.Rows) == 0:
			lines = append(lines, "_No data_")
		default:
			lines = append(lines, renderTable(rows.Columns, rows.Rows)...)
		}
	}

	return strings.Join(lines, "\n"), nil
}

// RenderMarkdownTable renders query rows the way Inspect renders samples.
func RenderMarkdownTable(rows QueryRows) string {
	if len(rows.Rows) == 0 {
		return "_No data_"
	}
	lines := renderTable(rows.Columns, rows.Rows)
	if rows.Truncated {
		lines = append(lines, "", fmt.Sprintf("_Showing the first %d rows_", len(rows.Rows)))
	}
	return strings.Join(lines, "\n")
}

func renderTable(columns []string, rows [][]any) []string {
	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, "| "+strings.Join(columns, " | ")+" |")
	separators := make([]string, len(columns))
	for i := range separators {
		separators[i] = "---"
	}
	lines = append(lines, "| "+strings.Join(separators, " | ")+" |")
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = FormatCell(value)
		}
		lines = append(lines, "| "+strings.Join(cells, " | ")+" |")
	}
	return lines
}

// FormatCell renders a value for a Markdown table cell: NULL for nil,
// long text cut to a fixed width.
func FormatCell(value any) string {
	if value == nil {
		return "NULL"
	}
	text := fmt.Sprint(value)
	if runes := []rune(text); len(runes) > sampleCellSize {
		text = string(runes[:sampleCellSize])
	}
	return escapeCell(text)
}

func escapeCell(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.ReplaceAll(text, "|", `\|`)
}

func nullableLabel(nullable *bool) string {
	if nullable == nil {
		return "?"
	}
	if *nullable {
		return "Yes"
	}
	return "No"
}

func fallback(value string, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

func groupThousands(n int64) string {
	digits := strconv.FormatInt(n, 10)
	negative := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}
