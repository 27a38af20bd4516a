package eav

import (
	"fmt"
	"strings"
)

type ColumnDescription struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ViewDescription is what a query agent is told about one view: a short
// name plus a one-line column summary.
type ViewDescription struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Columns     []ColumnDescription `json:"columns"`
	Summary     string              `json:"summary"`
}

func Describe(spec ViewSpec, d Dialect) ViewDescription {
	spec = spec.Normalized()

	columns := make([]ColumnDescription, 0, len(spec.Columns)+1)
	columns = append(columns, ColumnDescription{
		Name:        spec.IDAlias,
		Type:        d.ColumnTypeName(ColumnSpec{Type: TypeInteger}),
		Description: "Unique id, one row per entity",
	})
	for _, column := range spec.Columns {
		text := column.Description
		if column.References != "" {
			text = joinSentences(text, "References "+column.References+"; stored as text, join with "+
				castHint(d, column.Name))
		}
		if column.Type == TypeDecimal {
			text = joinSentences(text, fmt.Sprintf("Rounded to %d places; magnitudes of 1e%d or more read as NULL",
				column.Scale, column.Precision-column.Scale))
		}
		if column.Type == TypeDate && column.Layout == DateLayoutCompact {
			text = joinSentences(text, "Parsed from YYYYMMDD")
		}
		columns = append(columns, ColumnDescription{
			Name:        column.Name,
			Type:        d.ColumnTypeName(column),
			Description: text,
		})
	}

	parts := make([]string, 0, len(columns))
	for _, column := range columns {
		part := column.Name + " " + column.Type
		if column.Description != "" {
			part += ": " + column.Description
		}
		parts = append(parts, part)
	}

	return ViewDescription{
		Name:        spec.Name,
		Description: spec.Description,
		Columns:     columns,
		Summary:     strings.Join(parts, "; "),
	}
}

func castHint(d Dialect, column string) string {
	if d.Name() == "mysql" {
		return "CAST(" + column + " AS UNSIGNED)"
	}
	return "CAST(" + column + " AS INTEGER)"
}

func joinSentences(first string, second string) string {
	first = strings.TrimSpace(first)
	if first == "" {
		return second
	}
	if !strings.HasSuffix(first, ".") {
		first += "."
	}
	return first + " " + second
}
