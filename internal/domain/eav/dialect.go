package eav

import (
	"fmt"
	"strings"
)

// Dialect renders the engine-specific parts of a projection. Every
// expression it returns is NULL rather than an error for values that do not
// convert.
type Dialect interface {
	Name() string
	QuoteIdent(name string) string
	// ReplaceView returns the statements that atomically install selectSQL
	// under name, replacing any previous definition.
	ReplaceView(name string, selectSQL string) []string
	DropView(name string) string
	// ConvertsTo is a predicate that holds when expr converts to the column type.
	ConvertsTo(expr string, column ColumnSpec) string
	// Convert casts expr to the column type, NULL when it does not convert.
	Convert(expr string, column ColumnSpec) string
	// UnsignedRef casts a textual reference to an unsigned integer, NULL when
	// the text is not a plain non-negative integer.
	UnsignedRef(expr string) string
	// ColumnTypeName is the SQL type name shown to consumers of the view.
	ColumnTypeName(column ColumnSpec) string
}

// DialectFor returns the dialect registered for a database driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql", "mariadb":
		return MySQL{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("no sql dialect for driver %q", driver)
	}
}

// quoteLiteral renders a single-quoted SQL string literal.
func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// decimalFits bounds a numeric expression to what DECIMAL(precision, scale)
// holds after rounding; larger magnitudes are coercion failures.
func decimalFits(number string, column ColumnSpec) string {
	return fmt.Sprintf("ROUND(ABS(%s), %d) < 1e%d", number, column.Scale, column.Precision-column.Scale)
}

func convertCase(predicate string, cast string) string {
	return "CASE WHEN " + predicate + " THEN " + cast + " END"
}
