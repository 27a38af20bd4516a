package eav

import (
	"strconv"
	"strings"
)

// SQLite renders projections for SQLite. It has no REGEXP by default, so
// numeric checks are spelled with GLOB.
type SQLite struct{}

var _ Dialect = SQLite{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ReplaceView drops and recreates; the caller runs both statements in one
// transaction so readers never observe the gap.
func (d SQLite) ReplaceView(name string, selectSQL string) []string {
	return []string{
		d.DropView(name),
		"CREATE VIEW " + d.QuoteIdent(name) + " AS\n" + selectSQL,
	}
}

func (d SQLite) DropView(name string) string {
	return "DROP VIEW IF EXISTS " + d.QuoteIdent(name)
}

func (SQLite) ConvertsTo(expr string, column ColumnSpec) string {
	t := "TRIM(" + expr + ")"
	switch column.Type {
	case TypeInteger:
		return sqliteInteger(t, "[-+0-9]")
	case TypeDecimal:
		return "(" + t + " <> '' AND SUBSTR(" + t + ", 1, 1) GLOB '[-+0-9.]'" +
			" AND SUBSTR(" + t + ", 2) NOT GLOB '*[^0-9.]*'" +
			" AND " + t + " GLOB '*[0-9]*'" +
			" AND LENGTH(" + t + ") - LENGTH(REPLACE(" + t + ", '.', '')) <= 1" +
			" AND " + decimalFits("CAST("+t+" AS REAL)", column) + ")"
	case TypeDate:
		return sqliteDateCheck(t, column.Layout)
	default:
		return expr + " IS NOT NULL"
	}
}

func (d SQLite) Convert(expr string, column ColumnSpec) string {
	t := "TRIM(" + expr + ")"
	switch column.Type {
	case TypeInteger:
		return convertCase(d.ConvertsTo(expr, column), "CAST("+t+" AS INTEGER)")
	case TypeDecimal:
		return convertCase(d.ConvertsTo(expr, column), "ROUND(CAST("+t+" AS REAL), "+strconv.Itoa(column.Scale)+")")
	case TypeDate:
		return convertCase(sqliteDateCheck(t, column.Layout), "DATE("+sqliteISODate(t, column.Layout)+")")
	default:
		return expr
	}
}

func (SQLite) UnsignedRef(expr string) string {
	t := "TRIM(" + expr + ")"
	return convertCase(sqliteInteger(t, "[0-9]"), "CAST("+t+" AS INTEGER)")
}

func (SQLite) ColumnTypeName(column ColumnSpec) string {
	switch column.Type {
	case TypeInteger:
		return "INTEGER"
	case TypeDecimal:
		return "REAL"
	case TypeDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

// sqliteInteger matches an optional leading char from firstClass followed by
// digits only, with at least one digit overall.
func sqliteInteger(t string, firstClass string) string {
	return "(" + t + " <> '' AND SUBSTR(" + t + ", 1, 1) GLOB '" + firstClass + "'" +
		" AND SUBSTR(" + t + ", 2) NOT GLOB '*[^0-9]*'" +
		" AND " + t + " GLOB '*[0-9]*')"
}

func sqliteDateGlob(layout string) string {
	if layout == DateLayoutCompact {
		return strings.Repeat("[0-9]", 8)
	}
	return "[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]"
}

func sqliteISODate(t string, layout string) string {
	if layout == DateLayoutCompact {
		return "(SUBSTR(" + t + ", 1, 4) || '-' || SUBSTR(" + t + ", 5, 2) || '-' || SUBSTR(" + t + ", 7, 2))"
	}
	return t
}

// sqliteDateCheck accepts only real calendar dates. DATE() echoes an
// unmodified input such as 2025-02-30; a modifier forces it through the
// julian day, which rolls the overflow into March and breaks the round trip.
func sqliteDateCheck(t string, layout string) string {
	iso := sqliteISODate(t, layout)
	return "COALESCE(" + t + " GLOB " + quoteLiteral(sqliteDateGlob(layout)) +
		" AND DATE(" + iso + ", '+0 days') = " + iso + ", 0)"
}
