package eav

import (
	"fmt"
	"strings"
)

// MySQL renders projections for MySQL 8 / MariaDB.
type MySQL struct{}

var _ Dialect = MySQL{}

const (
	mysqlIntegerPattern  = `^[-+]?[0-9]+$`
	mysqlUnsignedPattern = `^[0-9]+$`
	mysqlDecimalPattern  = `^[-+]?([0-9]+([.][0-9]*)?|[.][0-9]+)$`
	mysqlISODatePattern  = `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`
	mysqlCompactPattern  = `^[0-9]{8}$`
)

func (MySQL) Name() string { return "mysql" }

func (MySQL) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d MySQL) ReplaceView(name string, selectSQL string) []string {
	return []string{"CREATE OR REPLACE VIEW " + d.QuoteIdent(name) + " AS\n" + selectSQL}
}

func (d MySQL) DropView(name string) string {
	return "DROP VIEW IF EXISTS " + d.QuoteIdent(name)
}

func (MySQL) ConvertsTo(expr string, column ColumnSpec) string {
	trimmed := "TRIM(" + expr + ")"
	switch column.Type {
	case TypeInteger:
		return trimmed + " REGEXP " + quoteLiteral(mysqlIntegerPattern)
	case TypeDecimal:
		return "(" + trimmed + " REGEXP " + quoteLiteral(mysqlDecimalPattern) +
			" AND " + decimalFits(trimmed, column) + ")"
	case TypeDate:
		pattern, format := mysqlDateFormat(column.Layout)
		return "(" + trimmed + " REGEXP " + quoteLiteral(pattern) +
			" AND STR_TO_DATE(" + trimmed + ", " + quoteLiteral(format) + ") IS NOT NULL)"
	default:
		return expr + " IS NOT NULL"
	}
}

func (d MySQL) Convert(expr string, column ColumnSpec) string {
	trimmed := "TRIM(" + expr + ")"
	switch column.Type {
	case TypeInteger:
		return convertCase(d.ConvertsTo(expr, column), "CAST("+trimmed+" AS SIGNED)")
	case TypeDecimal:
		return convertCase(d.ConvertsTo(expr, column), fmt.Sprintf("CAST(%s AS DECIMAL(%d,%d))", trimmed, column.Precision, column.Scale))
	case TypeDate:
		pattern, format := mysqlDateFormat(column.Layout)
		return convertCase(trimmed+" REGEXP "+quoteLiteral(pattern), "STR_TO_DATE("+trimmed+", "+quoteLiteral(format)+")")
	default:
		return expr
	}
}

func (MySQL) UnsignedRef(expr string) string {
	trimmed := "TRIM(" + expr + ")"
	return convertCase(trimmed+" REGEXP "+quoteLiteral(mysqlUnsignedPattern), "CAST("+trimmed+" AS UNSIGNED)")
}

func (MySQL) ColumnTypeName(column ColumnSpec) string {
	switch column.Type {
	case TypeInteger:
		return "INT"
	case TypeDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", column.Precision, column.Scale)
	case TypeDate:
		return "DATE"
	default:
		return "VARCHAR"
	}
}

func mysqlDateFormat(layout string) (pattern string, format string) {
	if layout == DateLayoutCompact {
		return mysqlCompactPattern, "%Y%m%d"
	}
	return mysqlISODatePattern, "%Y-%m-%d"
}
