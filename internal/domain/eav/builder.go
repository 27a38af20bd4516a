package eav

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ViewDefinition is the generated SQL for one view.
type ViewDefinition struct {
	View    string
	Dialect string
	Columns []string
	// RawSelect yields the picked values before any coercion, under the
	// final column names.
	RawSelect   string
	Select      string
	Statements  []string
	Fingerprint string
}

const (
	lookupAlias = "l"
	entityAlias = "e"
	sourceAlias = "s"
	rawAlias    = "p"
	latestAlias = "l2"
)

// Build generates the view definition for spec. The spec is normalized and
// validated first.
func Build(spec ViewSpec, dialect Dialect) (ViewDefinition, error) {
	spec = spec.Normalized()
	if err := spec.Validate(); err != nil {
		return ViewDefinition{}, err
	}

	var raw string
	switch spec.Mode {
	case ModePassthrough:
		raw = passthroughSelect(spec, dialect)
	default:
		raw = pivotSelect(spec, dialect)
	}

	final := raw
	if hasCoercions(spec) {
		final = coercedSelect(spec, dialect, raw)
	}

	statements := dialect.ReplaceView(spec.Name, final)
	return ViewDefinition{
		View:        spec.Name,
		Dialect:     dialect.Name(),
		Columns:     spec.OutputColumns(),
		RawSelect:   raw,
		Select:      final,
		Statements:  statements,
		Fingerprint: fingerprint(dialect.Name(), statements),
	}, nil
}

// AuditQuery counts the non-null source values of column that the declared
// coercion turns into NULL.
func AuditQuery(def ViewDefinition, column ColumnSpec, dialect Dialect) string {
	ref := rawAlias + "." + dialect.QuoteIdent(column.Name)
	return "SELECT COUNT(*) FROM (\n" + def.RawSelect + "\n) " + rawAlias +
		" WHERE " + ref + " IS NOT NULL AND NOT (" + dialect.ConvertsTo(ref, column) + ")"
}

func pivotSelect(spec ViewSpec, d Dialect) string {
	q := d.QuoteIdent
	groupRef := lookupAlias + "." + q(spec.IDColumn)
	from := q(spec.LookupTable) + " " + lookupAlias
	if spec.EntityTable != "" {
		groupRef = entityAlias + "." + q(spec.IDColumn)
		from = q(spec.EntityTable) + " " + entityAlias +
			"\nLEFT JOIN " + q(spec.LookupTable) + " " + lookupAlias +
			" ON " + lookupAlias + "." + q(spec.IDColumn) + " = " + groupRef
	}

	lines := make([]string, 0, len(spec.Columns)+1)
	lines = append(lines, "    "+groupRef+" AS "+q(spec.IDAlias))
	for _, column := range spec.Columns {
		lines = append(lines, "    "+pickExpr(spec, column, groupRef, d)+" AS "+q(column.Name))
	}

	return "SELECT\n" + strings.Join(lines, ",\n") +
		"\nFROM " + from +
		"\nGROUP BY " + groupRef
}

func pickExpr(spec ViewSpec, column ColumnSpec, groupRef string, d Dialect) string {
	q := d.QuoteIdent
	key := quoteLiteral(column.Key)

	if spec.TieBreak == TieBreakLatest {
		return "(SELECT " + latestAlias + "." + q(spec.ValueColumn) +
			" FROM " + q(spec.LookupTable) + " " + latestAlias +
			" WHERE " + latestAlias + "." + q(spec.IDColumn) + " = " + groupRef +
			" AND " + latestAlias + "." + q(spec.KeyColumn) + " = " + key +
			" ORDER BY " + latestAlias + "." + q(spec.OrderColumn) + " DESC LIMIT 1)"
	}

	aggregate := "MAX"
	if spec.TieBreak == TieBreakMin {
		aggregate = "MIN"
	}
	return aggregate + "(CASE WHEN " + lookupAlias + "." + q(spec.KeyColumn) + " = " + key +
		" THEN " + lookupAlias + "." + q(spec.ValueColumn) + " END)"
}

func passthroughSelect(spec ViewSpec, d Dialect) string {
	q := d.QuoteIdent
	lines := make([]string, 0, len(spec.Columns)+1)
	lines = append(lines, "    "+sourceAlias+"."+q(spec.IDColumn)+" AS "+q(spec.IDAlias))
	for _, column := range spec.Columns {
		lines = append(lines, "    "+sourceAlias+"."+q(column.Key)+" AS "+q(column.Name))
	}
	return "SELECT\n" + strings.Join(lines, ",\n") +
		"\nFROM " + q(spec.LookupTable) + " " + sourceAlias
}

func coercedSelect(spec ViewSpec, d Dialect, raw string) string {
	q := d.QuoteIdent
	lines := make([]string, 0, len(spec.Columns)+1)
	lines = append(lines, "    "+rawAlias+"."+q(spec.IDAlias)+" AS "+q(spec.IDAlias))
	for _, column := range spec.Columns {
		ref := rawAlias + "." + q(column.Name)
		lines = append(lines, "    "+d.Convert(ref, column)+" AS "+q(column.Name))
	}
	return "SELECT\n" + strings.Join(lines, ",\n") +
		"\nFROM (\n" + raw + "\n) " + rawAlias
}

func hasCoercions(spec ViewSpec) bool {
	for _, column := range spec.Columns {
		if column.Coerced() {
			return true
		}
	}
	return false
}

func fingerprint(dialect string, statements []string) string {
	sum := sha256.Sum256([]byte(dialect + "\x00" + strings.Join(statements, "\x00")))
	return hex.EncodeToString(sum[:])
}
