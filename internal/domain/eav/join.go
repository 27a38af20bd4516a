package eav

import (
	"fmt"
	"strings"
)

const (
	joinFromAlias = "f"
	joinToAlias   = "t"
)

// CastJoin joins a view holding a textual reference to the view it points
// at. Rows whose reference is NULL or not a plain integer never match.
type CastJoin struct {
	From      string
	RefColumn string
	To        string
	ToColumn  string
	Predicate string
	Query     string
	Columns   []string
}

// JoinPredicate equates toAlias.toColumn with the numerically cast
// fromAlias.refColumn.
func JoinPredicate(d Dialect, fromAlias string, refColumn string, toAlias string, toColumn string) string {
	ref := fromAlias + "." + d.QuoteIdent(refColumn)
	return toAlias + "." + d.QuoteIdent(toColumn) + " = " + d.UnsignedRef(ref)
}

// BuildCastJoin resolves both views from the catalog. When to is empty the
// target is taken from the reference column's declaration.
func BuildCastJoin(catalog Catalog, d Dialect, from string, refColumn string, to string) (CastJoin, error) {
	fromView, ok := catalog.View(from)
	if !ok {
		return CastJoin{}, fmt.Errorf("%w: %s", ErrUnknownView, from)
	}
	ref, ok := fromView.Column(strings.TrimSpace(refColumn))
	if !ok {
		return CastJoin{}, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, fromView.Name, refColumn)
	}

	target := strings.TrimSpace(to)
	if target == "" {
		target = ref.References
	}
	if target == "" {
		return CastJoin{}, fmt.Errorf("%w: %s.%s declares no referenced view; name the target view", ErrInvalidSpec, fromView.Name, ref.Name)
	}
	toView, ok := catalog.View(target)
	if !ok {
		return CastJoin{}, fmt.Errorf("%w: %s", ErrUnknownView, target)
	}

	predicate := JoinPredicate(d, joinFromAlias, ref.Name, joinToAlias, toView.IDAlias)

	q := d.QuoteIdent
	columns := make([]string, 0, len(fromView.Columns)+len(toView.Columns)+2)
	selects := make([]string, 0, cap(columns))
	for _, name := range fromView.OutputColumns() {
		columns = append(columns, name)
		selects = append(selects, "    "+joinFromAlias+"."+q(name))
	}
	for _, name := range toView.OutputColumns() {
		alias := toView.Name + "_" + name
		columns = append(columns, alias)
		selects = append(selects, "    "+joinToAlias+"."+q(name)+" AS "+q(alias))
	}

	query := "SELECT\n" + strings.Join(selects, ",\n") +
		"\nFROM " + q(fromView.Name) + " " + joinFromAlias +
		"\nJOIN " + q(toView.Name) + " " + joinToAlias + " ON " + predicate

	return CastJoin{
		From:      fromView.Name,
		RefColumn: ref.Name,
		To:        toView.Name,
		ToColumn:  toView.IDAlias,
		Predicate: predicate,
		Query:     query,
		Columns:   columns,
	}, nil
}
