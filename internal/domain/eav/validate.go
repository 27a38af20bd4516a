package eav

import (
	"fmt"
	"regexp"
	"strings"
)

const CatalogVersion = 1

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	lookupKeyPattern  = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)
)

func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Validate checks a normalized catalog: every view on its own and the
// references between views.
func (c Catalog) Validate() error {
	if c.Version != CatalogVersion {
		return fmt.Errorf("%w: expected version = %d, got %d", ErrUnsupportedCatalog, CatalogVersion, c.Version)
	}
	if len(c.Views) == 0 {
		return fmt.Errorf("%w: catalog declares no views", ErrInvalidSpec)
	}

	seen := make(map[string]struct{}, len(c.Views))
	for _, view := range c.Views {
		if err := view.Validate(); err != nil {
			return err
		}
		if _, ok := seen[view.Name]; ok {
			return invalidSpec(view.Name, "declared more than once")
		}
		seen[view.Name] = struct{}{}
	}

	for _, view := range c.Views {
		for _, column := range view.Columns {
			if column.References == "" {
				continue
			}
			if _, ok := seen[column.References]; !ok {
				return invalidSpec(view.Name, "column %s references unknown view %s", column.Name, column.References)
			}
		}
	}
	return nil
}

// Validate checks a single normalized view spec.
func (s ViewSpec) Validate() error {
	name := s.Name
	if name == "" {
		return fmt.Errorf("%w: view name is required", ErrInvalidSpec)
	}
	if !IsIdentifier(name) {
		return invalidSpec(name, "name is not a valid identifier")
	}

	switch s.Mode {
	case ModePivot, ModePassthrough:
	default:
		return invalidSpec(name, "mode must be pivot or passthrough, got %q", s.Mode)
	}

	if s.LookupTable == "" {
		return invalidSpec(name, "lookup_table is required")
	}
	for field, value := range map[string]string{
		"lookup_table": s.LookupTable,
		"id_column":    s.IDColumn,
		"id_alias":     s.IDAlias,
		"key_column":   s.KeyColumn,
		"value_column": s.ValueColumn,
	} {
		if !IsIdentifier(value) {
			return invalidSpec(name, "%s %q is not a valid identifier", field, value)
		}
	}
	if s.EntityTable != "" {
		if s.Mode == ModePassthrough {
			return invalidSpec(name, "entity_table is only supported in pivot mode")
		}
		if !IsIdentifier(s.EntityTable) {
			return invalidSpec(name, "entity_table %q is not a valid identifier", s.EntityTable)
		}
	}

	switch s.TieBreak {
	case TieBreakMax, TieBreakMin:
	case TieBreakLatest:
		if s.Mode != ModePivot {
			return invalidSpec(name, "tie_break latest is only supported in pivot mode")
		}
		if s.OrderColumn == "" {
			return invalidSpec(name, "tie_break latest requires order_column")
		}
	default:
		return invalidSpec(name, "tie_break must be max, min or latest, got %q", s.TieBreak)
	}
	if s.OrderColumn != "" && !IsIdentifier(s.OrderColumn) {
		return invalidSpec(name, "order_column %q is not a valid identifier", s.OrderColumn)
	}

	if len(s.Columns) == 0 {
		return invalidSpec(name, "at least one column is required")
	}
	seen := map[string]struct{}{strings.ToLower(s.IDAlias): {}}
	for _, column := range s.Columns {
		if err := column.validate(s); err != nil {
			return err
		}
		lowered := strings.ToLower(column.Name)
		if _, ok := seen[lowered]; ok {
			return invalidSpec(name, "column %s is declared more than once", column.Name)
		}
		seen[lowered] = struct{}{}
	}
	return nil
}

func (c ColumnSpec) validate(view ViewSpec) error {
	if !IsIdentifier(c.Name) {
		return invalidSpec(view.Name, "column name %q is not a valid identifier", c.Name)
	}
	if c.Key == "" {
		return invalidSpec(view.Name, "column %s: key is required", c.Name)
	}
	if view.Mode == ModePassthrough {
		if !IsIdentifier(c.Key) {
			return invalidSpec(view.Name, "column %s: source column %q is not a valid identifier", c.Name, c.Key)
		}
	} else if !lookupKeyPattern.MatchString(c.Key) {
		return invalidSpec(view.Name, "column %s: lookup key %q contains unsupported characters", c.Name, c.Key)
	}
	if c.References != "" && !IsIdentifier(c.References) {
		return invalidSpec(view.Name, "column %s: references %q is not a valid identifier", c.Name, c.References)
	}

	switch c.Type {
	case TypeText, TypeInteger:
	case TypeDecimal:
		if c.Precision < 1 || c.Precision > 65 {
			return invalidSpec(view.Name, "column %s: decimal precision must be within 1..65", c.Name)
		}
		if c.Scale < 0 || c.Scale > 30 || c.Scale > c.Precision {
			return invalidSpec(view.Name, "column %s: decimal scale must be within 0..30 and not exceed precision", c.Name)
		}
	case TypeDate:
		if c.Layout != DateLayoutISO && c.Layout != DateLayoutCompact {
			return invalidSpec(view.Name, "column %s: date layout must be %s or %s", c.Name, DateLayoutISO, DateLayoutCompact)
		}
	default:
		return invalidSpec(view.Name, "column %s: unsupported type %q", c.Name, c.Type)
	}
	return nil
}
