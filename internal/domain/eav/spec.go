package eav

import "strings"

const (
	DefaultIDColumn    = "SystemId"
	DefaultKeyColumn   = "LookupKey"
	DefaultValueColumn = "LookupValue"
)

// Mode selects how a view reads its source.
type Mode string

const (
	// ModePivot folds (id, key, value) lookup rows into one row per id.
	ModePivot Mode = "pivot"
	// ModePassthrough renames and coerces columns of an already relational table.
	ModePassthrough Mode = "passthrough"
)

// TieBreak decides which value wins when a key appears more than once for
// the same entity.
type TieBreak string

const (
	// TieBreakMax keeps the greatest value in collation order. Deterministic,
	// but unrelated to write order.
	TieBreakMax TieBreak = "max"
	TieBreakMin TieBreak = "min"
	// TieBreakLatest keeps the value of the row with the greatest OrderColumn.
	TieBreakLatest TieBreak = "latest"
)

type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeInteger ColumnType = "integer"
	TypeDecimal ColumnType = "decimal"
	TypeDate    ColumnType = "date"
)

const (
	DateLayoutISO     = "2006-01-02"
	DateLayoutCompact = "20060102"
)

const (
	defaultDecimalPrecision = 10
	defaultDecimalScale     = 2
)

// ViewSpec is one projection: which source to read and how every output
// column is derived.
type ViewSpec struct {
	Name        string       `toml:"name" yaml:"name" jsonschema:"required"`
	Description string       `toml:"description" yaml:"description"`
	Mode        Mode         `toml:"mode" yaml:"mode" jsonschema:"enum=pivot,enum=passthrough"`
	LookupTable string       `toml:"lookup_table" yaml:"lookup_table"`
	EntityTable string       `toml:"entity_table" yaml:"entity_table"`
	IDColumn    string       `toml:"id_column" yaml:"id_column"`
	IDAlias     string       `toml:"id_alias" yaml:"id_alias"`
	KeyColumn   string       `toml:"key_column" yaml:"key_column"`
	ValueColumn string       `toml:"value_column" yaml:"value_column"`
	TieBreak    TieBreak     `toml:"tie_break" yaml:"tie_break" jsonschema:"enum=max,enum=min,enum=latest"`
	OrderColumn string       `toml:"order_column" yaml:"order_column"`
	Columns     []ColumnSpec `toml:"columns" yaml:"columns"`
}

// ColumnSpec maps one output column. Key is the LookupKey in pivot mode and
// the source column name in passthrough mode.
type ColumnSpec struct {
	Name        string     `toml:"name" yaml:"name" jsonschema:"required"`
	Key         string     `toml:"key" yaml:"key"`
	Type        ColumnType `toml:"type" yaml:"type" jsonschema:"enum=text,enum=integer,enum=decimal,enum=date"`
	Precision   int        `toml:"precision" yaml:"precision"`
	Scale       int        `toml:"scale" yaml:"scale"`
	Layout      string     `toml:"layout" yaml:"layout"`
	References  string     `toml:"references" yaml:"references"`
	Description string     `toml:"description" yaml:"description"`
}

// Normalized fills defaults. It never changes a value that was set.
func (s ViewSpec) Normalized() ViewSpec {
	s.Name = strings.TrimSpace(s.Name)
	if s.Mode == "" {
		s.Mode = ModePivot
	}
	if s.IDColumn == "" {
		s.IDColumn = DefaultIDColumn
	}
	if s.IDAlias == "" {
		s.IDAlias = "id"
	}
	if s.KeyColumn == "" {
		s.KeyColumn = DefaultKeyColumn
	}
	if s.ValueColumn == "" {
		s.ValueColumn = DefaultValueColumn
	}
	if s.TieBreak == "" {
		s.TieBreak = TieBreakMax
	}

	columns := make([]ColumnSpec, len(s.Columns))
	for i, column := range s.Columns {
		columns[i] = column.Normalized()
	}
	s.Columns = columns
	return s
}

func (c ColumnSpec) Normalized() ColumnSpec {
	c.Name = strings.TrimSpace(c.Name)
	c.Key = strings.TrimSpace(c.Key)
	if c.Type == "" {
		c.Type = TypeText
	}
	if c.Type == TypeDecimal {
		if c.Precision == 0 {
			c.Precision = defaultDecimalPrecision
		}
		if c.Scale == 0 && c.Precision == defaultDecimalPrecision {
			c.Scale = defaultDecimalScale
		}
	}
	if c.Type == TypeDate && c.Layout == "" {
		c.Layout = DateLayoutISO
	}
	return c
}

// Coerced reports whether the column is cast away from text.
func (c ColumnSpec) Coerced() bool {
	return c.Type != "" && c.Type != TypeText
}

// OutputColumns lists the view's columns in order, id alias first.
func (s ViewSpec) OutputColumns() []string {
	out := make([]string, 0, len(s.Columns)+1)
	out = append(out, s.IDAlias)
	for _, column := range s.Columns {
		out = append(out, column.Name)
	}
	return out
}

// Column finds an output column by name. The id alias is reported as a
// synthetic integer column.
func (s ViewSpec) Column(name string) (ColumnSpec, bool) {
	if name == s.IDAlias {
		return ColumnSpec{Name: s.IDAlias, Key: s.IDColumn, Type: TypeInteger}, true
	}
	for _, column := range s.Columns {
		if column.Name == name {
			return column, true
		}
	}
	return ColumnSpec{}, false
}

// SourceTables returns the tables a view reads, in dependency order.
func (s ViewSpec) SourceTables() []string {
	tables := make([]string, 0, 2)
	if s.EntityTable != "" {
		tables = append(tables, s.EntityTable)
	}
	if s.LookupTable != "" {
		tables = append(tables, s.LookupTable)
	}
	return tables
}

// Catalog is the ordered set of projections for one database.
type Catalog struct {
	Version int        `toml:"version" yaml:"version"`
	Views   []ViewSpec `toml:"views" yaml:"views"`
}

func (c Catalog) Normalized() Catalog {
	views := make([]ViewSpec, len(c.Views))
	for i, view := range c.Views {
		views[i] = view.Normalized()
	}
	c.Views = views
	return c
}

func (c Catalog) View(name string) (ViewSpec, bool) {
	trimmed := strings.TrimSpace(name)
	for _, view := range c.Views {
		if view.Name == trimmed {
			return view, true
		}
	}
	return ViewSpec{}, false
}

func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.Views))
	for _, view := range c.Views {
		names = append(names, view.Name)
	}
	return names
}
