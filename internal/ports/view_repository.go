package ports

import (
	"context"
	"errors"
)

// ErrMissingObject marks a statement that failed because a table or column
// it names does not exist.
var ErrMissingObject = errors.New("missing table or column")

const (
	RelationTable = "table"
	RelationView  = "view"
)

type Relation struct {
	Name string
	Kind string
}

type Column struct {
	Name         string
	DatabaseType string
	// Nullable is nil when the driver cannot tell.
	Nullable *bool
}

type QueryResult struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}

// ViewReadRepository introspects the target database and runs read-only
// statements against it.
type ViewReadRepository interface {
	Driver() string
	HasTable(ctx context.Context, name string) (bool, error)
	HasView(ctx context.Context, name string) (bool, error)
	ListRelations(ctx context.Context) ([]Relation, error)
	Columns(ctx context.Context, relation string) ([]Column, error)
	CountRows(ctx context.Context, relation string) (int64, error)
	// Count runs a statement returning a single integer.
	Count(ctx context.Context, query string) (int64, error)
	Query(ctx context.Context, query string, limit int) (QueryResult, error)
}

type ViewRepository interface {
	ViewReadRepository
	// ExecDDL runs statements in order. Inside a unit of work they share its
	// transaction.
	ExecDDL(ctx context.Context, statements []string) error
}
