package eav

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownView        = errors.New("unknown view")
	ErrUnknownColumn      = errors.New("unknown column")
	ErrInvalidSpec        = errors.New("invalid view spec")
	ErrUnsupportedCatalog = errors.New("unsupported catalog version")
	ErrSchema             = errors.New("schema error")
	ErrReadOnlyQuery      = errors.New("only SELECT queries are allowed")
)

// SchemaError reports that a view could not be created or does not match its
// declaration. errors.Is(err, ErrSchema) holds for every SchemaError.
type SchemaError struct {
	View  string
	Cause error
}

func NewSchemaError(view string, cause error) *SchemaError {
	return &SchemaError{View: view, Cause: cause}
}

func (e *SchemaError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("schema error for view %s", e.View)
	}
	return fmt.Sprintf("schema error for view %s: %v", e.View, e.Cause)
}

func (e *SchemaError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrSchema}
	}
	return []error{ErrSchema, e.Cause}
}

// MissingTableError is the usual cause of a SchemaError.
type MissingTableError struct {
	Table string
}

func (e *MissingTableError) Error() string {
	return fmt.Sprintf("table %s does not exist", e.Table)
}

func invalidSpec(view string, format string, args ...any) error {
	return fmt.Errorf("%w: view %s: %s", ErrInvalidSpec, view, fmt.Sprintf(format, args...))
}
