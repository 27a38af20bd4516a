package ports

import (
	"context"
	"time"
)

// ViewState is what was last installed for a view.
type ViewState struct {
	View        string
	Fingerprint string
	Dialect     string
	DDL         string
	RunID       string
	RowCount    int64
	AppliedAt   time.Time
}

type ViewStateStore interface {
	Get(ctx context.Context, view string) (state ViewState, found bool, err error)
	Put(ctx context.Context, state ViewState) error
	Delete(ctx context.Context, view string) error
	List(ctx context.Context) ([]ViewState, error)
}
