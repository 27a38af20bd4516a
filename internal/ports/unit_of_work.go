package ports

import "context"

// Tx is an opaque transaction handle owned by the repository adapter.
type Tx interface{}

// UnitOfWork groups statements against the target database. An error from
// fn rolls back, nil commits. MySQL commits DDL implicitly, so only engines
// with transactional DDL (SQLite) get an atomic view replacement.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

func WithTxContext(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func TxFromContext(ctx context.Context) Tx {
	return ctx.Value(txKey{})
}
