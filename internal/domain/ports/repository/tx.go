package repository

import "context"

// Tx is an open database transaction. The concrete type belongs to the
// storage package (pgx.Tx for Postgres). Repositories fall back to their
// pool when it is nil.
type Tx interface{}

// NoTX runs a repository call on its own, outside any transaction.
var NoTX Tx

// TransactionManager scopes several repository calls to one transaction.
// An error from fn rolls back and is returned unchanged.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
