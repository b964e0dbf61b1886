// Package tx carries an open *sql.Tx through a context so several store calls
// made under one RunInTx share the same transaction.
package tx

import (
	"context"
	"database/sql"
)

type key struct{}

// WithTx returns ctx carrying tx. A nil tx leaves ctx unchanged.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, key{}, tx)
}

// From returns the transaction joined by ctx, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(key{}).(*sql.Tx)
	return tx, ok && tx != nil
}
