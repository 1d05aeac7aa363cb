// Package db holds the Postgres plumbing shared by the store: the pool
// abstraction, COPY loads and temp-table upserts.
package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is what a statement needs. *pgxpool.Pool, pgx.Tx and pgxmock all
// satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// Pool is a Querier that can open transactions. On a pgx.Tx, Begin opens a
// savepoint.
type Pool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Identifier splits a possibly schema-qualified name ("eis.contract") into a
// pgx identifier.
func Identifier(table string) pgx.Identifier {
	schema, name, ok := strings.Cut(table, ".")
	if !ok {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{schema, name}
}
