package repository

import (
    "context"
    "database/sql"
    "strings"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the scan helpers can
// run inside or outside a transaction.
type querier interface {
    ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
    QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
    QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// placeholders returns "?,?,?" for n arguments.
func placeholders(n int) string {
    if n <= 0 {
        return ""
    }
    return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []uint64) []any {
    out := make([]any, len(ids))
    for i, id := range ids {
        out[i] = id
    }
    return out
}
