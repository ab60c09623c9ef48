package ports

import (
	"context"
	"database/sql"
)

// RowQuerier is the read-only slice of database/sql used by the structured
// query execution node. *sql.DB satisfies it. Credentials and connection
// management belong to the configuration layer; the node only ever reads.
type RowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
