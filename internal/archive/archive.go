// Package archive persists the identities of completed downloads so future
// runs skip them. Entries are written only after a transfer is confirmed
// complete on disk; a partial download is never marked seen.
package archive

import (
	"context"
	"strings"
)

// Store is the durable dedup table, keyed by (category, identity). It is
// process-wide shared state: opened once, closed at process exit, safe for
// concurrent use by transfer workers.
type Store interface {
	// Seen reports whether an identity was recorded by a previous
	// successful download.
	Seen(ctx context.Context, category, identity string) (bool, error)

	// Record durably marks an identity as downloaded. Recording the same
	// identity twice is a no-op.
	Record(ctx context.Context, category, identity string) error

	Close() error
}

// Open selects a backend by DSN: postgres:// connection strings use
// Postgres, anything else is treated as a SQLite file path.
func Open(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgres(ctx, dsn)
	}
	return NewSQLite(ctx, dsn)
}
