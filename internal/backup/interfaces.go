package backup

import (
	"context"
	"database/sql"
	"io"
)

// querier is the read surface the engine needs from a database session.
// *sql.DB, *sql.Conn and *sql.Tx all satisfy it.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// CopyStreamer issues a COPY ... TO STDOUT statement over the bulk-copy
// channel, streaming payload bytes into w. It returns the number of rows
// transferred.
type CopyStreamer interface {
	CopyTo(ctx context.Context, w io.Writer, query string) (int64, error)
}

// ExportSink persists a finished dump file somewhere durable. It must
// tolerate being handed a file it did not create. The returned string
// identifies the stored location (path, object URL).
type ExportSink interface {
	Export(ctx context.Context, localPath string, metadata map[string]string) (string, error)
}
