package backup

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/vohoa/postgres-backup-plugin/internal/logging"
)

// TableExporter streams one table's rows through the bulk-copy channel into
// the output stream. Rows pass through a fixed-size buffer, so memory use is
// O(buffer size) regardless of table size.
type TableExporter struct {
	streamer   CopyStreamer
	bufferSize int
	logger     *logging.Logger

	// lastQuery records the most recent COPY statement issued, for logging
	// and verification.
	lastQuery string
}

// NewTableExporter creates a table exporter over the given copy streamer
func NewTableExporter(streamer CopyStreamer, bufferSize int, logger *logging.Logger) *TableExporter {
	if bufferSize <= 0 {
		bufferSize = 8192
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &TableExporter{
		streamer:   streamer,
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Export writes one table's payload block: the COPY FROM header, the
// streamed rows, and the terminator. filterQuery, when non-empty, is the
// resolved SELECT the copy runs over; empty means copy the table directly.
func (e *TableExporter) Export(ctx context.Context, w io.Writer, t *TableDescriptor, filterQuery string, opts CopyOptions) (TableStats, error) {
	stats := TableStats{Columns: len(t.Columns)}
	start := time.Now()

	if _, err := fmt.Fprintf(w, "%s\n", buildCopyFromHeader(t, opts)); err != nil {
		return stats, err
	}

	copyQuery := buildCopyToQuery(t, filterQuery, opts)
	e.lastQuery = copyQuery
	e.logger.Debugf("issuing bulk copy: %s", copyQuery)

	buffered := bufio.NewWriterSize(w, e.bufferSize)
	counting := &countingWriter{w: buffered}

	rows, err := e.streamer.CopyTo(ctx, counting, copyQuery)
	if err != nil {
		// Flush whatever made it out so the partial file reflects reality.
		buffered.Flush()
		e.logger.LogTableExport(t.QualifiedName(), rows, counting.bytes, time.Since(start), err)
		return stats, err
	}
	if err := buffered.Flush(); err != nil {
		return stats, err
	}

	if _, err := fmt.Fprintf(w, "%s\n", copyTerminator); err != nil {
		return stats, err
	}

	stats.Rows = rows
	stats.Bytes = counting.bytes
	e.logger.LogTableExport(t.QualifiedName(), rows, counting.bytes, time.Since(start), nil)

	return stats, nil
}

// LastQuery returns the most recent COPY statement issued
func (e *TableExporter) LastQuery() string {
	return e.lastQuery
}

// countingWriter tracks bytes written through it
type countingWriter struct {
	w     io.Writer
	bytes int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.bytes += int64(n)
	return n, err
}

// pgCopyStreamer drives COPY TO STDOUT through the pgx connection underneath
// a pinned database/sql connection. Running on the pinned connection keeps
// the copy inside the session's snapshot transaction.
type pgCopyStreamer struct {
	conn *sql.Conn
}

// NewPgCopyStreamer wraps a pinned connection as a CopyStreamer
func NewPgCopyStreamer(conn *sql.Conn) CopyStreamer {
	return &pgCopyStreamer{conn: conn}
}

func (s *pgCopyStreamer) CopyTo(ctx context.Context, w io.Writer, query string) (int64, error) {
	var rows int64
	err := s.conn.Raw(func(driverConn interface{}) error {
		stdlibConn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("bulk copy requires the pgx driver, got %T", driverConn)
		}
		tag, err := stdlibConn.Conn().PgConn().CopyTo(ctx, w, query)
		if err != nil {
			return err
		}
		rows = tag.RowsAffected()
		return nil
	})
	return rows, err
}
