// Package transport implements the two wire transports of the ppg client:
// a request/response HTTP transport and a pipelined WebSocket transport.
package transport

import (
	"context"
	"io"

	"github.com/prisma/ppg-go/wire"
)

// Response is the result of one statement: the column set, finalized before
// the response is returned, and a lazy row stream.
type Response struct {
	Columns []wire.Column
	Rows    RowReader
}

// RowReader streams result rows in order. Read returns io.EOF after the
// final row. Close discards any remaining rows and releases resources;
// server-side execution is unaffected (the protocol has no cancel frame).
type RowReader interface {
	Read(ctx context.Context) (wire.Row, error)
	Close() error
}

// Transport executes a single statement and returns its response.
type Transport interface {
	Statement(ctx context.Context, kind wire.Kind, sql string, params []wire.Param) (*Response, error)
}

// emptyRows is the row stream of a statement that completed without a row
// description.
type emptyRows struct{}

func (emptyRows) Read(context.Context) (wire.Row, error) { return nil, io.EOF }
func (emptyRows) Close() error                           { return nil }
