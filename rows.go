package ppg

import (
	"context"
	"io"

	"github.com/prisma/ppg-go/internal/transport"
	"github.com/prisma/ppg-go/wire"
)

// Column describes one result column: its name and Postgres type OID.
type Column struct {
	Name string
	OID  uint32
}

// Rows is the lazy result stream of one statement. Iterate with Next/Values,
// or drain everything left with Collect. The stream is consumed once: after
// Close or a full iteration, Next reports false and Collect returns no rows.
type Rows struct {
	columns []Column
	rd      transport.RowReader
	parsers *parserTable

	raw  wire.Row
	err  error
	done bool
}

func newRows(resp *transport.Response, parsers *parserTable) *Rows {
	cols := make([]Column, len(resp.Columns))
	for i, c := range resp.Columns {
		cols[i] = Column{Name: c.Name, OID: c.OID}
	}
	return &Rows{columns: cols, rd: resp.Rows, parsers: parsers}
}

// Columns returns the column descriptors. Available before the first row.
func (r *Rows) Columns() []Column {
	return r.columns
}

// Next advances to the next row. It returns false at the end of the stream
// or on error; check Err afterwards.
func (r *Rows) Next(ctx context.Context) bool {
	if r.done {
		return false
	}
	row, err := r.rd.Read(ctx)
	if err != nil {
		r.done = true
		if err != io.EOF {
			r.err = err
		}
		_ = r.rd.Close()
		return false
	}
	r.raw = row
	return true
}

// Values parses the current row through the parser table keyed by column
// OID.
func (r *Rows) Values() ([]any, error) {
	vals := make([]any, len(r.raw))
	for i, v := range r.raw {
		oid := uint32(0)
		if i < len(r.columns) {
			oid = r.columns[i].OID
		}
		parsed, err := r.parsers.parse(oid, v)
		if err != nil {
			return nil, err
		}
		vals[i] = parsed
	}
	return vals, nil
}

// RawValues returns the current row's unparsed values; nil means NULL.
func (r *Rows) RawValues() []*string {
	return r.raw
}

// Err returns the error that ended iteration, if any.
func (r *Rows) Err() error {
	return r.err
}

// Close discards the remaining rows and releases the stream. The server
// keeps executing; late rows are dropped as they arrive.
func (r *Rows) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	return r.rd.Close()
}

// Collect drains the remaining rows into a slice. A second call, or a call
// after full iteration, returns an empty result.
func (r *Rows) Collect(ctx context.Context) ([][]any, error) {
	out := [][]any{}
	for r.Next(ctx) {
		vals, err := r.Values()
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		out = append(out, vals)
	}
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}
