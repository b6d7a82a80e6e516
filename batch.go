package ppg

import (
	"context"

	"github.com/prisma/ppg-go/internal/transport"
	"github.com/prisma/ppg-go/wire"
)

// Batch is an ordered list of statements executed atomically: the whole
// batch commits or rolls back as one transaction.
type Batch struct {
	items []batchItem
}

type batchItem struct {
	kind wire.Kind
	sql  string
	args []any
}

// NewBatch returns an empty batch. Statements can also be supplied up
// front: NewBatch(ppg.BatchQuery(sql, args...), ...).
func NewBatch(items ...BatchStatement) *Batch {
	b := &Batch{}
	for _, item := range items {
		b.items = append(b.items, batchItem(item))
	}
	return b
}

// BatchStatement is one prebuilt batch entry, for the array form of batch
// construction.
type BatchStatement batchItem

// BatchQuery builds a row-returning batch entry.
func BatchQuery(sql string, args ...any) BatchStatement {
	return BatchStatement{kind: wire.KindQuery, sql: sql, args: args}
}

// BatchExec builds an affected-count batch entry.
func BatchExec(sql string, args ...any) BatchStatement {
	return BatchStatement{kind: wire.KindExec, sql: sql, args: args}
}

// Query appends a row-returning statement.
func (b *Batch) Query(sql string, args ...any) *Batch {
	b.items = append(b.items, batchItem{kind: wire.KindQuery, sql: sql, args: args})
	return b
}

// Exec appends an affected-count statement.
func (b *Batch) Exec(sql string, args ...any) *Batch {
	b.items = append(b.items, batchItem{kind: wire.KindExec, sql: sql, args: args})
	return b
}

// Len returns the number of queued statements.
func (b *Batch) Len() int {
	return len(b.items)
}

// BatchResult is the outcome of one batch entry: collected rows for a query,
// the affected count for an exec.
type BatchResult struct {
	Columns      []Column
	Rows         [][]any
	RowsAffected int64
}

// SendBatch executes the batch inside a transaction on a fresh session. The
// statements are pipelined: all frames are sent before the first response is
// awaited. Results come back in input order. Any failure rolls the
// transaction back and surfaces the original error. An empty batch still
// performs BEGIN and COMMIT.
func (c *Client) SendBatch(ctx context.Context, b *Batch) ([]BatchResult, error) {
	s, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if _, err := s.Exec(ctx, "BEGIN"); err != nil {
		return nil, err
	}

	results, err := c.sendBatchItems(ctx, s, b.items)
	if err != nil {
		_, _ = s.Exec(ctx, "ROLLBACK")
		return nil, err
	}

	if _, err := s.Exec(ctx, "COMMIT"); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) sendBatchItems(ctx context.Context, s *Session, items []batchItem) ([]BatchResult, error) {
	awaits := make([]func(context.Context) (*transport.Response, error), 0, len(items))
	for _, item := range items {
		params, err := serialize(c.serializers, item.args)
		if err != nil {
			return nil, err
		}
		await, err := s.ws.StatementAsync(ctx, item.kind, item.sql, params)
		if err != nil {
			return nil, err
		}
		awaits = append(awaits, await)
	}

	results := make([]BatchResult, 0, len(items))
	var firstErr error
	for i, await := range awaits {
		resp, err := await(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if firstErr != nil {
			// A failed transaction rejects the rest; just release the stream.
			resp.Rows.Close()
			continue
		}
		res, err := c.batchResult(ctx, items[i].kind, resp)
		if err != nil {
			firstErr = err
			continue
		}
		results = append(results, res)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

func (c *Client) batchResult(ctx context.Context, kind wire.Kind, resp *transport.Response) (BatchResult, error) {
	if kind == wire.KindExec {
		n, err := affectedCount(ctx, resp)
		if err != nil {
			return BatchResult{}, err
		}
		return BatchResult{RowsAffected: n}, nil
	}
	rows := newRows(resp, c.parsers)
	collected, err := rows.Collect(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	return BatchResult{Columns: rows.Columns(), Rows: collected}, nil
}
