package transport

import (
	"context"
	"io"
	"sync"

	"github.com/prisma/ppg-go/wire"
)

// result resolves a pending statement: either a response or an error.
type result struct {
	resp *Response
	err  error
}

// runningQuery is the per-statement state owned by the query queue. Rows are
// buffered without bound for slow consumers; at most one reader is parked
// waiting for the next row.
type runningQuery struct {
	mu      sync.Mutex
	buf     []wire.Row
	waiter  chan struct{} // non-nil while a reader is parked
	done    bool
	err     error
	discard bool

	resolved bool
	resultc  chan result
}

func newRunningQuery() *runningQuery {
	return &runningQuery{resultc: make(chan result, 1)}
}

// resolve settles the statement promise exactly once.
func (q *runningQuery) resolve(resp *Response, err error) {
	q.mu.Lock()
	if q.resolved {
		q.mu.Unlock()
		return
	}
	q.resolved = true
	q.mu.Unlock()
	q.resultc <- result{resp: resp, err: err}
}

func (q *runningQuery) onDescription(cols []wire.Column) {
	q.resolve(&Response{Columns: cols, Rows: &queryRows{q: q}}, nil)
}

func (q *runningQuery) onRow(row wire.Row) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done || q.discard {
		return
	}
	q.buf = append(q.buf, row)
	q.wake()
}

// onComplete marks the query finished. A statement that completed without a
// row description resolves with an empty column set and no rows.
func (q *runningQuery) onComplete() {
	q.mu.Lock()
	q.done = true
	q.wake()
	q.mu.Unlock()
	q.resolve(&Response{Rows: emptyRows{}}, nil)
}

// onError fails the query: the parked reader observes the error, or, if the
// statement promise is still pending, the promise rejects.
func (q *runningQuery) onError(err error) {
	q.mu.Lock()
	q.done = true
	q.err = err
	q.wake()
	q.mu.Unlock()
	q.resolve(nil, err)
}

// abort is onError for transport-level failures; same terminal handling.
func (q *runningQuery) abort(err error) {
	q.onError(err)
}

func (q *runningQuery) wake() {
	if q.waiter != nil {
		close(q.waiter)
		q.waiter = nil
	}
}

// queryRows streams rows of one running query to its consumer.
type queryRows struct {
	q *runningQuery
}

func (r *queryRows) Read(ctx context.Context) (wire.Row, error) {
	q := r.q
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			row := q.buf[0]
			q.buf = q.buf[1:]
			q.mu.Unlock()
			return row, nil
		}
		if q.done {
			err := q.err
			q.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		if q.waiter == nil {
			q.waiter = make(chan struct{})
		}
		w := q.waiter
		q.mu.Unlock()

		select {
		case <-w:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops consumption. The query stays in the queue until its terminal
// frame arrives; rows received in the meantime are dropped.
func (r *queryRows) Close() error {
	q := r.q
	q.mu.Lock()
	q.discard = true
	q.buf = nil
	q.mu.Unlock()
	return nil
}

// queryQueue is the FIFO of running queries on one WebSocket connection.
// Inbound frames always apply to the head.
type queryQueue struct {
	mu      sync.Mutex
	queries []*runningQuery
}

func (qq *queryQueue) push(q *runningQuery) {
	qq.mu.Lock()
	qq.queries = append(qq.queries, q)
	qq.mu.Unlock()
}

func (qq *queryQueue) head() *runningQuery {
	qq.mu.Lock()
	defer qq.mu.Unlock()
	if len(qq.queries) == 0 {
		return nil
	}
	return qq.queries[0]
}

// pop removes the head. Each query is popped exactly once, on complete or
// error.
func (qq *queryQueue) pop() {
	qq.mu.Lock()
	if len(qq.queries) > 0 {
		qq.queries = qq.queries[1:]
	}
	qq.mu.Unlock()
}

// remove drops a specific query, used when its frames failed to send.
func (qq *queryQueue) remove(q *runningQuery) {
	qq.mu.Lock()
	for i, cur := range qq.queries {
		if cur == q {
			qq.queries = append(qq.queries[:i], qq.queries[i+1:]...)
			break
		}
	}
	qq.mu.Unlock()
}

func (qq *queryQueue) empty() bool {
	qq.mu.Lock()
	defer qq.mu.Unlock()
	return len(qq.queries) == 0
}

// abortAll fails every queued query and empties the queue.
func (qq *queryQueue) abortAll(err error) {
	qq.mu.Lock()
	queries := qq.queries
	qq.queries = nil
	qq.mu.Unlock()
	for _, q := range queries {
		q.abort(err)
	}
}
