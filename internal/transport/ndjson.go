package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/prisma/ppg-go/pgerror"
	"github.com/prisma/ppg-go/wire"
)

// newNDJSONRows parses an application/x-ndjson response stream. It reads
// frames until the column set is known (row description, a data row arriving
// before any description, or a terminal frame), then returns a response whose
// row reader replays what priming consumed before continuing from the stream.
func newNDJSONRows(body io.ReadCloser) (*Response, error) {
	rows := &ndjsonRows{body: body, dec: json.NewDecoder(body)}

	for {
		frame, err := rows.decode()
		if err != nil {
			return nil, err
		}
		switch f := frame.(type) {
		case nil:
			continue
		case wire.RowDescription:
			return &Response{Columns: f.Columns, Rows: rows}, nil
		case wire.DataRow:
			// A row before any description: yield it with an empty column set.
			rows.replay = append(rows.replay, f.Values)
			return &Response{Rows: rows}, nil
		case wire.CommandComplete:
			rows.done = true
			body.Close()
			return &Response{Rows: rows}, nil
		case wire.ErrorFrame:
			body.Close()
			return nil, databaseError(f)
		}
	}
}

// ndjsonRows decodes data rows lazily from the response body.
type ndjsonRows struct {
	body   io.ReadCloser
	dec    *json.Decoder
	replay []wire.Row
	done   bool
}

func (r *ndjsonRows) Read(ctx context.Context) (wire.Row, error) {
	if len(r.replay) > 0 {
		row := r.replay[0]
		r.replay = r.replay[1:]
		return row, nil
	}
	if r.done {
		return nil, io.EOF
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	for {
		frame, err := r.decode()
		if err != nil {
			r.done = true
			r.body.Close()
			return nil, err
		}
		switch f := frame.(type) {
		case nil:
			// Unrecognized frame shapes are skipped for forward compatibility.
			continue
		case wire.DataRow:
			return f.Values, nil
		case wire.CommandComplete:
			r.done = true
			r.body.Close()
			return nil, io.EOF
		case wire.ErrorFrame:
			r.done = true
			r.body.Close()
			return nil, databaseError(f)
		default:
			continue
		}
	}
}

func (r *ndjsonRows) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	r.replay = nil
	return r.body.Close()
}

// decode reads the next frame from the stream. The JSON decoder skips the
// newlines and blank lines between frames on its own.
func (r *ndjsonRows) decode() (wire.Inbound, error) {
	var raw json.RawMessage
	if err := r.dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: response ended without a terminal frame", pgerror.ErrProtocol)
		}
		return nil, fmt.Errorf("%w: %s", pgerror.ErrProtocol, err)
	}
	frame, err := wire.DecodeInbound(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pgerror.ErrProtocol, err)
	}
	return frame, nil
}

func databaseError(f wire.ErrorFrame) error {
	return &pgerror.DatabaseError{Code: f.Code, Message: f.Message, Details: f.Details}
}
