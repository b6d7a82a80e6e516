package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownURN = errors.New("unknown frame URN")

// Inbound is a server response frame.
type Inbound interface {
	inbound()
}

// RowDescription announces the column set of a result.
type RowDescription struct {
	Columns []Column
}

// DataRow carries one row of column values.
type DataRow struct {
	Values Row
}

// CommandComplete terminates a successful statement.
type CommandComplete struct{}

// ErrorFrame terminates a failed statement with a SQLSTATE code, a message
// and any extra detail fields the server attached.
type ErrorFrame struct {
	Message string
	Code    string
	Details map[string]any
}

func (RowDescription) inbound()  {}
func (DataRow) inbound()         {}
func (CommandComplete) inbound() {}
func (ErrorFrame) inbound()      {}

// envelope probes a decoded frame for its discriminating field. Key presence,
// not value, selects the frame kind.
type envelope struct {
	Columns  json.RawMessage `json:"columns"`
	Values   json.RawMessage `json:"values"`
	Complete json.RawMessage `json:"complete"`
	Error    json.RawMessage `json:"error"`
}

// DecodeInbound decodes a frame by shape. Unrecognized shapes return
// (nil, nil) so callers can skip them for forward compatibility.
func DecodeInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	switch {
	case env.Error != nil:
		return decodeError(env.Error)
	case env.Columns != nil:
		var cols []Column
		if err := json.Unmarshal(env.Columns, &cols); err != nil {
			return nil, fmt.Errorf("decode columns: %w", err)
		}
		return RowDescription{Columns: cols}, nil
	case env.Values != nil:
		var vals Row
		if err := json.Unmarshal(env.Values, &vals); err != nil {
			return nil, fmt.Errorf("decode values: %w", err)
		}
		return DataRow{Values: vals}, nil
	case env.Complete != nil:
		var complete bool
		if err := json.Unmarshal(env.Complete, &complete); err != nil || !complete {
			return nil, nil
		}
		return CommandComplete{}, nil
	default:
		return nil, nil
	}
}

// DecodeByURN decodes a frame whose kind is already known from its URN
// header, as on the WebSocket wire. The payload shape must match the URN.
func DecodeByURN(urn string, payload []byte) (Inbound, error) {
	frame, err := DecodeInbound(payload)
	if err != nil {
		return nil, err
	}
	var ok bool
	switch urn {
	case URNResultDescription:
		_, ok = frame.(RowDescription)
	case URNResultDataRow:
		_, ok = frame.(DataRow)
	case URNResultComplete:
		_, ok = frame.(CommandComplete)
	case URNResultError:
		_, ok = frame.(ErrorFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownURN, urn)
	}
	if !ok {
		return nil, fmt.Errorf("frame payload does not match %q", urn)
	}
	return frame, nil
}

func decodeError(raw json.RawMessage) (Inbound, error) {
	details := make(map[string]any)
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, fmt.Errorf("decode error frame: %w", err)
	}
	frame := ErrorFrame{Details: details}
	if m, ok := details["message"].(string); ok {
		frame.Message = m
	}
	if c, ok := details["code"].(string); ok {
		frame.Code = c
	}
	// message and code have dedicated fields; keep the detail map free of them.
	delete(details, "message")
	delete(details, "code")
	return frame, nil
}
