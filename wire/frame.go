package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Frame URNs. They discriminate frames on the WebSocket wire and name the
// parts of a multipart HTTP request.
const (
	URNQuery             = "urn:prisma:query"
	URNDescriptor        = "urn:prisma:query:descriptor"
	URNParamText         = "urn:prisma:query:param:text"
	URNParamBinary       = "urn:prisma:query:param:binary"
	URNResultDescription = "urn:prisma:query:result:description"
	URNResultDataRow     = "urn:prisma:query:result:datarow"
	URNResultComplete    = "urn:prisma:query:result:complete"
	URNResultError       = "urn:prisma:query:result:error"
)

// Kind selects the statement shape: query returns rows, exec returns a
// single synthetic rows-affected row.
type Kind string

const (
	KindQuery Kind = "query"
	KindExec  Kind = "exec"
)

// Column describes one result column.
type Column struct {
	Name string `json:"name"`
	OID  uint32 `json:"typeOid"`
}

// Row is an ordered vector of column values; nil means SQL NULL.
type Row []*string

// ParamDescriptor is one entry of a descriptor frame's parameter list.
// Inline descriptors carry the value itself (base64 for binary); extended
// descriptors only declare the byte size of a follow-up frame.
type ParamDescriptor struct {
	Format   Format
	Inline   bool
	Value    *string // inline only; nil encodes JSON null
	ByteSize int64   // extended only
}

func (d ParamDescriptor) MarshalJSON() ([]byte, error) {
	if d.Inline {
		return json.Marshal(struct {
			Type  string  `json:"type"`
			Value *string `json:"value"`
		}{d.Format.String(), d.Value})
	}
	return json.Marshal(struct {
		Type     string `json:"type"`
		ByteSize int64  `json:"byteSize"`
	}{d.Format.String(), d.ByteSize})
}

// Descriptor is the query descriptor frame. It opens every statement and is
// followed by one extended-parameter frame per extended descriptor.
type Descriptor struct {
	Kind   Kind
	SQL    string
	Params []ParamDescriptor
}

// URN returns the frame discriminator.
func (Descriptor) URN() string { return URNDescriptor }

func (d Descriptor) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 2)
	m[string(d.Kind)] = d.SQL
	if len(d.Params) > 0 {
		m["parameters"] = d.Params
	}
	return json.Marshal(m)
}

// ExtendedParam is the follow-up frame for a parameter too large to inline.
// Either Data or R holds the payload; R is a bounded stream consumed once.
type ExtendedParam struct {
	Format   Format
	ByteSize int64
	Data     []byte
	R        io.Reader
}

// URN returns the frame discriminator for the parameter's format.
func (p ExtendedParam) URN() string {
	if p.Format == FormatBinary {
		return URNParamBinary
	}
	return URNParamText
}

// Payload returns the frame body as a reader without materializing streams.
func (p ExtendedParam) Payload() io.Reader {
	if p.R != nil {
		return io.LimitReader(p.R, p.ByteSize)
	}
	return bytes.NewReader(p.Data)
}

// Materialize drains a streamed payload into memory. WebSocket frames are
// single messages, so streams must be collapsed before sending.
func (p *ExtendedParam) Materialize() error {
	if p.R == nil {
		return nil
	}
	data := make([]byte, p.ByteSize)
	if _, err := io.ReadFull(p.R, data); err != nil {
		return fmt.Errorf("read parameter stream: %w", err)
	}
	p.Data = data
	p.R = nil
	return nil
}
