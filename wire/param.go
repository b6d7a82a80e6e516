package wire

import (
	"io"
)

// Format tags a byte payload as text or binary. Text can arrive as bytes,
// so byte parameters carry the tag explicitly.
type Format int

const (
	FormatText Format = iota
	FormatBinary
)

func (f Format) String() string {
	if f == FormatBinary {
		return "binary"
	}
	return "text"
}

// Param is a raw statement parameter, produced by the serializer layer and
// consumed by the frame encoder.
type Param interface {
	param()
}

// NullParam is SQL NULL.
type NullParam struct{}

// TextParam is a text value held as a Go string.
type TextParam struct {
	Value string
}

// BytesParam is a fully materialized byte payload.
type BytesParam struct {
	Data   []byte
	Format Format
}

// StreamParam is a bounded byte stream with a declared length. The stream is
// consumed exactly once, during encoding or transmission.
type StreamParam struct {
	R        io.Reader
	Format   Format
	ByteSize int64
}

func (NullParam) param()   {}
func (TextParam) param()   {}
func (BytesParam) param()  {}
func (StreamParam) param() {}
