package wire

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// InlineThreshold is the largest payload, in bytes, carried inside the
// descriptor itself. Anything strictly larger travels as an extended frame.
const InlineThreshold = 1024

var ErrUnsupportedParam = errors.New("unsupported parameter")

// Encode turns a statement into its outbound frame sequence: one descriptor
// plus one extended frame per oversized parameter, in parameter order.
func Encode(kind Kind, sql string, params []Param) (Descriptor, []ExtendedParam, error) {
	desc := Descriptor{Kind: kind, SQL: sql}
	var extended []ExtendedParam

	for i, p := range params {
		pd, ext, err := encodeParam(p)
		if err != nil {
			return Descriptor{}, nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		desc.Params = append(desc.Params, pd)
		if ext != nil {
			extended = append(extended, *ext)
		}
	}
	return desc, extended, nil
}

func encodeParam(p Param) (ParamDescriptor, *ExtendedParam, error) {
	switch v := p.(type) {
	case NullParam:
		return ParamDescriptor{Format: FormatText, Inline: true}, nil, nil

	case TextParam:
		// len of a Go string is its UTF-8 byte length.
		if len(v.Value) <= InlineThreshold {
			s := v.Value
			return ParamDescriptor{Format: FormatText, Inline: true, Value: &s}, nil, nil
		}
		return ParamDescriptor{Format: FormatText, ByteSize: int64(len(v.Value))},
			&ExtendedParam{Format: FormatText, ByteSize: int64(len(v.Value)), Data: []byte(v.Value)}, nil

	case BytesParam:
		size := int64(len(v.Data))
		if size <= InlineThreshold {
			s := inlineValue(v.Data, v.Format)
			return ParamDescriptor{Format: v.Format, Inline: true, Value: &s}, nil, nil
		}
		return ParamDescriptor{Format: v.Format, ByteSize: size},
			&ExtendedParam{Format: v.Format, ByteSize: size, Data: v.Data}, nil

	case StreamParam:
		if v.R == nil {
			return ParamDescriptor{}, nil, fmt.Errorf("%w: nil stream", ErrUnsupportedParam)
		}
		if v.ByteSize <= InlineThreshold {
			data := make([]byte, v.ByteSize)
			if _, err := io.ReadFull(v.R, data); err != nil {
				return ParamDescriptor{}, nil, fmt.Errorf("read parameter stream: %w", err)
			}
			s := inlineValue(data, v.Format)
			return ParamDescriptor{Format: v.Format, Inline: true, Value: &s}, nil, nil
		}
		return ParamDescriptor{Format: v.Format, ByteSize: v.ByteSize},
			&ExtendedParam{Format: v.Format, ByteSize: v.ByteSize, R: v.R}, nil

	default:
		return ParamDescriptor{}, nil, fmt.Errorf("%w: %T", ErrUnsupportedParam, p)
	}
}

func inlineValue(data []byte, f Format) string {
	if f == FormatBinary {
		return base64.StdEncoding.EncodeToString(data)
	}
	return string(data)
}
