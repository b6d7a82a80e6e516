package ppg

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/prisma/ppg-go/wire"
)

// Serializer converts a Go value into a raw statement parameter. Serializers
// are probed in registration order, user-provided first; the first match
// wins.
type Serializer func(v any) (wire.Param, bool)

// Parser decodes the text wire representation of one column type. Value is
// nil for SQL NULL; parsers handle null explicitly.
type Parser struct {
	OID   uint32
	Parse func(value *string) (any, error)
}

// serialize maps statement arguments to raw parameters. nil becomes NULL;
// unmatched values fall back to their string conversion.
func serialize(serializers []Serializer, args []any) ([]wire.Param, error) {
	params := make([]wire.Param, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			params = append(params, wire.NullParam{})
			continue
		}
		params = append(params, serializeValue(serializers, arg))
	}
	return params, nil
}

func serializeValue(serializers []Serializer, v any) wire.Param {
	for _, s := range serializers {
		if p, ok := s(v); ok {
			return p
		}
	}
	if p, ok := defaultSerialize(v); ok {
		return p
	}
	return wire.TextParam{Value: fmt.Sprint(v)}
}

// defaultSerialize covers the built-in value shapes. Raw wire parameters
// pass through untouched so callers can hand-build streamed or binary
// parameters.
func defaultSerialize(v any) (wire.Param, bool) {
	switch val := v.(type) {
	case wire.Param:
		return val, true
	case string:
		return wire.TextParam{Value: val}, true
	case []byte:
		return wire.BytesParam{Data: val, Format: wire.FormatBinary}, true
	case bool:
		if val {
			return wire.TextParam{Value: "t"}, true
		}
		return wire.TextParam{Value: "f"}, true
	case int:
		return wire.TextParam{Value: strconv.FormatInt(int64(val), 10)}, true
	case int8:
		return wire.TextParam{Value: strconv.FormatInt(int64(val), 10)}, true
	case int16:
		return wire.TextParam{Value: strconv.FormatInt(int64(val), 10)}, true
	case int32:
		return wire.TextParam{Value: strconv.FormatInt(int64(val), 10)}, true
	case int64:
		return wire.TextParam{Value: strconv.FormatInt(val, 10)}, true
	case uint:
		return wire.TextParam{Value: strconv.FormatUint(uint64(val), 10)}, true
	case uint16:
		return wire.TextParam{Value: strconv.FormatUint(uint64(val), 10)}, true
	case uint32:
		return wire.TextParam{Value: strconv.FormatUint(uint64(val), 10)}, true
	case uint64:
		return wire.TextParam{Value: strconv.FormatUint(val, 10)}, true
	case float32:
		return wire.TextParam{Value: strconv.FormatFloat(float64(val), 'f', -1, 32)}, true
	case float64:
		return wire.TextParam{Value: strconv.FormatFloat(val, 'f', -1, 64)}, true
	case time.Time:
		return wire.TextParam{Value: val.UTC().Format(time.RFC3339Nano)}, true
	case decimal.Decimal:
		return wire.TextParam{Value: val.String()}, true
	case *big.Int:
		return wire.TextParam{Value: val.String()}, true
	case json.RawMessage:
		return wire.TextParam{Value: string(val)}, true
	case fmt.Stringer:
		return wire.TextParam{Value: val.String()}, true
	default:
		return nil, false
	}
}

// parserTable resolves a column OID to its parser, user parsers first.
type parserTable struct {
	user     []Parser
	defaults map[uint32]Parser
}

func newParserTable(user []Parser) *parserTable {
	return &parserTable{user: user, defaults: defaultParsers}
}

// parse decodes one column value. Unknown OIDs return the raw string.
func (t *parserTable) parse(oid uint32, value *string) (any, error) {
	for _, p := range t.user {
		if p.OID == oid {
			return p.Parse(value)
		}
	}
	if p, ok := t.defaults[oid]; ok {
		return p.Parse(value)
	}
	if value == nil {
		return nil, nil
	}
	return *value, nil
}

// nullable wraps a parse func with the common null handling.
func nullable(parse func(string) (any, error)) func(*string) (any, error) {
	return func(value *string) (any, error) {
		if value == nil {
			return nil, nil
		}
		return parse(*value)
	}
}

// timeLayoutByOID maps time-related OIDs to their Postgres text layout.
var timeLayoutByOID = map[uint32]string{
	pgtype.TimestampOID:   "2006-01-02 15:04:05.999999",
	pgtype.TimestamptzOID: "2006-01-02 15:04:05.999999-07",
	pgtype.DateOID:        "2006-01-02",
	pgtype.TimeOID:        "15:04:05.999999",
	pgtype.TimetzOID:      "15:04:05.999999-07",
}

var defaultParsers = buildDefaultParsers()

func buildDefaultParsers() map[uint32]Parser {
	table := map[uint32]Parser{
		pgtype.BoolOID: {OID: pgtype.BoolOID, Parse: nullable(func(v string) (any, error) {
			return v == "t" || v == "true", nil
		})},
		pgtype.ByteaOID: {OID: pgtype.ByteaOID, Parse: nullable(func(v string) (any, error) {
			if strings.HasPrefix(v, `\x`) {
				return hex.DecodeString(v[2:])
			}
			return []byte(v), nil
		})},
		pgtype.NumericOID: {OID: pgtype.NumericOID, Parse: nullable(func(v string) (any, error) {
			return decimal.NewFromString(v)
		})},
		pgtype.UUIDOID: {OID: pgtype.UUIDOID, Parse: nullable(func(v string) (any, error) {
			return v, nil
		})},
	}
	for _, oid := range []uint32{pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID} {
		oid := oid
		table[oid] = Parser{OID: oid, Parse: nullable(func(v string) (any, error) {
			return strconv.ParseInt(v, 10, 64)
		})}
	}
	for _, oid := range []uint32{pgtype.Float4OID, pgtype.Float8OID} {
		oid := oid
		table[oid] = Parser{OID: oid, Parse: nullable(func(v string) (any, error) {
			return strconv.ParseFloat(v, 64)
		})}
	}
	for _, oid := range []uint32{pgtype.TextOID, pgtype.VarcharOID, pgtype.BPCharOID, pgtype.NameOID} {
		oid := oid
		table[oid] = Parser{OID: oid, Parse: nullable(func(v string) (any, error) {
			return v, nil
		})}
	}
	for _, oid := range []uint32{pgtype.JSONOID, pgtype.JSONBOID} {
		oid := oid
		table[oid] = Parser{OID: oid, Parse: nullable(func(v string) (any, error) {
			var out any
			if err := json.Unmarshal([]byte(v), &out); err != nil {
				return nil, fmt.Errorf("parse json: %w", err)
			}
			return out, nil
		})}
	}
	for oid, layout := range timeLayoutByOID {
		oid, layout := oid, layout
		table[oid] = Parser{OID: oid, Parse: nullable(func(v string) (any, error) {
			return time.Parse(layout, v)
		})}
	}
	return table
}
