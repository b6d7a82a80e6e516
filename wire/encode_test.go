package wire

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestEncodeInlineThreshold(t *testing.T) {
	tests := []struct {
		name         string
		param        Param
		wantInline   bool
		wantFormat   Format
		wantByteSize int64
	}{
		{"short text", TextParam{Value: "hello"}, true, FormatText, 0},
		{"text at threshold", TextParam{Value: strings.Repeat("x", 1024)}, true, FormatText, 0},
		{"text over threshold", TextParam{Value: strings.Repeat("x", 1025)}, false, FormatText, 1025},
		{"utf8 counted in bytes", TextParam{Value: strings.Repeat("🎉", 300)}, false, FormatText, 1200},
		{"small binary", BytesParam{Data: []byte{1, 2, 3}, Format: FormatBinary}, true, FormatBinary, 0},
		{"binary at threshold", BytesParam{Data: make([]byte, 1024), Format: FormatBinary}, true, FormatBinary, 0},
		{"binary over threshold", BytesParam{Data: make([]byte, 1025), Format: FormatBinary}, false, FormatBinary, 1025},
		{"text bytes over threshold", BytesParam{Data: bytes.Repeat([]byte("a"), 2000), Format: FormatText}, false, FormatText, 2000},
		{"small stream", StreamParam{R: strings.NewReader("abc"), Format: FormatText, ByteSize: 3}, true, FormatText, 0},
		{"large stream", StreamParam{R: strings.NewReader(strings.Repeat("b", 1500)), Format: FormatBinary, ByteSize: 1500}, false, FormatBinary, 1500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, extended, err := Encode(KindQuery, "SELECT $1", []Param{tt.param})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if len(desc.Params) != 1 {
				t.Fatalf("descriptor params: got %d, want 1", len(desc.Params))
			}
			pd := desc.Params[0]
			if pd.Inline != tt.wantInline {
				t.Errorf("inline: got %v, want %v", pd.Inline, tt.wantInline)
			}
			if pd.Format != tt.wantFormat {
				t.Errorf("format: got %v, want %v", pd.Format, tt.wantFormat)
			}
			wantExtended := 0
			if !tt.wantInline {
				wantExtended = 1
			}
			if len(extended) != wantExtended {
				t.Fatalf("extended frames: got %d, want %d", len(extended), wantExtended)
			}
			if !tt.wantInline {
				if pd.ByteSize != tt.wantByteSize {
					t.Errorf("byteSize: got %d, want %d", pd.ByteSize, tt.wantByteSize)
				}
				if extended[0].ByteSize != tt.wantByteSize {
					t.Errorf("extended byteSize: got %d, want %d", extended[0].ByteSize, tt.wantByteSize)
				}
			}
		})
	}
}

func TestEncodeNull(t *testing.T) {
	desc, extended, err := Encode(KindQuery, "SELECT $1", []Param{NullParam{}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(extended) != 0 {
		t.Fatalf("extended frames: got %d, want 0", len(extended))
	}
	pd := desc.Params[0]
	if !pd.Inline || pd.Format != FormatText || pd.Value != nil {
		t.Errorf("null descriptor: got %+v", pd)
	}
}

func TestEncodeInlineBinaryBase64(t *testing.T) {
	data := []byte{1, 2, 3}
	desc, _, err := Encode(KindQuery, "SELECT $1", []Param{BytesParam{Data: data, Format: FormatBinary}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := base64.StdEncoding.EncodeToString(data)
	if desc.Params[0].Value == nil || *desc.Params[0].Value != want {
		t.Errorf("inline binary: got %v, want %q", desc.Params[0].Value, want)
	}
	if want != "AQID" {
		t.Errorf("base64 of [1 2 3]: got %q", want)
	}
}

func TestEncodeExtendedRoundTrip(t *testing.T) {
	text := strings.Repeat("🎉", 300)
	_, extended, err := Encode(KindQuery, "SELECT $1", []Param{TextParam{Value: text}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(extended[0].Data) != text {
		t.Error("extended text frame does not round-trip")
	}

	blob := bytes.Repeat([]byte{0xde, 0xad}, 600)
	_, extended, err = Encode(KindQuery, "SELECT $1", []Param{BytesParam{Data: blob, Format: FormatBinary}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(extended[0].Data, blob) {
		t.Error("extended binary frame does not match input bytewise")
	}
}

func TestEncodeMixedParams(t *testing.T) {
	long := strings.Repeat("x", 1500)
	desc, extended, err := Encode(KindQuery, "SELECT $1,$2,$3", []Param{
		TextParam{Value: "short"},
		BytesParam{Data: []byte{1, 2, 3}, Format: FormatBinary},
		TextParam{Value: long},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if len(desc.Params) != 3 {
		t.Fatalf("descriptor params: got %d, want 3", len(desc.Params))
	}
	if !desc.Params[0].Inline || *desc.Params[0].Value != "short" {
		t.Errorf("param 0: got %+v", desc.Params[0])
	}
	if !desc.Params[1].Inline || *desc.Params[1].Value != "AQID" {
		t.Errorf("param 1: got %+v", desc.Params[1])
	}
	if desc.Params[2].Inline || desc.Params[2].ByteSize != 1500 {
		t.Errorf("param 2: got %+v", desc.Params[2])
	}

	// One extended frame follows, matching the only extended descriptor.
	if len(extended) != 1 {
		t.Fatalf("extended frames: got %d, want 1", len(extended))
	}
	if extended[0].Format != FormatText || string(extended[0].Data) != long {
		t.Error("extended frame does not correspond to the third parameter")
	}
}

func TestEncodeExtendedOrdering(t *testing.T) {
	a := strings.Repeat("a", 2000)
	b := strings.Repeat("b", 3000)
	_, extended, err := Encode(KindQuery, "SELECT $1,$2,$3", []Param{
		TextParam{Value: a},
		TextParam{Value: "inline"},
		TextParam{Value: b},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(extended) != 2 {
		t.Fatalf("extended frames: got %d, want 2", len(extended))
	}
	if string(extended[0].Data) != a || string(extended[1].Data) != b {
		t.Error("extended frames are not in descriptor order")
	}
}

func TestEncodeSmallStreamConsumed(t *testing.T) {
	desc, extended, err := Encode(KindQuery, "SELECT $1", []Param{
		StreamParam{R: bytes.NewReader([]byte{9, 8, 7}), Format: FormatBinary, ByteSize: 3},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(extended) != 0 {
		t.Fatalf("extended frames: got %d, want 0", len(extended))
	}
	want := base64.StdEncoding.EncodeToString([]byte{9, 8, 7})
	if *desc.Params[0].Value != want {
		t.Errorf("inlined stream: got %q, want %q", *desc.Params[0].Value, want)
	}
}

func TestEncodeUnsupportedParam(t *testing.T) {
	_, _, err := Encode(KindQuery, "SELECT $1", []Param{nil})
	if !errors.Is(err, ErrUnsupportedParam) {
		t.Errorf("nil param: got %v, want ErrUnsupportedParam", err)
	}

	_, _, err = Encode(KindQuery, "SELECT $1", []Param{StreamParam{Format: FormatText, ByteSize: 3}})
	if !errors.Is(err, ErrUnsupportedParam) {
		t.Errorf("nil stream: got %v, want ErrUnsupportedParam", err)
	}
}
