package wire

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestDescriptorJSON(t *testing.T) {
	tests := []struct {
		name string
		desc Descriptor
		want string
	}{
		{
			"query without parameters omits the list",
			Descriptor{Kind: KindQuery, SQL: "SELECT 1"},
			`{"query":"SELECT 1"}`,
		},
		{
			"exec uses the exec key",
			Descriptor{Kind: KindExec, SQL: "DELETE FROM t"},
			`{"exec":"DELETE FROM t"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.desc)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("got %s, want %s", data, tt.want)
			}
		})
	}
}

func TestDescriptorJSONParams(t *testing.T) {
	v := "hello"
	desc := Descriptor{
		Kind: KindQuery,
		SQL:  "SELECT $1,$2,$3",
		Params: []ParamDescriptor{
			{Format: FormatText, Inline: true, Value: &v},
			{Format: FormatText, Inline: true, Value: nil},
			{Format: FormatBinary, ByteSize: 2048},
		},
	}
	data, err := json.Marshal(desc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Query      string            `json:"query"`
		Parameters []json.RawMessage `json:"parameters"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Parameters) != 3 {
		t.Fatalf("parameters: got %d, want 3", len(decoded.Parameters))
	}
	if want := `{"type":"text","value":"hello"}`; string(decoded.Parameters[0]) != want {
		t.Errorf("param 0: got %s, want %s", decoded.Parameters[0], want)
	}
	if want := `{"type":"text","value":null}`; string(decoded.Parameters[1]) != want {
		t.Errorf("param 1: got %s, want %s", decoded.Parameters[1], want)
	}
	if want := `{"type":"binary","byteSize":2048}`; string(decoded.Parameters[2]) != want {
		t.Errorf("param 2: got %s, want %s", decoded.Parameters[2], want)
	}
}

func TestExtendedParamURN(t *testing.T) {
	if urn := (ExtendedParam{Format: FormatText}).URN(); urn != URNParamText {
		t.Errorf("text URN: got %q", urn)
	}
	if urn := (ExtendedParam{Format: FormatBinary}).URN(); urn != URNParamBinary {
		t.Errorf("binary URN: got %q", urn)
	}
}

func TestExtendedParamMaterialize(t *testing.T) {
	payload := strings.Repeat("z", 1500)
	p := ExtendedParam{Format: FormatText, ByteSize: 1500, R: strings.NewReader(payload)}
	if err := p.Materialize(); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if p.R != nil {
		t.Error("stream not released after materialize")
	}
	if string(p.Data) != payload {
		t.Error("materialized data does not match stream content")
	}

	// Short streams fail rather than truncate.
	short := ExtendedParam{Format: FormatText, ByteSize: 10, R: strings.NewReader("abc")}
	if err := short.Materialize(); err == nil {
		t.Error("expected error for stream shorter than declared size")
	}
}

func TestExtendedParamPayload(t *testing.T) {
	p := ExtendedParam{Format: FormatBinary, ByteSize: 3, Data: []byte{1, 2, 3}}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(p.Payload()); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{1, 2, 3}) {
		t.Errorf("payload: got %v", buf.Bytes())
	}
}
