package wire

import (
	"testing"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, frame Inbound)
	}{
		{
			"row description",
			`{"columns":[{"name":"id","typeOid":23},{"name":"name","typeOid":25}]}`,
			func(t *testing.T, frame Inbound) {
				rd, ok := frame.(RowDescription)
				if !ok {
					t.Fatalf("got %T, want RowDescription", frame)
				}
				if len(rd.Columns) != 2 || rd.Columns[0].Name != "id" || rd.Columns[0].OID != 23 {
					t.Errorf("columns: got %+v", rd.Columns)
				}
			},
		},
		{
			"data row with null",
			`{"values":["hello",null]}`,
			func(t *testing.T, frame Inbound) {
				dr, ok := frame.(DataRow)
				if !ok {
					t.Fatalf("got %T, want DataRow", frame)
				}
				if len(dr.Values) != 2 || dr.Values[0] == nil || *dr.Values[0] != "hello" || dr.Values[1] != nil {
					t.Errorf("values: got %+v", dr.Values)
				}
			},
		},
		{
			"command complete",
			`{"complete":true}`,
			func(t *testing.T, frame Inbound) {
				if _, ok := frame.(CommandComplete); !ok {
					t.Fatalf("got %T, want CommandComplete", frame)
				}
			},
		},
		{
			"error frame",
			`{"error":{"message":"relation does not exist","code":"42P01","severity":"ERROR"}}`,
			func(t *testing.T, frame Inbound) {
				ef, ok := frame.(ErrorFrame)
				if !ok {
					t.Fatalf("got %T, want ErrorFrame", frame)
				}
				if ef.Message != "relation does not exist" || ef.Code != "42P01" {
					t.Errorf("error: got %+v", ef)
				}
				if _, dup := ef.Details["message"]; dup {
					t.Error("message duplicated into details")
				}
				if _, dup := ef.Details["code"]; dup {
					t.Error("code duplicated into details")
				}
				if ef.Details["severity"] != "ERROR" {
					t.Errorf("details: got %+v", ef.Details)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := DecodeInbound([]byte(tt.input))
			if err != nil {
				t.Fatalf("DecodeInbound: %v", err)
			}
			tt.check(t, frame)
		})
	}
}

func TestDecodeInboundUnrecognized(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown shape", `{"progress":42}`},
		{"complete false", `{"complete":false}`},
		{"empty object", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := DecodeInbound([]byte(tt.input))
			if err != nil {
				t.Fatalf("DecodeInbound: %v", err)
			}
			if frame != nil {
				t.Errorf("got %T, want nil for forward compatibility", frame)
			}
		})
	}
}

func TestDecodeInboundMalformed(t *testing.T) {
	if _, err := DecodeInbound([]byte(`{"columns":`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestDecodeByURN(t *testing.T) {
	frame, err := DecodeByURN(URNResultDataRow, []byte(`{"values":["1"]}`))
	if err != nil {
		t.Fatalf("DecodeByURN: %v", err)
	}
	if _, ok := frame.(DataRow); !ok {
		t.Errorf("got %T, want DataRow", frame)
	}

	// Payload shape must match the announced URN.
	if _, err := DecodeByURN(URNResultDataRow, []byte(`{"complete":true}`)); err == nil {
		t.Error("expected mismatch error")
	}

	if _, err := DecodeByURN("urn:prisma:query:result:bogus", []byte(`{}`)); err == nil {
		t.Error("expected unknown URN error")
	}
}
