package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestRequestIDPreservesJSONType(t *testing.T) {
	cases := []struct {
		name string
		in   string
		key  string
		out  string
	}{
		{"small int", `1`, "n:1", `1`},
		{"large int", `999999`, "n:999999", `999999`},
		{"float", `1.5`, "n:1.5", `1.5`},
		{"string", `"1"`, "s:1", `"1"`},
		{"string word", `"abc"`, "s:abc", `"abc"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var id RequestID
			if err := json.Unmarshal([]byte(tc.in), &id); err != nil {
				t.Fatalf("unmarshal %s: %v", tc.in, err)
			}
			if got := id.Key(); got != tc.key {
				t.Errorf("Key() = %q, want %q", got, tc.key)
			}
			b, err := json.Marshal(&id)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(b) != tc.out {
				t.Errorf("round trip = %s, want %s", b, tc.out)
			}
		})
	}
}

func TestRequestIDNumericNeverMatchesString(t *testing.T) {
	num := NewRequestID(1)
	str := NewRequestID("1")

	if num.Key() == str.Key() {
		t.Fatalf("numeric 1 and string \"1\" share key %q", num.Key())
	}
	if num.Equal(str) {
		t.Fatal("numeric 1 must not equal string \"1\"")
	}
	if num.String() != str.String() {
		t.Fatalf("textual forms should agree: %q vs %q", num.String(), str.String())
	}
}

func TestRequestIDEqual(t *testing.T) {
	var decoded RequestID
	if err := json.Unmarshal([]byte(`42`), &decoded); err != nil {
		t.Fatal(err)
	}
	if !decoded.Equal(NewRequestID(42)) {
		t.Error("decoded 42 should equal NewRequestID(42)")
	}
	if !(*RequestID)(nil).Equal(nil) {
		t.Error("nil ids are equal to each other")
	}
	if decoded.Equal(nil) {
		t.Error("value id must not equal nil id")
	}
}

func TestRequestIDRejectsNonScalar(t *testing.T) {
	var id RequestID
	for _, in := range []string{`{}`, `[1]`, `true`, `null`} {
		if err := json.Unmarshal([]byte(in), &id); err == nil {
			t.Errorf("unmarshal %s: expected error", in)
		}
	}
}
