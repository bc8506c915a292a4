package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestAnyMessageClassification(t *testing.T) {
	cases := []struct {
		name string
		in   string
		typ  string
	}{
		{"request", `{"jsonrpc":"2.0","method":"tools/list","id":2}`, "request"},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, "notification"},
		{"result response", `{"jsonrpc":"2.0","result":{},"id":1}`, "response"},
		{"error response", `{"jsonrpc":"2.0","error":{"code":-32601,"message":"nope"},"id":"a"}`, "response"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m AnyMessage
			if err := json.Unmarshal([]byte(tc.in), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := m.Type(); got != tc.typ {
				t.Errorf("Type() = %q, want %q", got, tc.typ)
			}
		})
	}
}

func TestAnyMessageRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"wrong version", `{"jsonrpc":"1.0","method":"x"}`},
		{"missing version", `{"method":"x","id":1}`},
		{"request with result", `{"jsonrpc":"2.0","method":"x","result":{},"id":1}`},
		{"response with both", `{"jsonrpc":"2.0","result":{},"error":{"code":1,"message":"m"},"id":1}`},
		{"response with neither", `{"jsonrpc":"2.0","id":1}`},
		{"not JSON", `{"jsonrpc":`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m AnyMessage
			if err := json.Unmarshal([]byte(tc.in), &m); err == nil {
				t.Errorf("expected error for %s", tc.in)
			}
		})
	}
}

func TestAsResponse(t *testing.T) {
	var m AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","result":{"ok":true},"id":7}`), &m); err != nil {
		t.Fatal(err)
	}
	resp := m.AsResponse()
	if resp == nil {
		t.Fatal("AsResponse returned nil for a response")
	}
	if !resp.ID.Equal(NewRequestID(7)) {
		t.Errorf("response id = %v, want 7", resp.ID)
	}

	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"ping","id":1}`), &m); err != nil {
		t.Fatal(err)
	}
	if m.AsResponse() != nil {
		t.Error("AsResponse should be nil for a request")
	}
	if m.AsRequest() == nil {
		t.Error("AsRequest should be non-nil for a request")
	}
}

func TestErrorCodeName(t *testing.T) {
	if got := ErrorCodeMethodNotFound.Name(); got != "method-not-found" {
		t.Errorf("Name() = %q", got)
	}
	if got := ErrorCode(-1).Name(); got != "" {
		t.Errorf("unknown code should render empty, got %q", got)
	}
}

func TestNewRequestMarshalShape(t *testing.T) {
	req, err := NewRequest("initialize", map[string]any{"protocolVersion": "2024-11-05"}, NewRequestID(1))
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	var m AnyMessage
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("request did not survive the wire: %v", err)
	}
	if m.Type() != "request" {
		t.Errorf("Type() = %q, want request", m.Type())
	}

	note, err := NewNotification("notifications/initialized", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !note.IsNotification() {
		t.Error("NewNotification should carry no id")
	}
}
