package compare

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/coderag/mcpconform/harness"
	"github.com/coderag/mcpconform/jsonrpc"
)

// stepResult builds a TestResult the way the runner records one: raw bytes
// plus the decoded message when the line parses.
func stepResult(t *testing.T, method, raw string) harness.TestResult {
	t.Helper()
	req, err := jsonrpc.NewRequest(method, nil, jsonrpc.NewRequestID(1))
	if err != nil {
		t.Fatal(err)
	}
	res := harness.TestResult{Request: req, RawBytes: []byte(raw)}
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &msg); err == nil {
		res.Response = &msg
	} else {
		res.Error = harness.ErrorKindRawParse
	}
	return res
}

func section(server string, results ...harness.TestResult) *harness.TargetReport {
	return &harness.TargetReport{Server: server, Results: results}
}

func TestReportsIdenticalSectionsHaveNoDivergence(t *testing.T) {
	line := `{"jsonrpc":"2.0","result":{"tools":[]},"id":1}` + "\n"
	ref := section("ref", stepResult(t, "tools/list", line))
	cand := section("cand", stepResult(t, "tools/list", line))

	if divs := Reports(ref, cand); len(divs) != 0 {
		t.Errorf("identical sections diverged: %+v", divs)
	}
}

func TestReportsByteDivergenceOffset(t *testing.T) {
	ref := section("ref", stepResult(t, "tools/list", "{\"jsonrpc\":\"2.0\",\"result\":{\"n\":1},\"id\":1}\n"))
	cand := section("cand", stepResult(t, "tools/list", "{\"jsonrpc\":\"2.0\",\"result\":{\"n\":2},\"id\":1}\n"))

	divs := Reports(ref, cand)
	if len(divs) != 2 {
		t.Fatalf("got %d divergences, want byte + structural: %+v", len(divs), divs)
	}

	bd := divs[0]
	if bd.Kind != KindByteDivergence {
		t.Fatalf("first divergence kind = %q", bd.Kind)
	}
	// The lines differ only at the value of "n".
	if bd.Offset != 31 {
		t.Errorf("offset = %d, want 31", bd.Offset)
	}
	if bd.ReferenceByte != '1' || bd.CandidateByte != '2' {
		t.Errorf("bytes = %q vs %q, want '1' vs '2'",
			rune(bd.ReferenceByte), rune(bd.CandidateByte))
	}
	if bd.Method != "tools/list" {
		t.Errorf("method = %q", bd.Method)
	}

	if divs[1].Kind != KindStructuralDivergence {
		t.Errorf("second divergence kind = %q", divs[1].Kind)
	}
	if !strings.Contains(divs[1].Diff, "-") || !strings.Contains(divs[1].Diff, "+") {
		t.Errorf("structural divergence should carry a diff:\n%s", divs[1].Diff)
	}
}

func TestReportsFormattingOnlyDifferenceIsByteNotStructural(t *testing.T) {
	// Same structure, different key order and whitespace on the wire.
	ref := section("ref", stepResult(t, "initialize", `{"jsonrpc":"2.0","result":{"a":1,"b":2},"id":1}`+"\n"))
	cand := section("cand", stepResult(t, "initialize", `{"jsonrpc": "2.0", "result": {"b": 2, "a": 1}, "id": 1}`+"\n"))

	divs := Reports(ref, cand)
	if len(divs) != 1 {
		t.Fatalf("got %d divergences, want exactly the byte one: %+v", len(divs), divs)
	}
	if divs[0].Kind != KindByteDivergence {
		t.Errorf("kind = %q, want %q", divs[0].Kind, KindByteDivergence)
	}
}

func TestReportsPrefixDivergenceUsesByteAbsent(t *testing.T) {
	ref := section("ref", stepResult(t, "ping", `{"jsonrpc":"2.0","result":{},"id":1}`+"\n"))
	// Candidate's bytes are a strict prefix of the reference's.
	short := stepResult(t, "ping", `{"jsonrpc":"2.0","result":{},"id":1}`+"\n")
	short.RawBytes = short.RawBytes[:10]
	short.Response = nil
	cand := section("cand", short)

	divs := Reports(ref, cand)
	if len(divs) != 1 {
		t.Fatalf("got %d divergences: %+v", len(divs), divs)
	}
	d := divs[0]
	if d.Offset != 10 || d.CandidateByte != ByteAbsent {
		t.Errorf("offset=%d candidate=%d, want 10 and ByteAbsent", d.Offset, d.CandidateByte)
	}
	if !strings.Contains(d.String(), "EOF") {
		t.Errorf("String() should render the absent side as EOF: %s", d.String())
	}
}

func TestReportsStepCountMismatch(t *testing.T) {
	line := `{"jsonrpc":"2.0","result":{},"id":1}` + "\n"
	ref := section("ref", stepResult(t, "a", line), stepResult(t, "b", line))
	cand := section("cand", stepResult(t, "a", line))

	divs := Reports(ref, cand)
	if len(divs) != 1 {
		t.Fatalf("got %d divergences: %+v", len(divs), divs)
	}
	if divs[0].Kind != KindStepCountMismatch {
		t.Errorf("kind = %q, want %q", divs[0].Kind, KindStepCountMismatch)
	}
	if !strings.Contains(divs[0].Detail, "2") || !strings.Contains(divs[0].Detail, "1") {
		t.Errorf("detail should carry both counts: %s", divs[0].Detail)
	}
}

func TestReportsUnparseableSidesCompareBytesOnly(t *testing.T) {
	ref := section("ref", stepResult(t, "x", "garbage A\n"))
	cand := section("cand", stepResult(t, "x", "garbage B\n"))

	divs := Reports(ref, cand)
	if len(divs) != 1 || divs[0].Kind != KindByteDivergence {
		t.Fatalf("unparseable sides should yield only a byte divergence: %+v", divs)
	}
}

func TestCanonicalizeSortsKeys(t *testing.T) {
	a, err := Canonicalize([]byte(`{"b":2,"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Canonicalize([]byte("{\"a\": 1, \"b\": 2}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("canonical forms differ:\n%s\nvs\n%s", a, b)
	}
	if _, err := Canonicalize([]byte("nope")); err == nil {
		t.Error("expected an error for invalid JSON")
	}
}

func TestUnifiedDiffMarksSides(t *testing.T) {
	got := UnifiedDiff("a\nb\nc", "a\nx\nc")
	want := "  a\n- b\n+ x\n  c"
	if got != want {
		t.Errorf("diff:\n%s\nwant:\n%s", got, want)
	}

	if d := UnifiedDiff("same", "same"); d != "  same" {
		t.Errorf("identical texts: %q", d)
	}
}
