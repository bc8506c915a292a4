// Package compare diffs two targets' recorded runs of the same script.
//
// Byte and structural comparison are independent facts: wire-format exactness
// is itself a tested property, so a byte difference is always reported even
// when the canonicalized JSON is identical, and vice versa.
package compare

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/coderag/mcpconform/harness"
)

// Kind classifies a detected divergence. All kinds are informational;
// none aborts a comparison.
type Kind string

const (
	// KindStepCountMismatch means the two sections recorded different step counts.
	KindStepCountMismatch Kind = "step-count-mismatch"
	// KindByteDivergence means raw bytes differ, reported at the first offset.
	KindByteDivergence Kind = "byte-divergence"
	// KindStructuralDivergence means canonicalized JSON differs.
	KindStructuralDivergence Kind = "structural-divergence"
)

// ByteAbsent marks the side whose rawBytes ended before the divergence offset.
const ByteAbsent = -1

// Divergence is one detected difference between reference and candidate.
type Divergence struct {
	Kind      Kind   `json:"kind"`
	StepIndex int    `json:"stepIndex"`
	Method    string `json:"method,omitempty"`

	// Byte divergence: first differing offset and the byte on each side,
	// ByteAbsent when that side's bytes ended first.
	Offset        int `json:"offset,omitempty"`
	ReferenceByte int `json:"referenceByte,omitempty"`
	CandidateByte int `json:"candidateByte,omitempty"`

	// Structural divergence: line diff of the two canonical renderings.
	Diff string `json:"diff,omitempty"`

	Detail string `json:"detail,omitempty"`
}

// String renders a one-line summary in the style of the run reports.
func (d Divergence) String() string {
	switch d.Kind {
	case KindByteDivergence:
		return fmt.Sprintf("step %d (%s): raw bytes differ at offset %d: ref=%s cand=%s",
			d.StepIndex, d.Method, d.Offset, renderByte(d.ReferenceByte), renderByte(d.CandidateByte))
	case KindStructuralDivergence:
		return fmt.Sprintf("step %d (%s): canonical JSON differs", d.StepIndex, d.Method)
	default:
		return d.Detail
	}
}

func renderByte(b int) string {
	if b == ByteAbsent {
		return "EOF"
	}
	return fmt.Sprintf("0x%02x", b)
}

// Reports compares a candidate target's section against the reference's.
// Both must come from the same script; a step-count mismatch is itself the
// first divergence and comparison continues over the shared prefix.
func Reports(ref, cand *harness.TargetReport) []Divergence {
	var divs []Divergence

	n := len(ref.Results)
	if len(cand.Results) != n {
		divs = append(divs, Divergence{
			Kind: KindStepCountMismatch,
			Detail: fmt.Sprintf("step counts differ: %s recorded %d, %s recorded %d",
				ref.Server, len(ref.Results), cand.Server, len(cand.Results)),
		})
		if len(cand.Results) < n {
			n = len(cand.Results)
		}
	}

	for i := 0; i < n; i++ {
		divs = append(divs, compareStep(i, &ref.Results[i], &cand.Results[i])...)
	}
	return divs
}

func compareStep(idx int, ref, cand *harness.TestResult) []Divergence {
	var divs []Divergence
	method := ""
	if ref.Request != nil {
		method = ref.Request.Method
	}

	if !bytes.Equal(ref.RawBytes, cand.RawBytes) {
		off, rb, cb := firstDifference(ref.RawBytes, cand.RawBytes)
		divs = append(divs, Divergence{
			Kind:          KindByteDivergence,
			StepIndex:     idx,
			Method:        method,
			Offset:        off,
			ReferenceByte: rb,
			CandidateByte: cb,
		})
	}

	// Structural comparison only applies when both sides parsed.
	if ref.Response != nil && cand.Response != nil {
		refCanon, err1 := Canonicalize(ref.RawBytes)
		candCanon, err2 := Canonicalize(cand.RawBytes)
		if err1 == nil && err2 == nil && refCanon != candCanon {
			divs = append(divs, Divergence{
				Kind:      KindStructuralDivergence,
				StepIndex: idx,
				Method:    method,
				Diff:      UnifiedDiff(refCanon, candCanon),
			})
		}
	}
	return divs
}

// firstDifference locates the first differing byte offset. When one side is a
// strict prefix of the other, the offset is the prefix length and the shorter
// side reports ByteAbsent.
func firstDifference(a, b []byte) (offset, byteA, byteB int) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i, int(a[i]), int(b[i])
		}
	}
	if len(a) > n {
		return n, int(a[n]), ByteAbsent
	}
	return n, ByteAbsent, int(b[n])
}

// Canonicalize re-renders raw JSON with object keys sorted and stable
// indentation, erasing wire-level formatting so only structure remains.
// encoding/json sorts map keys on marshal, which is exactly the ordering
// rule canonical form needs.
func Canonicalize(raw []byte) (string, error) {
	var v any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &v); err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	return string(out), nil
}
