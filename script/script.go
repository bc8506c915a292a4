// Package script models the ordered step sequences the harness drives
// targets through, and loads them from schema-validated JSON files.
package script

import (
	"encoding/json"
	"fmt"
	"time"

	invopop "github.com/invopop/jsonschema"

	"github.com/coderag/mcpconform/jsonrpc"
)

// Duration wraps time.Duration for JSON: either a Go duration string
// ("3s", "250ms") or a plain number of milliseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var ms float64
	if err := json.Unmarshal(data, &ms); err == nil {
		d.Duration = time.Duration(ms) * time.Millisecond
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string or a number of milliseconds")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// JSONSchema renders a Duration as a duration string or millisecond count.
func (Duration) JSONSchema() *invopop.Schema {
	return &invopop.Schema{
		OneOf: []*invopop.Schema{
			{Type: "string"},
			{Type: "number"},
		},
	}
}

// Step is one scripted action: send a request or notification, optionally
// await the correlated response.
type Step struct {
	Request *jsonrpc.Request `json:"request"`
	// ExpectResponse must be true exactly when the request carries an id.
	ExpectResponse bool `json:"expectResponse"`
	// Timeout bounds the wait for this step's response. Zero means the
	// runner's default.
	Timeout Duration `json:"timeout,omitempty"`
}

// Script is an ordered sequence of steps, executed strictly one at a time.
type Script struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// Validate enforces the structural rules the runner and correlator rely on:
// well-formed requests, id presence matching expectResponse, and ids unique
// across the whole script so pending-request uniqueness holds trivially.
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("script %q has no steps", s.Name)
	}

	seen := make(map[string]int)
	for i, step := range s.Steps {
		if step.Request == nil {
			return fmt.Errorf("step %d: missing request", i)
		}
		if step.Request.JSONRPCVersion != jsonrpc.ProtocolVersion {
			return fmt.Errorf("step %d: jsonrpc must be %q", i, jsonrpc.ProtocolVersion)
		}
		if step.Request.Method == "" {
			return fmt.Errorf("step %d: missing method", i)
		}

		hasID := !step.Request.ID.IsNil()
		if step.ExpectResponse && !hasID {
			return fmt.Errorf("step %d (%s): expectResponse requires an id", i, step.Request.Method)
		}
		if !step.ExpectResponse && hasID {
			return fmt.Errorf("step %d (%s): request with id %s must expect a response", i, step.Request.Method, step.Request.ID)
		}

		if hasID {
			key := step.Request.ID.Key()
			if prev, dup := seen[key]; dup {
				return fmt.Errorf("step %d (%s): id %s already used by step %d", i, step.Request.Method, step.Request.ID, prev)
			}
			seen[key] = i
		}
	}
	return nil
}

func mustRequest(method string, params any, id any) *jsonrpc.Request {
	var rid *jsonrpc.RequestID
	if id != nil {
		rid = jsonrpc.NewRequestID(id)
	}
	req, err := jsonrpc.NewRequest(method, params, rid)
	if err != nil {
		panic(fmt.Sprintf("build request %s: %v", method, err))
	}
	return req
}

// DefaultProbe is the canonical three-step handshake probe: initialize,
// the initialized notification, then tools/list.
func DefaultProbe() *Script {
	initParams := map[string]any{
		"capabilities":    map[string]any{},
		"protocolVersion": "2024-11-05",
	}
	return &Script{
		Name: "default-probe",
		Steps: []Step{
			{Request: mustRequest("initialize", initParams, 1), ExpectResponse: true},
			{Request: mustRequest("initialized", map[string]any{}, nil)},
			{Request: mustRequest("tools/list", map[string]any{}, 2), ExpectResponse: true},
		},
	}
}

// UnknownMethodProbe exercises method names beyond the core surface to
// observe how targets answer methods they may not implement. Error responses
// are responses; only silence times out.
func UnknownMethodProbe() *Script {
	initParams := map[string]any{
		"capabilities":    map[string]any{},
		"protocolVersion": "2024-11-05",
	}
	steps := []Step{
		{Request: mustRequest("initialize", initParams, 1), ExpectResponse: true},
		{Request: mustRequest("initialized", map[string]any{}, nil)},
	}
	probes := []string{
		"tools/list",
		"resources/list",
		"prompts/list",
		"logging/levels",
		"capabilities",
		"ping",
		"health",
	}
	for i, method := range probes {
		steps = append(steps, Step{
			Request:        mustRequest(method, map[string]any{}, i+2),
			ExpectResponse: true,
		})
	}
	return &Script{Name: "unknown-method-probe", Steps: steps}
}
