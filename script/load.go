package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	jsvalidate "github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaJSON reflects the script file format into a JSON Schema document.
// The CLI exposes this so script authors can wire editor validation.
func SchemaJSON() ([]byte, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(&Script{})
	return json.MarshalIndent(s, "", "  ")
}

// Load reads a script file, validates it against the generated schema, and
// applies the structural rules from Validate. Both failure modes report the
// path so multi-script invocations stay debuggable.
func Load(path string) (*Script, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	s, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates raw script JSON.
func Parse(raw []byte) (*Script, error) {
	if err := validateAgainstSchema(raw); err != nil {
		return nil, err
	}

	var s Script
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func validateAgainstSchema(raw []byte) error {
	schemaJSON, err := SchemaJSON()
	if err != nil {
		return fmt.Errorf("reflect schema: %w", err)
	}

	c := jsvalidate.NewCompiler()
	if err := c.AddResource("script.json", bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("schema resource: %w", err)
	}
	compiled, err := c.Compile("script.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
