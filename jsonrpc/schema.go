package jsonrpc

import "github.com/invopop/jsonschema"

// JSONSchema teaches schema reflection that an id is a bare string or
// number on the wire, not an object.
func (RequestID) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "number"},
		},
	}
}
