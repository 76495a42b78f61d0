// Package schema derives JSON Schemas for tool parameters from Go structs.
package schema

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

// Generate produces a JSON Schema object for the Go struct type T, in the
// plain map form the Copilot CLI expects in tool registrations. It uses
// struct tags (json, jsonschema, description) to derive the schema.
func Generate[T any]() map[string]any {
	var zero T
	s := jsonschema.Reflect(&zero)

	root := resolve(s, s.Definitions)

	out := map[string]any{
		"type":       "object",
		"properties": schemaProperties(root, s.Definitions),
	}
	if len(root.Required) > 0 {
		out["required"] = root.Required
	}
	return out
}

// resolve follows a $ref into $defs. invopop/jsonschema emits the actual
// type definitions under $defs with refs like "#/$defs/TypeName".
func resolve(s *jsonschema.Schema, defs jsonschema.Definitions) *jsonschema.Schema {
	if s.Ref != "" && defs != nil {
		name := strings.TrimPrefix(s.Ref, "#/$defs/")
		if def, ok := defs[name]; ok {
			return def
		}
	}
	return s
}

// schemaProperties converts an ordered map of properties into a plain
// map[string]any.
func schemaProperties(s *jsonschema.Schema, defs jsonschema.Definitions) map[string]any {
	props := make(map[string]any)
	if s.Properties == nil {
		return props
	}
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		props[pair.Key] = propertySchema(pair.Value, defs)
	}
	return props
}

// propertySchema converts a single property schema to a serializable map.
func propertySchema(s *jsonschema.Schema, defs jsonschema.Definitions) map[string]any {
	s = resolve(s, defs)
	m := make(map[string]any)

	if s.Type != "" {
		m["type"] = s.Type
	}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if s.Default != nil {
		m["default"] = s.Default
	}
	if len(s.Enum) > 0 {
		m["enum"] = s.Enum
	}

	// Pointer types: invopop/jsonschema uses anyOf for nullable types.
	if len(s.AnyOf) > 0 {
		for _, sub := range s.AnyOf {
			sub = resolve(sub, defs)
			if sub.Type != "null" && sub.Type != "" {
				m["type"] = sub.Type
				break
			}
		}
	}

	// Nested object properties.
	if s.Properties != nil {
		m["type"] = "object"
		m["properties"] = schemaProperties(s, defs)
		if len(s.Required) > 0 {
			m["required"] = s.Required
		}
	}

	// Array items.
	if s.Items != nil {
		m["items"] = propertySchema(s.Items, defs)
	}

	return m
}

// GenerateJSON is a convenience that returns the schema as raw JSON bytes.
func GenerateJSON[T any]() (json.RawMessage, error) {
	return json.Marshal(Generate[T]())
}
