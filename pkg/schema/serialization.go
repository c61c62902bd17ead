package schema

import (
	"encoding/json"
	"fmt"
	"slices"
)

// jsonSchema is the subset of JSON Schema a brick's inputs are published as.
type jsonSchema struct {
	Type        string                 `json:"type,omitempty"`
	Description string                 `json:"description,omitempty"`
	Items       *jsonSchema            `json:"items,omitempty"`
	Properties  map[string]*jsonSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
}

var jsonTypes = map[string]string{
	"string": "string",
	"int":    "integer",
	"float":  "number",
	"bool":   "boolean",
	"object": "object",
}

// MarshalJSON publishes the schema as a JSON Schema object. Arguments that
// are not Optional are listed as required. Custom types keep their name in
// the description and accept any value once read back.
func (s Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	out := &jsonSchema{Type: "object", Properties: make(map[string]*jsonSchema, len(s))}
	for key, typ := range s {
		if typ == nil {
			return nil, fmt.Errorf("argument %s: type is nil", key)
		}
		out.Properties[key] = toJSONSchema(typ)
		if !isOptional(typ) {
			out.Required = append(out.Required, key)
		}
	}
	slices.Sort(out.Required)
	return json.Marshal(out)
}

func toJSONSchema(t Type) *jsonSchema {
	switch v := t.(type) {
	case *OptionalType:
		return toJSONSchema(v.inner)
	case *SliceType:
		return &jsonSchema{Type: "array", Items: toJSONSchema(v.elem)}
	case *CustomType:
		return &jsonSchema{Description: v.name}
	}
	return &jsonSchema{Type: jsonTypes[t.Name()]}
}

// UnmarshalJSON reads either a JSON Schema object or the compact form used
// in definition files, a map of argument names to type strings such as
// {"url": "string", "retries": "?int"}.
func (s *Schema) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}

	var compact map[string]string
	if err := json.Unmarshal(data, &compact); err == nil && !(len(compact) == 1 && compact["type"] == "object") {
		parsed, err := ParseTypeMap(compact)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}

	var doc jsonSchema
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if doc.Type != "" && doc.Type != "object" {
		return fmt.Errorf("schema: inputs must be an object, got %s", doc.Type)
	}
	parsed := make(Schema, len(doc.Properties))
	for key, prop := range doc.Properties {
		typ, err := fromJSONSchema(prop)
		if err != nil {
			return fmt.Errorf("argument %s: %w", key, err)
		}
		if !slices.Contains(doc.Required, key) {
			typ = Optional(typ)
		}
		parsed[key] = typ
	}
	*s = parsed
	return nil
}

func fromJSONSchema(js *jsonSchema) (Type, error) {
	if js == nil {
		return Any(), nil
	}
	switch js.Type {
	case "":
		return Any(), nil
	case "string":
		return String(), nil
	case "integer":
		return Int(), nil
	case "number":
		return Float(), nil
	case "boolean":
		return Bool(), nil
	case "object":
		return Object(), nil
	case "array":
		elem, err := fromJSONSchema(js.Items)
		if err != nil {
			return nil, err
		}
		return Slice(elem), nil
	}
	return nil, fmt.Errorf("unsupported type: %s", js.Type)
}
