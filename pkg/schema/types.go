package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Type defines the contract for argument validation.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "int").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

// Optionality is implemented by types that accept a missing argument.
type Optionality interface {
	IsOptional() bool
}

type primitive struct {
	name  string
	check func(any) error
}

func (t *primitive) Name() string { return t.name }

func (t *primitive) Validate(value any) error { return t.check(value) }

func checkString(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

func checkInt(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return nil
	case float64:
		// JSON numbers decode as float64
		if v == float64(int64(v)) {
			return nil
		}
		return fmt.Errorf("expected int, got float (not a whole number)")
	}
	return fmt.Errorf("expected int, got %T", value)
}

func checkFloat(value any) error {
	switch value.(type) {
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return nil
	}
	return fmt.Errorf("expected number, got %T", value)
}

func checkBool(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

func checkObject(value any) error {
	if value == nil {
		return fmt.Errorf("expected object, got nil")
	}
	if reflect.ValueOf(value).Kind() != reflect.Map {
		return fmt.Errorf("expected object, got %T", value)
	}
	return nil
}

// SliceType validates slices of a specific element type.
type SliceType struct {
	elem Type
}

func (t *SliceType) Name() string { return fmt.Sprintf("[%s]", t.elem.Name()) }

func (t *SliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return fmt.Errorf("expected slice, got %T", value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// OptionalType accepts a missing or nil value, otherwise defers to its inner type.
type OptionalType struct {
	inner Type
}

func (t *OptionalType) Name() string { return "?" + t.inner.Name() }

func (t *OptionalType) IsOptional() bool { return true }

func (t *OptionalType) Validate(value any) error {
	if value == nil {
		return nil
	}
	return t.inner.Validate(value)
}

// CustomType applies a user-defined validation function.
type CustomType struct {
	name     string
	validate func(any) error
}

func (t *CustomType) Name() string { return t.name }

func (t *CustomType) Validate(value any) error { return t.validate(value) }

func String() Type { return &primitive{name: "string", check: checkString} }

func Int() Type { return &primitive{name: "int", check: checkInt} }

func Float() Type { return &primitive{name: "float", check: checkFloat} }

func Bool() Type { return &primitive{name: "bool", check: checkBool} }

// Object accepts any map.
func Object() Type { return &primitive{name: "object", check: checkObject} }

// Any accepts every present value, including nil.
func Any() Type { return &primitive{name: "any", check: func(any) error { return nil }} }

// Slice creates a slice type validator for elements of the given type.
func Slice(elem Type) Type { return &SliceType{elem: elem} }

// Optional marks an argument as not required.
func Optional(inner Type) Type {
	if _, ok := inner.(*OptionalType); ok {
		return inner
	}
	return &OptionalType{inner: inner}
}

// Custom creates a custom type validator with a user-defined function.
func Custom(name string, validate func(any) error) Type {
	return &CustomType{name: name, validate: validate}
}

func isOptional(t Type) bool {
	o, ok := t.(Optionality)
	return ok && o.IsOptional()
}

// ParseType converts a type name to a Type.
// Supports "string", "int", "float", "bool", "object", "any", slices ("[string]")
// and optional types ("?int").
func ParseType(typeStr string) (Type, error) {
	typeStr = strings.TrimSpace(typeStr)
	if rest, ok := strings.CutPrefix(typeStr, "?"); ok {
		inner, err := ParseType(rest)
		if err != nil {
			return nil, err
		}
		return Optional(inner), nil
	}

	if len(typeStr) > 2 && typeStr[0] == '[' && typeStr[len(typeStr)-1] == ']' {
		elem, err := ParseType(typeStr[1 : len(typeStr)-1])
		if err != nil {
			return nil, err
		}
		return Slice(elem), nil
	}

	switch typeStr {
	case "string":
		return String(), nil
	case "int":
		return Int(), nil
	case "float", "number":
		return Float(), nil
	case "bool", "boolean":
		return Bool(), nil
	case "object":
		return Object(), nil
	case "any":
		return Any(), nil
	}
	return nil, fmt.Errorf("unsupported type: %s", typeStr)
}

// ParseTypeMap converts a map of argument names to type strings into a Schema.
// Example: {"url": "string", "retries": "?int"}
func ParseTypeMap(typeMap map[string]string) (Schema, error) {
	result := make(Schema, len(typeMap))
	for key, typeStr := range typeMap {
		t, err := ParseType(typeStr)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		result[key] = t
	}
	return result, nil
}
