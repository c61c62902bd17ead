package schema

import "sort"

// Schema maps argument names to their expected types.
// Example: {"url": String(), "retries": Optional(Int()), "tags": Slice(String())}
type Schema map[string]Type

// Keys returns the argument names in sorted order.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks if data conforms to the schema.
// Every failure is collected; the result is nil or an *AggregateError.
// Arguments not named by the schema are allowed.
func Validate(schema Schema, data map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	var errs []error
	for _, key := range schema.Keys() {
		fieldType := schema[key]
		value, exists := data[key]
		if !exists {
			if isOptional(fieldType) {
				continue
			}
			errs = append(errs, &ValidationError{Key: key, Reason: "required"})
			continue
		}

		if err := fieldType.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: key, Reason: err.Error(), Value: value})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
