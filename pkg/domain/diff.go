package domain

import (
	"reflect"
)

// DiffState returns the top-level keys that differ between old and new.
// Deleted keys are present with a nil value. It returns nil when nothing changed,
// so an event payload can omit the field.
func DiffState(old, new map[string]any) map[string]any {
	delta := make(map[string]any)

	// If old is nil, everything in new is a delta
	if old == nil {
		for k, v := range new {
			delta[k] = v
		}
		if len(delta) == 0 {
			return nil
		}
		return delta
	}

	// Added or modified
	for k, newVal := range new {
		oldVal, exists := old[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	// Deleted
	for k := range old {
		if _, exists := new[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}
