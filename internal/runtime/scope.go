package runtime

import (
	"maps"
	"slices"
)

// Scope is the immutable variable binding set a step renders against.
// Every modification returns a new Scope; earlier scopes are never changed.
type Scope struct {
	vars map[string]any
	// modExtended marks that @mod has been bound for the run.
	modExtended bool
}

// NewScope copies vars into a new scope.
func NewScope(vars map[string]any) *Scope {
	return &Scope{vars: maps.Clone(vars)}
}

// Get returns the value bound to key.
func (s *Scope) Get(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.vars[key]
	return v, ok
}

// Keys returns the bound keys in sorted order.
func (s *Scope) Keys() []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.vars))
}

// Values returns the bindings. The map is shared and must not be modified.
func (s *Scope) Values() map[string]any {
	if s == nil || s.vars == nil {
		return map[string]any{}
	}
	return s.vars
}

// With returns a scope where key is bound to value.
func (s *Scope) With(key string, value any) *Scope {
	next := s.clone(1)
	next.vars[key] = value
	return next
}

// Merge returns a scope with every entry of values bound on top of s.
func (s *Scope) Merge(values map[string]any) *Scope {
	if len(values) == 0 {
		return s
	}
	next := s.clone(len(values))
	maps.Copy(next.vars, values)
	return next
}

// ModExtended reports whether the mod variable context has been bound.
func (s *Scope) ModExtended() bool {
	return s != nil && s.modExtended
}

func (s *Scope) clone(extra int) *Scope {
	if s == nil {
		return &Scope{vars: make(map[string]any, extra)}
	}
	vars := make(map[string]any, len(s.vars)+extra)
	maps.Copy(vars, s.vars)
	return &Scope{vars: vars, modExtended: s.modExtended}
}

// OutputVar returns the scope key an outputKey is bound under.
func OutputVar(outputKey string) string {
	if outputKey == "" || outputKey[0] == '@' {
		return outputKey
	}
	return "@" + outputKey
}
