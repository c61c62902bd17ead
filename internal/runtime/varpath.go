package runtime

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/aretw0/brickrt/pkg/domain"
)

// ResolveVar looks up a dotted path such as "@input.items.0.name" in vars.
//
// Numeric segments index into lists and "a[0]" is accepted as "a.0".
// A missing path resolves to nil. Traversal passes through references and
// integration bindings (using their template fields); a path ending on a
// binding returns its handle, and one ending on a reference returns the
// reference itself.
func ResolveVar(vars map[string]any, path string) any {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil
	}

	var cur any = vars
	for _, part := range parts {
		cur = child(cur, part)
		if cur == nil {
			return nil
		}
	}

	switch t := cur.(type) {
	case domain.IntegrationBinding:
		return t.Resolve()
	case *domain.IntegrationBinding:
		if t == nil {
			return nil
		}
		return t.Resolve()
	}
	return cur
}

func splitPath(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")

	parts := strings.Split(path, ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func child(v any, key string) any {
	switch t := v.(type) {
	case domain.Reference, *domain.Reference:
		return child(domain.Deref(t), key)
	case domain.IntegrationBinding:
		return child(t.Fields, key)
	case *domain.IntegrationBinding:
		if t == nil {
			return nil
		}
		return child(t.Fields, key)
	case map[string]any:
		return t[key]
	case []any:
		i, ok := index(key, len(t))
		if !ok {
			return nil
		}
		return t[i]
	case nil:
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		e := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !e.IsValid() {
			return nil
		}
		return e.Interface()
	case reflect.Slice, reflect.Array:
		i, ok := index(key, rv.Len())
		if !ok {
			return nil
		}
		return rv.Index(i).Interface()
	}
	return nil
}

func index(key string, n int) (int, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}
