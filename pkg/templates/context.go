package templates

import (
	"regexp"
	"strings"

	"github.com/aretw0/brickrt/pkg/domain"
)

// PrepareContext returns a copy of vars that a template engine may read.
//
// References are replaced by the values they stand for and integration
// bindings by their template fields. Keys prefixed with "@" are also exposed
// without the prefix unless that name is already bound. With identifiers set,
// hyphens in top-level keys become underscores and any key that is still not
// an identifier (the "@" forms among them) is dropped, since nunjucks rejects
// such a context outright.
func PrepareContext(vars map[string]any, identifiers bool) map[string]any {
	out := make(map[string]any, len(vars)*2)
	for k, v := range vars {
		out[k] = prepareValue(v)
	}

	for k, v := range vars {
		if bare, ok := strings.CutPrefix(k, "@"); ok && bare != "" {
			if _, taken := out[bare]; !taken {
				out[bare] = prepareValue(v)
			}
		}
	}

	if identifiers {
		ids := make(map[string]any, len(out))
		for k, v := range out {
			if identifierPattern.MatchString(k) {
				ids[k] = v
			}
		}
		for k, v := range out {
			id := strings.ReplaceAll(k, "-", "_")
			if _, taken := ids[id]; !taken && identifierPattern.MatchString(id) {
				ids[id] = v
			}
		}
		return ids
	}
	return out
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func prepareValue(v any) any {
	switch t := v.(type) {
	case domain.Reference, *domain.Reference:
		return prepareValue(domain.Deref(t))
	case domain.IntegrationBinding:
		return prepareValue(map[string]any(t.Fields))
	case *domain.IntegrationBinding:
		if t == nil {
			return nil
		}
		return prepareValue(map[string]any(t.Fields))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = prepareValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = prepareValue(e)
		}
		return out
	}
	return v
}
