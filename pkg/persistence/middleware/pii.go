package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

// piiMiddleware masks sensitive keys in change events. Stored state is
// untouched: bricks still read the real values.
type piiMiddleware struct {
	ports.PageStateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values of keys matching the
// patterns in every event handed to subscribers.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		patterns[i] = re
	}
	return func(next ports.PageStateStore) ports.PageStateStore {
		return &piiMiddleware{PageStateStore: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Subscribe(listener ports.StateListener) func() {
	return m.PageStateStore.Subscribe(func(ctx context.Context, event domain.StateChangeEvent) {
		if event.Changed != nil {
			event.Changed = domain.CloneMap(event.Changed)
			maskMap(event.Changed, m.patterns)
		}
		listener(ctx, event)
	})
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if masked {
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			maskMap(t, patterns)
		case []any:
			for _, e := range t {
				if sub, ok := e.(map[string]any); ok {
					maskMap(sub, patterns)
				}
			}
		}
	}
}
