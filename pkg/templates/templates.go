// Package templates renders the string template dialects a pipeline can use.
//
// Mustache is logic-less and is rendered directly by callers. Nunjucks and
// handlebars evaluate expressions, so the runtime only reaches them through a
// sandbox (see package sandbox) that calls RenderIsolated.
package templates

import (
	"fmt"
	"strings"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aymerick/raymond"
	"github.com/cbroglie/mustache"
	"github.com/flosch/pongo2/v6"
)

// HasDelimiters reports whether s contains template syntax.
func HasDelimiters(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%")
}

// RenderMustache renders a mustache template. Missing variables render as empty.
func RenderMustache(template string, ctx map[string]any, autoescape bool) (string, error) {
	if !strings.Contains(template, "{{") {
		return template, nil
	}
	out, err := mustache.RenderRaw(template, !autoescape, ctx)
	if err != nil {
		return "", fmt.Errorf("mustache template: %w", err)
	}
	return out, nil
}

// RenderIsolated renders an expression-capable dialect. It must only be
// called from inside a sandbox, never with live runtime values.
func RenderIsolated(req domain.SandboxRequest) (string, error) {
	switch req.Engine {
	case domain.ExprNunjucks:
		return renderNunjucks(req.Template, req.Context, req.Autoescape)
	case domain.ExprHandlebars:
		return renderHandlebars(req.Template, req.Context, req.Autoescape)
	}
	return "", &domain.ConfigurationError{Message: fmt.Sprintf("sandbox does not host template engine: %s", req.Engine)}
}

func renderNunjucks(template string, ctx map[string]any, autoescape bool) (string, error) {
	if !autoescape {
		template = "{% autoescape off %}" + template + "{% endautoescape %}"
	}
	tpl, err := pongo2.FromString(template)
	if err != nil {
		return "", fmt.Errorf("nunjucks template: %w", err)
	}
	out, err := tpl.Execute(pongo2.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("nunjucks template: %w", err)
	}
	return out, nil
}

func renderHandlebars(template string, ctx map[string]any, autoescape bool) (string, error) {
	tpl, err := raymond.Parse(template)
	if err != nil {
		return "", fmt.Errorf("handlebars template: %w", err)
	}
	var data any = ctx
	if !autoescape {
		data = markSafe(ctx)
	}
	out, err := tpl.Exec(data)
	if err != nil {
		return "", fmt.Errorf("handlebars template: %w", err)
	}
	return out, nil
}

// markSafe wraps every string so raymond skips HTML escaping.
func markSafe(v any) any {
	switch t := v.(type) {
	case string:
		return raymond.SafeString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = markSafe(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = markSafe(e)
		}
		return out
	}
	return v
}
