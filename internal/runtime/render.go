package runtime

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/aretw0/brickrt/internal/compiler"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/ports"
	"github.com/aretw0/brickrt/pkg/templates"
	"github.com/google/uuid"
)

// RenderOptions controls how a value is rendered.
type RenderOptions struct {
	// DisableAutoescape turns off HTML escaping of template output.
	DisableAutoescape bool
	// StringEngine renders plain strings as templates of the given dialect.
	// It is set for pipelines with implicit data flow.
	StringEngine domain.ExpressionType
	// RunPipeline evaluates pipeline expressions. When nil they are returned unrendered.
	RunPipeline func(ctx context.Context, pipeline domain.Pipeline, vars map[string]any) (any, error)
	// RunBrick invokes the brick of a brick expression.
	RunBrick func(ctx context.Context, call domain.BrickCallSpec, vars map[string]any) (any, error)
	// RenderDeferred renders the inner value of defer expressions.
	RenderDeferred bool
	// PreserveReferences keeps repeat references in the result instead of their values.
	PreserveReferences bool
}

// Renderer turns values containing expressions into concrete values.
type Renderer struct {
	sandbox ports.TemplateSandbox
}

// NewRenderer creates a renderer. Nunjucks and handlebars templates are sent
// to sandbox; without one they fail with a ConfigurationError.
func NewRenderer(sandbox ports.TemplateSandbox) *Renderer {
	return &Renderer{sandbox: sandbox}
}

// Render resolves every expression in value against vars.
// Literals are returned unchanged, and maps and lists are walked.
func (r *Renderer) Render(ctx context.Context, value any, vars map[string]any, opts RenderOptions) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.AsCancel(err)
	}
	out, err := r.render(ctx, value, vars, opts)
	if err != nil {
		return nil, err
	}
	if opts.PreserveReferences {
		return out, nil
	}
	return derefAll(out), nil
}

func (r *Renderer) render(ctx context.Context, value any, vars map[string]any, opts RenderOptions) (any, error) {
	if expr, ok := domain.AsExpression(value); ok {
		return r.renderExpression(ctx, expr, vars, opts)
	}

	switch v := value.(type) {
	case string:
		if opts.StringEngine != "" {
			return r.renderTemplate(ctx, opts.StringEngine, v, vars, opts)
		}
		return v, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		// Sorted so brick expressions run in a stable order.
		for _, k := range slices.Sorted(maps.Keys(v)) {
			rendered, err := r.render(ctx, v[k], vars, opts)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			rendered, err := r.render(ctx, e, vars, opts)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	}
	return value, nil
}

func (r *Renderer) renderExpression(ctx context.Context, expr domain.Expression, vars map[string]any, opts RenderOptions) (any, error) {
	switch expr.Type {
	case domain.ExprVar:
		path, ok := expr.Value.(string)
		if !ok {
			return nil, &domain.ConfigurationError{Message: fmt.Sprintf("var expression must hold a path string, got %T", expr.Value)}
		}
		return ResolveVar(vars, path), nil

	case domain.ExprMustache, domain.ExprNunjucks, domain.ExprHandlebars:
		tpl, ok := expr.Value.(string)
		if !ok {
			return nil, &domain.ConfigurationError{Message: fmt.Sprintf("%s expression must hold a template string, got %T", expr.Type, expr.Value)}
		}
		return r.renderTemplate(ctx, expr.Type, tpl, vars, opts)

	case domain.ExprPipeline:
		if opts.RunPipeline == nil {
			return expr, nil
		}
		pipeline, err := compiler.DecodePipeline(expr)
		if err != nil {
			return nil, err
		}
		return opts.RunPipeline(ctx, pipeline, vars)

	case domain.ExprDefer:
		if !opts.RenderDeferred {
			return expr, nil
		}
		return r.render(ctx, expr.Value, vars, opts)

	case domain.ExprRepeat:
		return r.renderRepeat(ctx, expr, vars, opts)

	case domain.ExprBrick:
		call, err := compiler.DecodeBrickCall(expr.Value)
		if err != nil {
			return nil, err
		}
		if opts.RunBrick == nil {
			return nil, &domain.ConfigurationError{Message: fmt.Sprintf("brick expression %s cannot run in this context", call.ID)}
		}
		return opts.RunBrick(ctx, call, vars)
	}
	return nil, &domain.ConfigurationError{Message: fmt.Sprintf("unsupported expression type: %s", expr.Type)}
}

func (r *Renderer) renderTemplate(ctx context.Context, dialect domain.ExpressionType, tpl string, vars map[string]any, opts RenderOptions) (any, error) {
	switch dialect {
	case domain.ExprMustache:
		return templates.RenderMustache(tpl, templates.PrepareContext(vars, false), !opts.DisableAutoescape)

	case domain.ExprNunjucks, domain.ExprHandlebars:
		if !templates.HasDelimiters(tpl) {
			return tpl, nil
		}
		if r.sandbox == nil {
			return nil, &domain.ConfigurationError{Message: fmt.Sprintf("no sandbox configured for %s templates", dialect)}
		}
		out, err := r.sandbox.Render(ctx, domain.SandboxRequest{
			Engine:     dialect,
			Template:   tpl,
			Context:    templates.PrepareContext(vars, true),
			Autoescape: !opts.DisableAutoescape,
		})
		if err != nil {
			return nil, domain.AsCancel(err)
		}
		return out, nil
	}
	return nil, &domain.ConfigurationError{Message: fmt.Sprintf("unsupported template engine: %s", dialect)}
}

func (r *Renderer) renderRepeat(ctx context.Context, expr domain.Expression, vars map[string]any, opts RenderOptions) (any, error) {
	spec, err := compiler.DecodeRepeat(expr.Value)
	if err != nil {
		return nil, err
	}

	data, err := r.render(ctx, spec.Data, vars, opts)
	if err != nil {
		return nil, err
	}
	items, ok := toSlice(domain.Deref(data))
	if !ok {
		return nil, &domain.ConfigurationError{Message: fmt.Sprintf("repeat data must be a list, got %T", data)}
	}

	key := OutputVar(spec.Key())
	out := make([]any, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, domain.AsCancel(err)
		}
		scoped := make(map[string]any, len(vars)+1)
		maps.Copy(scoped, vars)
		scoped[key] = domain.NewReference(uuid.NewString(), item)

		rendered, err := r.render(ctx, spec.Element, scoped, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, rendered)
	}
	return out, nil
}

func toSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// derefAll replaces every reference in v with the value it stands for.
// Values without references are returned as is, since they may be shared
// with the caller's scope.
func derefAll(v any) any {
	if !containsReference(v) {
		return v
	}
	switch t := v.(type) {
	case domain.Reference, *domain.Reference:
		return derefAll(domain.Deref(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = derefAll(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = derefAll(e)
		}
		return out
	}
	return v
}

func containsReference(v any) bool {
	switch t := v.(type) {
	case domain.Reference, *domain.Reference:
		return true
	case map[string]any:
		for _, e := range t {
			if containsReference(e) {
				return true
			}
		}
	case []any:
		for _, e := range t {
			if containsReference(e) {
				return true
			}
		}
	}
	return false
}
