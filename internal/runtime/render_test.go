package runtime_test

import (
	"context"
	"testing"

	"github.com/aretw0/brickrt/internal/runtime"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func literal() *rapid.Generator[any] {
	scalar := rapid.OneOf(
		rapid.Map(rapid.StringMatching(`[a-z ]{0,8}`), func(s string) any { return s }),
		rapid.Map(rapid.Int(), func(i int) any { return i }),
		rapid.Map(rapid.Bool(), func(b bool) any { return b }),
		rapid.Just[any](nil),
	)
	return rapid.OneOf(
		scalar,
		rapid.Map(rapid.SliceOfN(scalar, 0, 4), func(s []any) any { return s }),
		rapid.Map(rapid.MapOfN(rapid.StringMatching(`[a-z]{1,5}`), scalar, 0, 4), func(m map[string]any) any { return m }),
	)
}

func TestRenderLiteralsPassThrough(t *testing.T) {
	r := runtime.NewRenderer(nil)
	rapid.Check(t, func(t *rapid.T) {
		value := literal().Draw(t, "value")
		out, err := r.Render(context.Background(), value, map[string]any{"@input": 1}, runtime.RenderOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assert.Equal(t, value, out)
	})
}

func TestResolveVar(t *testing.T) {
	vars := map[string]any{
		"a":        map[string]any{"b": []any{10, 20}},
		"typed":    map[string]string{"k": "v"},
		"@google":  domain.IntegrationBinding{IntegrationID: "google", Handle: "client", Fields: map[string]any{"user": "u"}},
		"@element": domain.NewReference("tok", map[string]any{"name": "ada"}),
	}

	tests := []struct {
		path string
		want any
	}{
		{"a.b.1", 20},
		{"a.b[0]", 10},
		{"a.b.5", nil},
		{"a.missing.deeper", nil},
		{"typed.k", "v"},
		{"@google", "client"},
		{"@google.user", "u"},
		{"@element.name", "ada"},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, runtime.ResolveVar(vars, tt.path))
		})
	}

	t.Run("Terminal reference is kept", func(t *testing.T) {
		got := runtime.ResolveVar(vars, "@element")
		assert.IsType(t, domain.Reference{}, got)
	})
}

func TestRenderExpressions(t *testing.T) {
	ctx := context.Background()
	worker := sandbox.NewWorker()
	t.Cleanup(worker.Close)
	r := runtime.NewRenderer(worker)

	vars := map[string]any{
		"@input": map[string]any{"name": "Ada", "items": []any{"a", "b"}, "html": "<b>"},
	}

	t.Run("Var", func(t *testing.T) {
		out, err := r.Render(ctx, domain.Var("@input.name"), vars, runtime.RenderOptions{})
		require.NoError(t, err)
		assert.Equal(t, "Ada", out)
	})

	t.Run("Wire form", func(t *testing.T) {
		out, err := r.Render(ctx, map[string]any{"__type__": "var", "__value__": "@input.name"}, vars, runtime.RenderOptions{})
		require.NoError(t, err)
		assert.Equal(t, "Ada", out)
	})

	t.Run("Mustache escapes by default", func(t *testing.T) {
		out, err := r.Render(ctx, domain.Mustache("{{@input.html}}"), vars, runtime.RenderOptions{})
		require.NoError(t, err)
		assert.Equal(t, "&lt;b&gt;", out)

		out, err = r.Render(ctx, domain.Mustache("{{input.html}}"), vars, runtime.RenderOptions{DisableAutoescape: true})
		require.NoError(t, err)
		assert.Equal(t, "<b>", out)
	})

	t.Run("Nested in literals", func(t *testing.T) {
		out, err := r.Render(ctx, map[string]any{
			"list": []any{domain.Var("@input.name"), "plain"},
		}, vars, runtime.RenderOptions{})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"list": []any{"Ada", "plain"}}, out)
	})

	t.Run("Nunjucks through sandbox", func(t *testing.T) {
		out, err := r.Render(ctx, domain.Nunjucks("Hello {{ input.name }}"), vars, runtime.RenderOptions{})
		require.NoError(t, err)
		assert.Equal(t, "Hello Ada", out)
	})

	t.Run("Handlebars without delimiters", func(t *testing.T) {
		out, err := runtime.NewRenderer(nil).Render(ctx, domain.Handlebars("plain"), vars, runtime.RenderOptions{})
		require.NoError(t, err)
		assert.Equal(t, "plain", out)
	})

	t.Run("Nunjucks without sandbox", func(t *testing.T) {
		_, err := runtime.NewRenderer(nil).Render(ctx, domain.Nunjucks("{{ x }}"), vars, runtime.RenderOptions{})
		assert.True(t, domain.IsConfigurationError(err))
	})

	t.Run("Implicit strings", func(t *testing.T) {
		out, err := r.Render(ctx, "Hi {{input.name}}", vars, runtime.RenderOptions{StringEngine: domain.ExprMustache})
		require.NoError(t, err)
		assert.Equal(t, "Hi Ada", out)

		_, err = r.Render(ctx, "Hi", vars, runtime.RenderOptions{StringEngine: "jinja"})
		var ce *domain.ConfigurationError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "unsupported template engine: jinja", ce.Message)
	})

	t.Run("Pipeline and defer are left for the brick", func(t *testing.T) {
		pipeline := domain.PipelineExpr(domain.Pipeline{{ID: "@test/echo"}})
		out, err := r.Render(ctx, pipeline, vars, runtime.RenderOptions{})
		require.NoError(t, err)
		assert.True(t, domain.IsPipelineExpression(out))

		deferred := domain.Defer(domain.Var("@input.name"))
		out, err = r.Render(ctx, deferred, vars, runtime.RenderOptions{})
		require.NoError(t, err)
		assert.Equal(t, deferred, out)

		out, err = r.Render(ctx, deferred, vars, runtime.RenderOptions{RenderDeferred: true})
		require.NoError(t, err)
		assert.Equal(t, "Ada", out)
	})

	t.Run("Pipeline with runner", func(t *testing.T) {
		out, err := r.Render(ctx, domain.PipelineExpr(domain.Pipeline{{ID: "@test/echo"}}), vars, runtime.RenderOptions{
			RunPipeline: func(_ context.Context, p domain.Pipeline, _ map[string]any) (any, error) {
				return len(p), nil
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, out)
	})

	t.Run("Brick without runner", func(t *testing.T) {
		_, err := r.Render(ctx, domain.BrickCall("@test/echo", nil), vars, runtime.RenderOptions{})
		assert.True(t, domain.IsConfigurationError(err))
	})
}

func TestRenderRepeat(t *testing.T) {
	ctx := context.Background()
	r := runtime.NewRenderer(nil)
	vars := map[string]any{"@input": map[string]any{"items": []any{"a", "b"}}}

	t.Run("Element key", func(t *testing.T) {
		out, err := r.Render(ctx, domain.Repeat(domain.RepeatSpec{
			Data:       domain.Var("@input.items"),
			Element:    domain.Mustache("{{x}}!"),
			ElementKey: "x",
		}), vars, runtime.RenderOptions{})
		require.NoError(t, err)
		assert.Equal(t, []any{"a!", "b!"}, out)
	})

	t.Run("Default key yields values", func(t *testing.T) {
		out, err := r.Render(ctx, domain.Repeat(domain.RepeatSpec{
			Data:    domain.Var("@input.items"),
			Element: map[string]any{"value": domain.Var("@element")},
		}), vars, runtime.RenderOptions{})
		require.NoError(t, err)
		assert.Equal(t, []any{map[string]any{"value": "a"}, map[string]any{"value": "b"}}, out)
	})

	t.Run("References are preserved on request", func(t *testing.T) {
		out, err := r.Render(ctx, domain.Repeat(domain.RepeatSpec{
			Data:    []any{1, 2},
			Element: domain.Var("@element"),
		}), vars, runtime.RenderOptions{PreserveReferences: true})
		require.NoError(t, err)
		refs := out.([]any)
		require.Len(t, refs, 2)
		ref, ok := refs[1].(domain.Reference)
		require.True(t, ok)
		assert.Equal(t, 2, ref.Value())
		assert.NotEmpty(t, ref.Token)
	})

	t.Run("Typed slices", func(t *testing.T) {
		out, err := r.Render(ctx, domain.Repeat(domain.RepeatSpec{
			Data:    []string{"x"},
			Element: domain.Var("@element"),
		}), vars, runtime.RenderOptions{})
		require.NoError(t, err)
		assert.Equal(t, []any{"x"}, out)
	})

	t.Run("Not a list", func(t *testing.T) {
		_, err := r.Render(ctx, domain.Repeat(domain.RepeatSpec{Data: "nope", Element: "x"}), vars, runtime.RenderOptions{})
		assert.True(t, domain.IsConfigurationError(err))
	})

	t.Run("Scope is not leaked", func(t *testing.T) {
		_, err := r.Render(ctx, domain.Repeat(domain.RepeatSpec{Data: []any{1}, Element: "x"}), vars, runtime.RenderOptions{})
		require.NoError(t, err)
		assert.NotContains(t, vars, "@element")
	})
}

func TestRenderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runtime.NewRenderer(nil).Render(ctx, "x", nil, runtime.RenderOptions{})
	assert.ErrorIs(t, err, domain.ErrCancelled)
}
