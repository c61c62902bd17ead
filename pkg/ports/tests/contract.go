package tests

import (
	"context"
	"strings"
	"testing"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/ports"
)

// TemplateSandboxContractTest is a reusable test suite that verifies if an adapter complies with ports.TemplateSandbox.
func TemplateSandboxContractTest(t *testing.T, sandbox ports.TemplateSandbox) {
	t.Helper()
	ctx := context.Background()

	// 1. Nunjucks
	t.Run("Nunjucks_Render", func(t *testing.T) {
		out, err := sandbox.Render(ctx, domain.SandboxRequest{
			Engine:     domain.ExprNunjucks,
			Template:   "Hello {{ name }}{% if excited %}!{% endif %}",
			Context:    map[string]any{"name": "Ada", "excited": true},
			Autoescape: true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "Hello Ada!" {
			t.Errorf("got %q, want %q", out, "Hello Ada!")
		}
	})

	// 2. Handlebars
	t.Run("Handlebars_Render", func(t *testing.T) {
		out, err := sandbox.Render(ctx, domain.SandboxRequest{
			Engine:     domain.ExprHandlebars,
			Template:   "{{#each items}}[{{this}}]{{/each}}",
			Context:    map[string]any{"items": []any{"a", "b"}},
			Autoescape: true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "[a][b]" {
			t.Errorf("got %q, want %q", out, "[a][b]")
		}
	})

	// 3. Escaping
	t.Run("Autoescape", func(t *testing.T) {
		req := domain.SandboxRequest{
			Engine:     domain.ExprNunjucks,
			Template:   "{{ x }}",
			Context:    map[string]any{"x": "<b>"},
			Autoescape: true,
		}
		out, err := sandbox.Render(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "&lt;b&gt;" {
			t.Errorf("escaped: got %q", out)
		}

		req.Autoescape = false
		out, err = sandbox.Render(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "<b>" {
			t.Errorf("raw: got %q", out)
		}
	})

	// 4. Template errors surface with the dialect name
	t.Run("Syntax_Error", func(t *testing.T) {
		_, err := sandbox.Render(ctx, domain.SandboxRequest{
			Engine:   domain.ExprNunjucks,
			Template: "{% if %}",
			Context:  map[string]any{},
		})
		if err == nil {
			t.Fatal("expected error for malformed template")
		}
		if !strings.Contains(err.Error(), "nunjucks") {
			t.Errorf("error should name the dialect, got %v", err)
		}
	})

	// 5. Unsupported engine
	t.Run("Unsupported_Engine", func(t *testing.T) {
		_, err := sandbox.Render(ctx, domain.SandboxRequest{
			Engine:   domain.ExprMustache,
			Template: "{{x}}",
		})
		if err == nil {
			t.Error("expected error for engine the sandbox does not host")
		}
	})
}
