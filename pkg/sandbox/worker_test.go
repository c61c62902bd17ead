package sandbox_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/ports/tests"
	"github.com/aretw0/brickrt/pkg/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerContract(t *testing.T) {
	w := sandbox.NewWorker(sandbox.WithConcurrency(2))
	defer w.Close()

	tests.TemplateSandboxContractTest(t, w)
}

func TestWorker_Isolation(t *testing.T) {
	w := sandbox.NewWorker()
	defer w.Close()

	t.Run("Numbers render as written", func(t *testing.T) {
		out, err := w.Render(context.Background(), domain.SandboxRequest{
			Engine:   domain.ExprNunjucks,
			Template: "{{ n }}",
			Context:  map[string]any{"n": 3},
		})
		require.NoError(t, err)
		assert.Equal(t, "3", out)
	})

	t.Run("Live values are rejected", func(t *testing.T) {
		_, err := w.Render(context.Background(), domain.SandboxRequest{
			Engine:   domain.ExprNunjucks,
			Template: "{{ fn }}",
			Context:  map[string]any{"fn": func() {}},
		})
		var ce *domain.ConfigurationError
		assert.ErrorAs(t, err, &ce)
	})

	t.Run("Cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := w.Render(ctx, domain.SandboxRequest{Engine: domain.ExprNunjucks, Template: "{{ x }}"})
		assert.ErrorIs(t, err, domain.ErrCancelled)
	})
}

func TestWorker_Closed(t *testing.T) {
	w := sandbox.NewWorker()
	w.Close()
	w.Close()

	_, err := w.Render(context.Background(), domain.SandboxRequest{Engine: domain.ExprNunjucks, Template: "{{ x }}"})
	assert.ErrorIs(t, err, sandbox.ErrClosed)
}

func TestServe(t *testing.T) {
	var in bytes.Buffer
	enc := json.NewEncoder(&in)
	require.NoError(t, enc.Encode(domain.SandboxRequest{
		Engine: domain.ExprHandlebars, Template: "Hi {{name}}", Context: map[string]any{"name": "Ada"}, Autoescape: true,
	}))
	in.WriteString("not json\n")
	require.NoError(t, enc.Encode(domain.SandboxRequest{Engine: domain.ExprMustache, Template: "{{x}}"}))

	var out bytes.Buffer
	require.NoError(t, sandbox.Serve(context.Background(), &in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	got, err := sandbox.DecodeResponse([]byte(lines[0]))
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada", got)

	_, err = sandbox.DecodeResponse([]byte(lines[1]))
	assert.ErrorContains(t, err, "decode sandbox request")

	_, err = sandbox.DecodeResponse([]byte(lines[2]))
	var ce *domain.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}
