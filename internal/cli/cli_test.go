package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/brickrt/internal/cli"
	brickhttp "github.com/aretw0/brickrt/pkg/adapters/http"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greetDefinition = `
apiVersion: v3
name: greet
modComponent:
  modId: acme/demo
  modComponentId: c1
input:
  name: Ada
pipeline:
  - id: "@brickrt/identity"
    outputKey: greeting
    config:
      text: !mustache "Hello {{ input.name }}"
  - id: "@brickrt/markdown"
    config:
      markdown: !var "@greeting.text"
`

const stateDefinition = `
apiVersion: v3
modComponent:
  modId: acme/demo
  modComponentId: c1
pipeline:
  - id: "@brickrt/set-state"
    config:
      data:
        count: 1
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runJSON(t *testing.T, opts cli.RunOptions) map[string]any {
	t.Helper()
	opts.JSON = true
	var out bytes.Buffer
	require.NoError(t, cli.Run(context.Background(), opts, &out))
	var result map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	return result
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	greet := writeFile(t, dir, "greet.yaml", greetDefinition)

	t.Run("Renderer payload in JSON mode", func(t *testing.T) {
		result := runJSON(t, cli.RunOptions{Path: greet, RunID: "run-1", Headless: true})
		assert.Equal(t, "run-1", result["runId"])
		renderer := result["renderer"].(map[string]any)
		assert.Equal(t, string("@brickrt/markdown"), renderer["brickId"])
		assert.Equal(t, map[string]any{"markdown": "Hello Ada"}, renderer["args"])
	})

	t.Run("Input flag overrides the definition", func(t *testing.T) {
		result := runJSON(t, cli.RunOptions{Path: greet, Input: `{"name":"Grace"}`, Headless: true})
		renderer := result["renderer"].(map[string]any)
		assert.Equal(t, map[string]any{"markdown": "Hello Grace"}, renderer["args"])
	})

	t.Run("Renderer runs when not headless", func(t *testing.T) {
		result := runJSON(t, cli.RunOptions{Path: greet})
		assert.Nil(t, result["renderer"])
		assert.Equal(t, map[string]any{"markdown": "Hello Ada"}, result["output"])
	})

	t.Run("Plain output", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, cli.Run(context.Background(), cli.RunOptions{Path: greet, Headless: true}, &out))
		assert.Contains(t, out.String(), "Hello Ada")
	})

	t.Run("Graph overlay", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, cli.Run(context.Background(), cli.RunOptions{Path: greet, Graph: true}, &out))
		assert.Contains(t, out.String(), "graph TD")
		assert.Contains(t, out.String(), "class s0 executed;")
	})

	t.Run("Reducer output", func(t *testing.T) {
		state := writeFile(t, dir, "state.yaml", stateDefinition)
		result := runJSON(t, cli.RunOptions{Path: state})
		assert.Equal(t, map[string]any{"count": float64(1)}, result["output"])
	})

	t.Run("Invalid definition", func(t *testing.T) {
		bad := writeFile(t, dir, "bad.yaml", "pipeline:\n  - id: \"@acme/ghost\"\n")
		err := cli.Run(context.Background(), cli.RunOptions{Path: bad}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "unknown brick @acme/ghost")
	})

	t.Run("Input schema", func(t *testing.T) {
		typed := writeFile(t, dir, "typed.yaml", greetDefinition+"inputSchema:\n  name: int\n")
		err := cli.Run(context.Background(), cli.RunOptions{Path: typed}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "invalid input")
	})
}

func TestRunWithRedisAndEncryption(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeFile(t, t.TempDir(), "state.yaml", stateDefinition)

	result := runJSON(t, cli.RunOptions{
		Path: path,
		Config: cli.Config{
			RedisURL: "redis://" + mr.Addr() + "/0",
			StateKey: strings.Repeat("ab", 32),
		},
	})
	assert.Equal(t, map[string]any{"count": float64(1)}, result["output"])

	raw, err := mr.Get("brickrt:state:mod:acme/demo")
	require.NoError(t, err)
	assert.Contains(t, raw, "enc:")
	assert.NotContains(t, raw, `"count":1`)
}

func TestNewEnv(t *testing.T) {
	ctx := context.Background()

	t.Run("Process bricks", func(t *testing.T) {
		dir := t.TempDir()
		bricksFile := writeFile(t, dir, "bricks.yaml", "bricks:\n  - name: hello\n    command: echo\n    args: [\"hi\"]\n")
		env, err := cli.NewEnv(ctx, cli.Config{BricksFile: bricksFile})
		require.NoError(t, err)
		defer env.Close(ctx)

		_, err = env.Registry.Lookup(ctx, "@process/hello")
		assert.NoError(t, err)
	})

	t.Run("Bad state key", func(t *testing.T) {
		_, err := cli.NewEnv(ctx, cli.Config{StateKey: "abcd"})
		assert.ErrorContains(t, err, "32 bytes")
	})

	t.Run("Bad policy", func(t *testing.T) {
		policy := writeFile(t, t.TempDir(), "p.rego", "package broken\n\ndeny contains")
		_, err := cli.NewEnv(ctx, cli.Config{PolicyFiles: []string{policy}})
		assert.Error(t, err)
	})

	t.Run("Custom policy denies", func(t *testing.T) {
		dir := t.TempDir()
		policy := writeFile(t, dir, "deny.rego", `package brickrt.authz

deny contains msg if {
	input.brickId == "@brickrt/set-state"
	msg := "state is read-only"
}
`)
		path := writeFile(t, dir, "state.yaml", stateDefinition)
		err := cli.Run(ctx, cli.RunOptions{Path: path, Config: cli.Config{PolicyFiles: []string{policy}}}, &bytes.Buffer{})
		var denied *domain.PermissionDeniedError
		assert.ErrorAs(t, err, &denied)
	})
}

func TestListBricks(t *testing.T) {
	env, err := cli.NewEnv(context.Background(), cli.Config{})
	require.NoError(t, err)
	defer env.Close(context.Background())

	var out bytes.Buffer
	require.NoError(t, cli.ListBricks(&out, env.Registry, "@brickrt/*-state", false))
	assert.Contains(t, out.String(), "@brickrt/get-state")
	assert.Contains(t, out.String(), "@brickrt/set-state")
	assert.NotContains(t, out.String(), "@brickrt/identity")

	out.Reset()
	require.NoError(t, cli.ListBricks(&out, env.Registry, "@brickrt/markdown", true))
	var rows []cli.BrickInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "renderer", rows[0].Kind)
	assert.Equal(t, []string{"markdown"}, rows[0].Inputs)
}

func TestLoadLibrary(t *testing.T) {
	env, err := cli.NewEnv(context.Background(), cli.Config{})
	require.NoError(t, err)
	defer env.Close(context.Background())

	dir := t.TempDir()
	writeFile(t, dir, "greet.yaml", greetDefinition)
	writeFile(t, dir, "state.yml", stateDefinition)
	bricksFile := writeFile(t, dir, "bricks.yaml", "bricks: []\n")
	writeFile(t, dir, "notes.txt", "ignored")

	library, err := cli.LoadLibrary(context.Background(), dir, env.Registry, bricksFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"greet", "state"}, library.Names())
}

func TestServeHandler(t *testing.T) {
	env, err := cli.NewEnv(context.Background(), cli.Config{})
	require.NoError(t, err)
	defer env.Close(context.Background())

	handler, _ := cli.NewServeHandler(env, cli.ServeOptions{TabID: 7, Frames: 2})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	frames, err := brickhttp.NewClient(srv.URL).Frames(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []domain.Target{{TabID: 7, FrameID: 0}, {TabID: 7, FrameID: 1}}, frames)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "greet.yaml", greetDefinition)

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- cli.Watch(ctx, cli.RunOptions{Path: path}, out) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Waiting for changes")
	}, 5*time.Second, 20*time.Millisecond)

	writeFile(t, dir, "greet.yaml", strings.Replace(greetDefinition, "Ada", "Lin", 1))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Hello Lin")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
