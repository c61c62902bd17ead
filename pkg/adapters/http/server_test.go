package http_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/brickrt/internal/runtime"
	brickhttp "github.com/aretw0/brickrt/pkg/adapters/http"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/messenger"
	"github.com/aretw0/brickrt/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var target = domain.Target{TabID: 3, FrameID: 1}

func newServer(t *testing.T, opts ...brickhttp.ServerOption) (*messenger.Hub, *brickhttp.Client) {
	t.Helper()
	hub := messenger.NewHub()
	ep := hub.Endpoint(target)
	ep.Handle("ECHO", func(_ context.Context, call messenger.Call) (any, error) {
		return map[string]any{"args": call.Args, "frame": call.Target.FrameID}, nil
	})
	ep.Handle("FAIL", func(context.Context, messenger.Call) (any, error) {
		return nil, &domain.BusinessError{Message: "nope"}
	})
	ep.Handle("SLOW", func(ctx context.Context, _ messenger.Call) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	hub.Endpoint(target.TopFrame())

	srv := httptest.NewServer(brickhttp.NewHandler(hub, opts...))
	t.Cleanup(srv.Close)
	return hub, brickhttp.NewClient(srv.URL)
}

func TestClientInvoke(t *testing.T) {
	_, client := newServer(t)
	ctx := context.Background()

	t.Run("Result crosses as JSON", func(t *testing.T) {
		out, err := client.Invoke(ctx, "ECHO", target, "a", 2, map[string]any{"k": true})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"args":  []any{"a", float64(2), map[string]any{"k": true}},
			"frame": float64(1),
		}, out)
	})

	t.Run("Errors are rehydrated", func(t *testing.T) {
		_, err := client.Invoke(ctx, "FAIL", target)
		var be *domain.BusinessError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "nope", be.Message)
	})

	t.Run("Unknown method", func(t *testing.T) {
		_, err := client.Invoke(ctx, "MISSING", target)
		assert.ErrorContains(t, err, "no handler registered")
	})

	t.Run("Unknown frame", func(t *testing.T) {
		_, err := client.Invoke(ctx, "ECHO", domain.Target{TabID: 9})
		assert.ErrorIs(t, err, messenger.ErrNoReceiver)
	})

	t.Run("Cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err := client.Invoke(ctx, "SLOW", target)
		assert.True(t, errors.Is(err, domain.ErrCancelled), "got %v", err)
	})
}

func TestClientFrames(t *testing.T) {
	_, client := newServer(t)

	frames, err := client.Frames(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []domain.Target{{TabID: 3, FrameID: 0}, target}, frames)

	frames, err = client.Frames(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestServerRoutes(t *testing.T) {
	hub := messenger.NewHub()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("brickrt_runs_active 0\n"))
	})
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	handler := brickhttp.NewHandler(hub, brickhttp.WithMetricsHandler(metrics), brickhttp.WithTracerProvider(tp))

	t.Run("Health", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("Metrics", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Contains(t, w.Body.String(), "brickrt_runs_active")
	})

	t.Run("Bad target", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rpc/x/0/ECHO", strings.NewReader(`{"args":[]}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Bad body", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rpc/1/0/ECHO", strings.NewReader(`{`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("No receiver maps to 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rpc/1/0/ECHO", strings.NewReader(`{"args":[]}`)))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	assert.NotEmpty(t, exporter.GetSpans())
}

// A background engine forwards a page brick over HTTP to the engine that
// owns the frame.
func TestRemoteBrickOverHTTP(t *testing.T) {
	page := domain.NewBrick(domain.Metadata{ID: "@test/page", Locality: domain.LocalityPage},
		func(_ context.Context, args map[string]any, opts domain.BrickOptions) (any, error) {
			return map[string]any{"q": args["q"], "run": opts.RunID}, nil
		})
	reg, err := registry.NewRegistry(page)
	require.NoError(t, err)

	hub := messenger.NewHub()
	runtime.RegisterHandlers(hub.Endpoint(target), runtime.NewEngine(reg))
	srv := httptest.NewServer(brickhttp.NewHandler(hub))
	t.Cleanup(srv.Close)

	client := brickhttp.NewClient(srv.URL)
	background := runtime.NewEngine(reg,
		runtime.WithMessenger(client),
		runtime.WithFrameLister(client),
		runtime.WithExecutionContext(domain.ContextBackground),
	)

	out, err := background.ReducePipeline(context.Background(), domain.Pipeline{
		{ID: "@test/page", Config: map[string]any{"q": domain.Mustache("hi {{ input }}")}},
	}, runtime.InitialValues{Input: "ada"}, runtime.RunOptions{Target: target, RunID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"q": "hi ada", "run": "run-1"}, out)
}
