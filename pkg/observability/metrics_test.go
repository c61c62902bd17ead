package observability_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHooks(t *testing.T) {
	m := observability.NewMetrics()
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnRunStatus(ctx, &domain.RunEvent{Status: domain.RunPending})
	hooks.OnRunStatus(ctx, &domain.RunEvent{Status: domain.RunRunning})
	hooks.OnBrickFinish(ctx, &domain.BrickEvent{BrickID: "@test/a", Duration: 10 * time.Millisecond})
	hooks.OnBrickFinish(ctx, &domain.BrickEvent{BrickID: "@test/a", Err: &domain.BusinessError{Message: "no"}})
	hooks.OnBrickFinish(ctx, &domain.BrickEvent{BrickID: "@test/a", Err: errors.New("boom")})
	hooks.OnBrickSkip(ctx, &domain.BrickEvent{BrickID: "@test/b"})

	assert.Equal(t, 1.0, gauge(t, m, "brickrt_runs_active"))
	hooks.OnRunStatus(ctx, &domain.RunEvent{Status: domain.RunFailed})
	assert.Equal(t, 0.0, gauge(t, m, "brickrt_runs_active"))

	count, err := testutil.GatherAndCount(m.Registry(), "brickrt_brick_invocations_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "one series per outcome")

	count, err = testutil.GatherAndCount(m.Registry(), "brickrt_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(m.Registry(), "brickrt_brick_skipped_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetricsHandler(t *testing.T) {
	m := observability.NewMetrics()
	m.Hooks().OnRunStatus(context.Background(), &domain.RunEvent{Status: domain.RunCompleted})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `brickrt_runs_total{status="COMPLETED"} 1`)
}

func TestSetupProviderWithoutEndpoint(t *testing.T) {
	shutdown, err := observability.SetupProvider(context.Background(), observability.TelemetryConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func gauge(t *testing.T, m *observability.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
