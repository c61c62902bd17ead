package bricks_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/brickrt/internal/runtime"
	"github.com/aretw0/brickrt/pkg/adapters/memory"
	"github.com/aretw0/brickrt/pkg/bricks"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ref = domain.ModComponentRef{ModID: "mod-1", ModComponentID: "comp-1"}

func cacheOpts(store *memory.Store, run domain.PipelineRunner) domain.BrickOptions {
	return domain.BrickOptions{Ref: ref, State: store, RunPipeline: run}
}

func TestWithCache_Dedup(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	slow := domain.NewBrick(domain.Metadata{ID: "@test/slow"},
		func(ctx context.Context, _ map[string]any, _ domain.BrickOptions) (any, error) {
			calls.Add(1)
			once.Do(func() { close(started) })
			<-release
			return "fresh", nil
		})

	reg, err := registry.NewRegistry(append(bricks.All(), slow)...)
	require.NoError(t, err)
	store := memory.NewStore()
	engine := runtime.NewEngine(reg, runtime.WithStateStore(store))

	pipeline := domain.Pipeline{{
		ID: bricks.WithCacheID,
		Config: map[string]any{
			"stateKey": "profile",
			"body":     domain.PipelineExpr(domain.Pipeline{{ID: "@test/slow"}}),
		},
	}}

	var wg sync.WaitGroup
	results := make([]any, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.ReducePipeline(context.Background(), pipeline, runtime.InitialValues{}, runtime.RunOptions{Ref: ref})
		}(i)
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), calls.Load(), "the wrapped pipeline runs once")
	assert.Equal(t, []any{"fresh", "fresh"}, results)

	state, err := store.GetState(context.Background(), domain.StateQuery{Namespace: domain.NamespaceMod, Ref: ref})
	require.NoError(t, err)
	entry, err := bricks.DecodeAsyncState(state["profile"])
	require.NoError(t, err)
	assert.True(t, entry.IsSuccess)
	assert.Equal(t, "fresh", entry.Data)
	assert.Equal(t, "fresh", entry.CurrentData)
	assert.NotEmpty(t, entry.RequestID)
	assert.Nil(t, entry.ExpiresAt)
}

func TestWithCache_HitAndExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cache := bricks.NewWithCache(bricks.WithClock(func() time.Time { return now }))
	store := memory.NewStore()
	ctx := context.Background()

	runs := 0
	run := func(context.Context, any, domain.Branch, map[string]any) (any, error) {
		runs++
		return runs, nil
	}
	args := map[string]any{"stateKey": "k", "body": "pipeline", "ttl": 60}

	out, err := cache.Run(ctx, args, cacheOpts(store, run))
	require.NoError(t, err)
	assert.Equal(t, 1, out)

	out, err = cache.Run(ctx, args, cacheOpts(store, run))
	require.NoError(t, err)
	assert.Equal(t, 1, out, "fresh entry is served from state")

	now = now.Add(2 * time.Minute)
	out, err = cache.Run(ctx, args, cacheOpts(store, run))
	require.NoError(t, err)
	assert.Equal(t, 2, out, "expired entry is refetched")

	forced := map[string]any{"stateKey": "k", "body": "pipeline", "ttl": 60, "forceFetch": true}
	out, err = cache.Run(ctx, forced, cacheOpts(store, run))
	require.NoError(t, err)
	assert.Equal(t, 3, out)

	state, err := store.GetState(ctx, domain.StateQuery{Namespace: domain.NamespaceMod, Ref: ref})
	require.NoError(t, err)
	entry, err := bricks.DecodeAsyncState(state["k"])
	require.NoError(t, err)
	require.NotNil(t, entry.ExpiresAt)
	assert.Equal(t, now.Add(time.Minute), entry.ExpiresAt.UTC())
}

func TestWithCache_Error(t *testing.T) {
	cache := bricks.NewWithCache()
	store := memory.NewStore()
	ctx := context.Background()

	boom := &domain.BusinessError{Message: "upstream down"}
	run := func(context.Context, any, domain.Branch, map[string]any) (any, error) { return nil, boom }

	_, err := cache.Run(ctx, map[string]any{"stateKey": "k", "namespace": "private"}, cacheOpts(store, run))
	assert.ErrorIs(t, err, boom)

	state, err := store.GetState(ctx, domain.StateQuery{Namespace: domain.NamespacePrivate, Ref: ref})
	require.NoError(t, err)
	entry, err := bricks.DecodeAsyncState(state["k"])
	require.NoError(t, err)
	assert.True(t, entry.IsError)
	require.NotNil(t, entry.Error)
	assert.Equal(t, "BusinessError", entry.Error.Name)
	assert.Equal(t, "upstream down", entry.Error.Message)
}

func TestWithCache_WaiterCancelled(t *testing.T) {
	t.Run("Sole caller stops the body", func(t *testing.T) {
		var after atomic.Int32
		slow := domain.NewBrick(domain.Metadata{ID: "@test/slow"},
			func(ctx context.Context, _ map[string]any, _ domain.BrickOptions) (any, error) {
				select {
				case <-time.After(50 * time.Millisecond):
					return "slow", nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			})
		count := domain.NewBrick(domain.Metadata{ID: "@test/count"},
			func(context.Context, map[string]any, domain.BrickOptions) (any, error) {
				after.Add(1)
				return nil, nil
			})

		reg, err := registry.NewRegistry(append(bricks.All(), slow, count)...)
		require.NoError(t, err)
		engine := runtime.NewEngine(reg, runtime.WithStateStore(memory.NewStore()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = engine.ReducePipeline(ctx, domain.Pipeline{{
			ID: bricks.WithCacheID,
			Config: map[string]any{
				"stateKey": "profile",
				"body":     domain.PipelineExpr(domain.Pipeline{{ID: "@test/slow"}, {ID: "@test/count"}}),
			},
		}}, runtime.InitialValues{}, runtime.RunOptions{Ref: ref})
		assert.True(t, domain.IsCancel(err))

		time.Sleep(150 * time.Millisecond)
		assert.Zero(t, after.Load(), "steps after the cancelled one never run")
	})

	t.Run("Remaining waiter keeps the flight", func(t *testing.T) {
		cache := bricks.NewWithCache()
		store := memory.NewStore()
		started := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		var calls atomic.Int32

		run := func(ctx context.Context, _ any, _ domain.Branch, _ map[string]any) (any, error) {
			calls.Add(1)
			once.Do(func() { close(started) })
			select {
			case <-release:
				return "late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		args := map[string]any{"stateKey": "k"}

		kept := make(chan error, 1)
		var out any
		go func() {
			var err error
			out, err = cache.Run(context.Background(), args, cacheOpts(store, run))
			kept <- err
		}()
		<-started

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		_, err := cache.Run(ctx, args, cacheOpts(store, run))
		assert.True(t, domain.IsCancel(err))

		close(release)
		require.NoError(t, <-kept)
		assert.Equal(t, "late", out)
		assert.Equal(t, int32(1), calls.Load())

		state, err := store.GetState(context.Background(), domain.StateQuery{Namespace: domain.NamespaceMod, Ref: ref})
		require.NoError(t, err)
		entry, err := bricks.DecodeAsyncState(state["k"])
		require.NoError(t, err)
		assert.True(t, entry.IsSuccess)
		assert.Equal(t, "late", entry.Data)
	})
}

func TestWithCache_Validation(t *testing.T) {
	cache := bricks.NewWithCache()
	run := func(context.Context, any, domain.Branch, map[string]any) (any, error) { return nil, nil }

	_, err := cache.Run(context.Background(), map[string]any{}, cacheOpts(memory.NewStore(), run))
	var iv *domain.InputValidationError
	assert.ErrorAs(t, err, &iv)

	_, err = cache.Run(context.Background(), map[string]any{"stateKey": "k"}, domain.BrickOptions{Ref: ref, RunPipeline: run})
	var ce *domain.ConfigurationError
	assert.ErrorAs(t, err, &ce)

	assert.False(t, errors.Is(err, context.Canceled))
}
