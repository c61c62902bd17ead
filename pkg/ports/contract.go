package ports

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunPageStateStoreContract runs a suite of tests to verify that a PageStateStore
// implementation adheres to the interface contract.
// Values are kept to strings and bools so JSON-backed stores compare equal.
func RunPageStateStoreContract(t *testing.T, store PageStateStore) {
	ctx := context.Background()
	suffix := time.Now().Format("20060102150405.000000000")
	ref := domain.ModComponentRef{ModID: "mod-" + suffix, ModComponentID: "comp-" + suffix}

	t.Run("Get Empty", func(t *testing.T) {
		state, err := store.GetState(ctx, domain.StateQuery{Namespace: domain.NamespaceMod, Ref: ref})
		require.NoError(t, err)
		assert.NotNil(t, state)
		assert.Empty(t, state)
	})

	t.Run("Set Returns Post-Merge State", func(t *testing.T) {
		got, err := store.SetState(ctx, domain.StateUpdate{
			Namespace:     domain.NamespaceMod,
			Ref:           ref,
			Data:          map[string]any{"user": map[string]any{"name": "ada"}},
			MergeStrategy: domain.MergeReplace,
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"user": map[string]any{"name": "ada"}}, got)

		got, err = store.SetState(ctx, domain.StateUpdate{
			Namespace:     domain.NamespaceMod,
			Ref:           ref,
			Data:          map[string]any{"user": map[string]any{"role": "admin"}},
			MergeStrategy: domain.MergeDeep,
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"user": map[string]any{"name": "ada", "role": "admin"}}, got)

		read, err := store.GetState(ctx, domain.StateQuery{Namespace: domain.NamespaceMod, Ref: ref})
		require.NoError(t, err)
		assert.Equal(t, got, read)
	})

	t.Run("Replace Drops Previous Keys", func(t *testing.T) {
		got, err := store.SetState(ctx, domain.StateUpdate{
			Namespace:     domain.NamespaceMod,
			Ref:           ref,
			Data:          map[string]any{"flag": true},
			MergeStrategy: domain.MergeReplace,
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"flag": true}, got)
	})

	t.Run("Namespaces Are Isolated", func(t *testing.T) {
		other := domain.ModComponentRef{ModID: "other-" + suffix, ModComponentID: "other-comp-" + suffix}

		_, err := store.SetState(ctx, domain.StateUpdate{
			Namespace: domain.NamespacePrivate, Ref: ref, Data: map[string]any{"secret": "x"},
		})
		require.NoError(t, err)

		state, err := store.GetState(ctx, domain.StateQuery{Namespace: domain.NamespaceMod, Ref: other})
		require.NoError(t, err)
		assert.Empty(t, state)

		state, err = store.GetState(ctx, domain.StateQuery{Namespace: domain.NamespacePrivate, Ref: other})
		require.NoError(t, err)
		assert.Empty(t, state)

		state, err = store.GetState(ctx, domain.StateQuery{Namespace: domain.NamespacePrivate, Ref: ref})
		require.NoError(t, err)
		assert.Equal(t, "x", state["secret"])
	})

	t.Run("Results Are Copies", func(t *testing.T) {
		state, err := store.GetState(ctx, domain.StateQuery{Namespace: domain.NamespacePrivate, Ref: ref})
		require.NoError(t, err)
		state["secret"] = "mutated"

		again, err := store.GetState(ctx, domain.StateQuery{Namespace: domain.NamespacePrivate, Ref: ref})
		require.NoError(t, err)
		assert.Equal(t, "x", again["secret"])
	})

	t.Run("Change Events", func(t *testing.T) {
		var (
			mu     sync.Mutex
			events []domain.StateChangeEvent
		)
		unsubscribe := store.Subscribe(func(_ context.Context, e domain.StateChangeEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
		})

		_, err := store.SetState(ctx, domain.StateUpdate{
			Namespace: domain.NamespacePublic, Ref: ref, Data: map[string]any{"shared-" + suffix: "v"}, MergeStrategy: domain.MergeShallow,
		})
		require.NoError(t, err)
		unsubscribe()

		_, err = store.SetState(ctx, domain.StateUpdate{
			Namespace: domain.NamespacePublic, Ref: ref, Data: map[string]any{"ignored-" + suffix: "v"}, MergeStrategy: domain.MergeShallow,
		})
		require.NoError(t, err)

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, events, 1)
		assert.Equal(t, domain.NamespacePublic, events[0].Namespace)
		assert.Equal(t, map[string]any{"shared-" + suffix: "v"}, events[0].Changed)
	})

	t.Run("Concurrent Deep Writes", func(t *testing.T) {
		concurrent := domain.ModComponentRef{ModID: "concurrent-" + suffix}
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.SetState(ctx, domain.StateUpdate{
					Namespace:     domain.NamespaceMod,
					Ref:           concurrent,
					Data:          map[string]any{fmt.Sprintf("k%d", i): "v"},
					MergeStrategy: domain.MergeDeep,
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		state, err := store.GetState(ctx, domain.StateQuery{Namespace: domain.NamespaceMod, Ref: concurrent})
		require.NoError(t, err)
		assert.Len(t, state, 10)
	})

	t.Run("Clear Page Keeps Session Variables", func(t *testing.T) {
		page := domain.ModComponentRef{ModID: "page-" + suffix, ModComponentID: "page-comp-" + suffix}
		store.DeclareVariables(page.ModID, map[string]domain.SyncPolicy{"keep": domain.SyncSession})

		_, err := store.SetState(ctx, domain.StateUpdate{
			Namespace: domain.NamespaceMod, Ref: page, Data: map[string]any{"keep": "a", "drop": "b"},
		})
		require.NoError(t, err)
		_, err = store.SetState(ctx, domain.StateUpdate{
			Namespace: domain.NamespacePrivate, Ref: page, Data: map[string]any{"drop": "c"},
		})
		require.NoError(t, err)

		require.NoError(t, store.ClearPage(ctx))

		state, err := store.GetState(ctx, domain.StateQuery{Namespace: domain.NamespaceMod, Ref: page})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"keep": "a"}, state)

		state, err = store.GetState(ctx, domain.StateQuery{Namespace: domain.NamespacePrivate, Ref: page})
		require.NoError(t, err)
		assert.Empty(t, state)
	})

	t.Run("Invalid Namespace", func(t *testing.T) {
		_, err := store.GetState(ctx, domain.StateQuery{Namespace: "galaxy", Ref: ref})
		assert.Error(t, err)
	})
}
