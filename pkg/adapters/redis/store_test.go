package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/brickrt/pkg/adapters/redis"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewFromClient(client)
	ports.RunPageStateStoreContract(t, store)
}

func TestRedisStore_ContractWithLocker(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewFromClient(client,
		redis.WithPrefix("locked:"),
		redis.WithLocker(redis.NewLocker(client, "locked:")),
	)
	ports.RunPageStateStoreContract(t, store)
}

func TestRedisStore_PrefixAndTTL(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("app:"), redis.WithTTL(time.Minute))
	ctx := context.Background()
	ref := domain.ModComponentRef{ModID: "m1", ModComponentID: "c1"}

	_, err := store.SetState(ctx, domain.StateUpdate{Namespace: domain.NamespaceMod, Ref: ref, Data: map[string]any{"a": "b"}})
	require.NoError(t, err)

	assert.True(t, mr.Exists("app:mod:m1"))
	assert.True(t, mr.Exists("app:index"))
	assert.Equal(t, time.Minute, mr.TTL("app:mod:m1"))

	raw, err := mr.Get("app:mod:m1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"b"}`, raw)

	mr.FastForward(2 * time.Minute)
	state, err := store.GetState(ctx, domain.StateQuery{Namespace: domain.NamespaceMod, Ref: ref})
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestRedisStore_ClearPageRemovesIndex(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	_, err := store.SetState(ctx, domain.StateUpdate{Namespace: domain.NamespacePublic, Data: map[string]any{"x": "y"}})
	require.NoError(t, err)
	require.NoError(t, store.ClearPage(ctx))

	assert.False(t, mr.Exists(redis.DefaultPrefix+"public"))
	members, err := client.ZRange(ctx, redis.DefaultPrefix+"index", 0, -1).Result()
	require.NoError(t, err)
	assert.Empty(t, members)
}
