package keylock_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/brickrt/pkg/keylock"
	"github.com/aretw0/brickrt/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Serializes(t *testing.T) {
	mgr := keylock.New()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mgr.WithLock(ctx, "bucket", func(context.Context) error {
				v := counter
				time.Sleep(time.Millisecond)
				counter = v + 1
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestManager_LockLifecycle(t *testing.T) {
	mgr := keylock.New()
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		_ = mgr.WithLock(ctx, fmt.Sprintf("key-%d", i), func(context.Context) error { return nil })
	}
	assert.Zero(t, mgr.Active(), "entries must be released after use")
}

func TestManager_PropagatesError(t *testing.T) {
	mgr := keylock.New()
	boom := errors.New("boom")
	err := mgr.WithLock(context.Background(), "k", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestManager_CancelledContext(t *testing.T) {
	mgr := keylock.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := mgr.WithLock(ctx, "k", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

type fakeLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked []string
	ttl      time.Duration
	err      error
}

func (f *fakeLocker) Lock(_ context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.locked = append(f.locked, key)
	f.ttl = ttl
	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unlocked = append(f.unlocked, key)
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &fakeLocker{}
	mgr := keylock.New(keylock.WithLocker(locker), keylock.WithTTL(5*time.Second))

	err := mgr.WithLock(context.Background(), "mod:m1", func(context.Context) error {
		locker.mu.Lock()
		defer locker.mu.Unlock()
		assert.Equal(t, []string{"mod:m1"}, locker.locked)
		assert.Empty(t, locker.unlocked)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"mod:m1"}, locker.unlocked)
	assert.Equal(t, 5*time.Second, locker.ttl)

	locker.err = errors.New("redis down")
	err = mgr.WithLock(context.Background(), "mod:m1", func(context.Context) error {
		t.Fatal("fn must not run without the distributed lock")
		return nil
	})
	assert.ErrorContains(t, err, "failed to acquire distributed lock")
}
