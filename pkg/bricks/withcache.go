package bricks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/brickrt/internal/logging"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/messenger"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/sync/singleflight"
)

type withCacheArgs struct {
	Body       any              `mapstructure:"body"`
	StateKey   string           `mapstructure:"stateKey"`
	Namespace  domain.Namespace `mapstructure:"namespace"`
	ForceFetch bool             `mapstructure:"forceFetch"`
	TTL        float64          `mapstructure:"ttl"`
}

// WithCache memoizes a sub-pipeline in page state under stateKey.
// Concurrent calls for the same key share one execution.
type WithCache struct {
	group singleflight.Group
	now   func() time.Time

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the shared context of one in-progress fetch. It is cancelled
// once every caller waiting on it has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// CacheOption configures WithCache.
type CacheOption func(*WithCache)

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) CacheOption {
	return func(c *WithCache) {
		c.now = now
	}
}

// NewWithCache creates the brick. Each instance coalesces its own calls.
func NewWithCache(opts ...CacheOption) *WithCache {
	c := &WithCache{now: time.Now, flights: make(map[string]*flight)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *WithCache) Metadata() domain.Metadata {
	return domain.Metadata{
		ID:          WithCacheID,
		Name:        "Run with Cache",
		Description: "Run a sub-pipeline, caching its output in page state",
		Kind:        domain.KindEffect,
		Locality:    domain.LocalityAny,
	}
}

func (c *WithCache) Run(ctx context.Context, args map[string]any, opts domain.BrickOptions) (any, error) {
	var in withCacheArgs
	if err := decodeArgs(WithCacheID, args, &in); err != nil {
		return nil, err
	}
	if in.StateKey == "" {
		return nil, &domain.InputValidationError{BrickID: WithCacheID, Err: fmt.Errorf("stateKey is required")}
	}
	in.Namespace = namespaceOrMod(in.Namespace)
	state, err := requireState(WithCacheID, opts)
	if err != nil {
		return nil, err
	}
	if opts.RunPipeline == nil {
		return nil, &domain.ConfigurationError{Message: "with-cache requires a pipeline runner"}
	}
	bucket, err := in.Namespace.Bucket(opts.Ref)
	if err != nil {
		return nil, &domain.ConfigurationError{Message: "invalid cache namespace", Err: err}
	}

	if !in.ForceFetch {
		entry, ok, err := c.read(ctx, state, in, opts.Ref)
		if err != nil {
			return nil, err
		}
		if ok && entry.Fresh(c.now()) {
			return entry.Data, nil
		}
	}

	key := bucket + ":" + in.StateKey
	f := c.join(ctx, key)
	defer c.leave(key, f)

	results := c.group.DoChan(key, func() (any, error) {
		return c.fetch(f.ctx, state, in, opts)
	})
	select {
	case res := <-results:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, domain.AsCancel(ctx.Err())
	}
}

func (c *WithCache) join(ctx context.Context, key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

// leave drops a waiter. The last one out cancels the fetch and forgets the
// key, so a later call starts a fresh flight instead of joining a dying one.
func (c *WithCache) leave(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[key] == f {
		delete(c.flights, key)
		c.group.Forget(key)
	}
}

func (c *WithCache) read(ctx context.Context, state domain.StateAccessor, in withCacheArgs, ref domain.ModComponentRef) (domain.AsyncState, bool, error) {
	current, err := state.GetState(ctx, domain.StateQuery{Namespace: in.Namespace, Ref: ref})
	if err != nil {
		return domain.AsyncState{}, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	raw, ok := current[in.StateKey]
	if !ok {
		return domain.AsyncState{}, false, nil
	}
	entry, err := DecodeAsyncState(raw)
	if err != nil {
		// A foreign value under the key is treated as a miss and overwritten.
		return domain.AsyncState{}, false, nil
	}
	return entry, true, nil
}

func (c *WithCache) fetch(ctx context.Context, state domain.StateAccessor, in withCacheArgs, opts domain.BrickOptions) (any, error) {
	prev, hasPrev, err := c.read(ctx, state, in, opts.Ref)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	loading := domain.AsyncState{
		IsLoading:  !hasPrev || !prev.IsSuccess,
		IsFetching: true,
		RequestID:  requestID,
	}
	if hasPrev {
		loading.Data = prev.Data
	}
	if err := c.write(ctx, state, in, opts.Ref, loading); err != nil {
		return nil, err
	}

	out, runErr := opts.RunPipeline(ctx, in.Body, domain.Branch{Key: "body"}, nil)
	if runErr != nil {
		failed := domain.AsyncState{
			IsError:   true,
			RequestID: requestID,
			Error:     messenger.SerializeError(runErr),
			Data:      loading.Data,
		}
		// Written even when the flight was cancelled so the entry does not stay loading.
		if err := c.write(context.WithoutCancel(ctx), state, in, opts.Ref, failed); err != nil {
			logging.OrNop(opts.Logger).Warn("Failed to store cache error", "state_key", in.StateKey, "err", err)
		}
		return nil, runErr
	}

	done := domain.AsyncState{
		IsSuccess:   true,
		RequestID:   requestID,
		Data:        out,
		CurrentData: out,
	}
	if in.TTL > 0 {
		expires := c.now().Add(time.Duration(in.TTL * float64(time.Second)))
		done.ExpiresAt = &expires
	}
	if err := c.write(ctx, state, in, opts.Ref, done); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WithCache) write(ctx context.Context, state domain.StateAccessor, in withCacheArgs, ref domain.ModComponentRef, entry domain.AsyncState) error {
	_, err := state.SetState(ctx, domain.StateUpdate{
		Namespace:     in.Namespace,
		Data:          map[string]any{in.StateKey: entry.ToMap()},
		MergeStrategy: domain.MergeShallow,
		Ref:           ref,
	})
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// DecodeAsyncState reads a cache entry back from its stored map shape.
func DecodeAsyncState(raw any) (domain.AsyncState, error) {
	var entry domain.AsyncState
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &entry,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})
	if err != nil {
		return entry, err
	}
	if err := decoder.Decode(raw); err != nil {
		return entry, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return entry, nil
}
