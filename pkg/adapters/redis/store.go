package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/keylock"
	"github.com/aretw0/brickrt/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "brickrt:state:"

// Store implements ports.PageStateStore using Redis. Each namespace bucket is
// one JSON document; writes to a bucket are serialized through a keylock.Manager.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	locks  *keylock.Manager
	locker ports.DistributedLocker

	lmu       sync.Mutex
	listeners map[int]ports.StateListener
	nextID    int
}

type Option func(*Store)

// WithTTL sets the expiration of state buckets.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithLocker serializes writes across replicas sharing the database.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(s *Store) {
		s.locker = locker
	}
}

// New creates a Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client:    client,
		prefix:    DefaultPrefix,
		listeners: make(map[int]ports.StateListener),
	}
	for _, opt := range opts {
		opt(store)
	}

	lockOpts := []keylock.Option{}
	if store.locker != nil {
		lockOpts = append(lockOpts, keylock.WithLocker(store.locker))
	}
	store.locks = keylock.New(lockOpts...)
	return store
}

func (s *Store) key(bucket string) string {
	return s.prefix + bucket
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

func (s *Store) varsKey(modID string) string {
	return s.prefix + "vars:" + modID
}

// GetState reads a namespace. A missing bucket is an empty map.
func (s *Store) GetState(ctx context.Context, q domain.StateQuery) (map[string]any, error) {
	bucket, err := q.Namespace.Bucket(q.Ref)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, bucket)
}

func (s *Store) load(ctx context.Context, bucket string) (map[string]any, error) {
	val, err := s.client.Get(ctx, s.key(bucket)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	state := map[string]any{}
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, nil
}

func (s *Store) save(ctx context.Context, bucket string, state map[string]any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(bucket), data, s.ttl)

	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: bucket})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

func (s *Store) drop(ctx context.Context, bucket string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(bucket))
	pipe.ZRem(ctx, s.indexKey(), bucket)
	_, err := pipe.Exec(ctx)
	return err
}

// SetState merges u into its namespace and returns the stored result.
func (s *Store) SetState(ctx context.Context, u domain.StateUpdate) (map[string]any, error) {
	bucket, err := u.Namespace.Bucket(u.Ref)
	if err != nil {
		return nil, err
	}

	var next, changed map[string]any
	err = s.locks.WithLock(ctx, s.key(bucket), func(ctx context.Context) error {
		prev, err := s.load(ctx, bucket)
		if err != nil {
			return err
		}
		merged, err := domain.MergeState(prev, u.Data, u.MergeStrategy)
		if err != nil {
			return err
		}
		if err := s.save(ctx, bucket, merged); err != nil {
			return err
		}
		// Reload so callers see the JSON shape every later read returns.
		next, err = s.load(ctx, bucket)
		if err != nil {
			return err
		}
		changed = domain.DiffState(prev, next)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, domain.StateChangeEvent{
		Namespace:      u.Namespace,
		ModID:          u.Ref.ModID,
		ModComponentID: u.Ref.ModComponentID,
		Changed:        changed,
	})
	return next, nil
}

// Subscribe registers a listener for writes made through this store.
func (s *Store) Subscribe(listener ports.StateListener) func() {
	s.lmu.Lock()
	defer s.lmu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify(ctx context.Context, event domain.StateChangeEvent) {
	s.lmu.Lock()
	listeners := make([]ports.StateListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.lmu.Unlock()

	for _, l := range listeners {
		l(ctx, event)
	}
}

// DeclareVariables stores the sync policies of a mod's variables in a hash.
func (s *Store) DeclareVariables(modID string, policies map[string]domain.SyncPolicy) {
	if len(policies) == 0 {
		return
	}
	values := make(map[string]any, len(policies))
	for name, policy := range policies {
		values[name] = string(policy)
	}
	// The port has no error return; a failed declaration only means the
	// variables are cleared on navigation.
	_ = s.client.HSet(context.Background(), s.varsKey(modID), values).Err()
}

func (s *Store) policies(ctx context.Context, modID string) (map[string]domain.SyncPolicy, error) {
	raw, err := s.client.HGetAll(ctx, s.varsKey(modID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read variable policies: %w", err)
	}
	out := make(map[string]domain.SyncPolicy, len(raw))
	for name, policy := range raw {
		out[name] = domain.SyncPolicy(policy)
	}
	return out, nil
}

// ClearPage drops every indexed bucket, keeping session-synced mod variables.
func (s *Store) ClearPage(ctx context.Context) error {
	buckets, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list state buckets: %w", err)
	}

	for _, bucket := range buckets {
		err := s.locks.WithLock(ctx, s.key(bucket), func(ctx context.Context) error {
			modID, ok := strings.CutPrefix(bucket, "mod:")
			if !ok {
				return s.drop(ctx, bucket)
			}
			data, err := s.load(ctx, bucket)
			if err != nil {
				return err
			}
			policies, err := s.policies(ctx, modID)
			if err != nil {
				return err
			}
			kept := domain.SessionVariables(data, policies)
			if len(kept) == 0 {
				return s.drop(ctx, bucket)
			}
			return s.save(ctx, bucket, kept)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
