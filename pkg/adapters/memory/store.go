package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/ports"
)

// Store implements ports.PageStateStore in memory.
// Safe for concurrent use. Reads and writes hand out copies.
type Store struct {
	mu       sync.RWMutex
	buckets  map[string]map[string]any
	policies map[string]map[string]domain.SyncPolicy

	lmu       sync.Mutex
	listeners map[int]ports.StateListener
	nextID    int
}

// NewStore creates an empty page state store.
func NewStore() *Store {
	return &Store{
		buckets:   make(map[string]map[string]any),
		policies:  make(map[string]map[string]domain.SyncPolicy),
		listeners: make(map[int]ports.StateListener),
	}
}

// GetState returns a copy of a namespace, or an empty map.
func (s *Store) GetState(ctx context.Context, q domain.StateQuery) (map[string]any, error) {
	bucket, err := q.Namespace.Bucket(q.Ref)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneMap(s.buckets[bucket]), nil
}

// SetState merges u into its namespace and returns the result.
func (s *Store) SetState(ctx context.Context, u domain.StateUpdate) (map[string]any, error) {
	bucket, err := u.Namespace.Bucket(u.Ref)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	prev := s.buckets[bucket]
	next, err := domain.MergeState(prev, u.Data, u.MergeStrategy)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.buckets[bucket] = next
	changed := domain.DiffState(prev, next)
	if changed != nil {
		changed = domain.CloneMap(changed)
	}
	out := domain.CloneMap(next)
	s.mu.Unlock()

	s.notify(ctx, domain.StateChangeEvent{
		Namespace:      u.Namespace,
		ModID:          u.Ref.ModID,
		ModComponentID: u.Ref.ModComponentID,
		Changed:        changed,
	})
	return out, nil
}

// Subscribe registers a listener for change events.
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

// DeclareVariables records the sync policy of a mod's variables.
func (s *Store) DeclareVariables(modID string, policies map[string]domain.SyncPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	declared := s.policies[modID]
	if declared == nil {
		declared = make(map[string]domain.SyncPolicy, len(policies))
		s.policies[modID] = declared
	}
	for name, policy := range policies {
		declared[name] = policy
	}
}

// ClearPage drops every namespace except session-synced mod variables.
func (s *Store) ClearPage(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for bucket, data := range s.buckets {
		modID, ok := strings.CutPrefix(bucket, "mod:")
		if !ok {
			delete(s.buckets, bucket)
			continue
		}
		kept := domain.SessionVariables(data, s.policies[modID])
		if len(kept) == 0 {
			delete(s.buckets, bucket)
			continue
		}
		s.buckets[bucket] = kept
	}
	return nil
}
