package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/brickrt/pkg/domain"
)

// Library holds named pipelines in their JSON wire form, so callers never
// share a pipeline's maps with each other.
type Library struct {
	mu        sync.RWMutex
	pipelines map[string][]byte
}

// NewLibrary creates a Library seeded with the given pipelines.
func NewLibrary(pipelines map[string]domain.Pipeline) (*Library, error) {
	l := &Library{pipelines: make(map[string][]byte, len(pipelines))}
	for name, p := range pipelines {
		if err := l.Put(name, p); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Put stores pipeline under name, replacing any previous one.
func (l *Library) Put(name string, pipeline domain.Pipeline) error {
	if name == "" {
		return fmt.Errorf("pipeline missing name")
	}
	raw, err := json.Marshal(pipeline)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline %s: %w", name, err)
	}
	l.mu.Lock()
	l.pipelines[name] = raw
	l.mu.Unlock()
	return nil
}

// Get returns a fresh copy of the pipeline stored under name.
// Expressions come back in their wire form.
func (l *Library) Get(name string) (domain.Pipeline, error) {
	l.mu.RLock()
	raw, ok := l.pipelines[name]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("pipeline %s: %w", name, domain.ErrNotFound)
	}
	var pipeline domain.Pipeline
	if err := json.Unmarshal(raw, &pipeline); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline %s: %w", name, err)
	}
	return pipeline, nil
}

// Names returns the stored pipeline names in sorted order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.pipelines))
	for k := range l.pipelines {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
