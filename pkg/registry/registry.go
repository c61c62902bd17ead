package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/gobwas/glob"
)

// Registry manages the available bricks.
type Registry struct {
	mu     sync.RWMutex
	bricks map[domain.RegistryID]domain.Definition
}

// NewRegistry creates a registry holding the given bricks.
func NewRegistry(bricks ...domain.Brick) (*Registry, error) {
	r := &Registry{
		bricks: make(map[domain.RegistryID]domain.Definition),
	}
	if err := r.Register(bricks...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds bricks to the registry, resolving each one's kind once.
// If a brick with the same id exists, it is overwritten.
func (r *Registry) Register(bricks ...domain.Brick) error {
	defs := make([]domain.Definition, 0, len(bricks))
	for _, b := range bricks {
		def, err := define(b)
		if err != nil {
			return err
		}
		defs = append(defs, def)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range defs {
		r.bricks[def.ID] = def
	}
	return nil
}

// MustRegister is Register for static wiring; it panics on invalid metadata.
func (r *Registry) MustRegister(bricks ...domain.Brick) *Registry {
	if err := r.Register(bricks...); err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the definition registered under id.
func (r *Registry) Lookup(_ context.Context, id domain.RegistryID) (domain.Definition, error) {
	r.mu.RLock()
	def, ok := r.bricks[id]
	r.mu.RUnlock()

	if !ok {
		return domain.Definition{}, &domain.DoesNotExistError{ID: id}
	}
	return def, nil
}

// List returns every definition sorted by id.
func (r *Registry) List() []domain.Definition {
	r.mu.RLock()
	defs := make([]domain.Definition, 0, len(r.bricks))
	for _, def := range r.bricks {
		defs = append(defs, def)
	}
	r.mu.RUnlock()

	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Filter returns the definitions whose id matches a glob pattern such as "@brickrt/*".
func (r *Registry) Filter(pattern string) ([]domain.Definition, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid brick filter %q: %w", pattern, err)
	}
	var out []domain.Definition
	for _, def := range r.List() {
		if g.Match(string(def.ID)) {
			out = append(out, def)
		}
	}
	return out, nil
}

func define(b domain.Brick) (domain.Definition, error) {
	if b == nil {
		return domain.Definition{}, fmt.Errorf("cannot register nil brick")
	}
	meta := b.Metadata()
	if meta.ID == "" {
		return domain.Definition{}, fmt.Errorf("brick has no id")
	}
	kind := meta.Kind
	if kind == "" {
		kind = domain.KindTransform
	}
	if !kind.IsValid() {
		return domain.Definition{}, fmt.Errorf("brick %s has unknown kind %q", meta.ID, kind)
	}
	locality := meta.Locality
	if locality == "" {
		locality = domain.LocalityAny
	}
	return domain.Definition{
		Brick:    b,
		ID:       meta.ID,
		Kind:     kind,
		Locality: locality,
		Inputs:   meta.Inputs,
	}, nil
}
