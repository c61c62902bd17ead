package ports

import (
	"context"

	"github.com/aretw0/brickrt/pkg/domain"
)

// BrickRegistry resolves bricks by id. The engine never mutates it.
type BrickRegistry interface {
	// Lookup returns *domain.DoesNotExistError when id is not registered.
	Lookup(ctx context.Context, id domain.RegistryID) (domain.Definition, error)
	List() []domain.Definition
}
