package ports

import (
	"context"

	"github.com/aretw0/brickrt/pkg/domain"
)

// StateListener receives change events after a write is applied.
type StateListener func(ctx context.Context, event domain.StateChangeEvent)

// PageStateStore is the page-scoped, namespaced state shared by mod components.
type PageStateStore interface {
	domain.StateAccessor

	// Subscribe registers a listener and returns a function that removes it.
	Subscribe(listener StateListener) (unsubscribe func())

	// DeclareVariables records the sync policy of mod variables.
	DeclareVariables(modID string, policies map[string]domain.SyncPolicy)

	// ClearPage drops page state on navigation, keeping session-synced mod variables.
	ClearPage(ctx context.Context) error
}
