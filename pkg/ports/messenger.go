package ports

import (
	"context"

	"github.com/aretw0/brickrt/pkg/domain"
)

// Messenger invokes a named procedure in another execution context.
// Errors raised remotely are returned rehydrated as local error types where known.
type Messenger interface {
	Invoke(ctx context.Context, method string, target domain.Target, args ...any) (any, error)
}

// FrameLister enumerates the frames of a tab, top frame first.
type FrameLister interface {
	Frames(ctx context.Context, tabID int) ([]domain.Target, error)
}
