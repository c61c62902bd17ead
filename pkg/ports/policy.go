package ports

import (
	"context"

	"github.com/aretw0/brickrt/pkg/domain"
)

// BrickPolicy decides whether a brick may run.
// A denial is reported as *domain.PermissionDeniedError.
type BrickPolicy interface {
	Authorize(ctx context.Context, input domain.PolicyInput) error
}
