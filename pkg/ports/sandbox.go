package ports

import (
	"context"

	"github.com/aretw0/brickrt/pkg/domain"
)

// TemplateSandbox renders templates outside the caller's privileges.
// Implementations must not share live values with the caller.
type TemplateSandbox interface {
	Render(ctx context.Context, req domain.SandboxRequest) (string, error)
}
