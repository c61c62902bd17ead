package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/brickrt/internal/logging"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/messenger"
)

// MethodRunBrick is the messenger method that runs a brick in another frame.
const MethodRunBrick = "RUN_BRICK"

// RunBrickRequest carries a rendered step to the frame that runs it.
// References do not survive serialization, so args carry plain values.
type RunBrickRequest struct {
	BrickID    domain.RegistryID      `json:"brickId"`
	InstanceID string                 `json:"instanceId,omitempty"`
	Args       map[string]any         `json:"args"`
	Context    map[string]any         `json:"context,omitempty"`
	Root       domain.ElementRef      `json:"root"`
	Ref        domain.ModComponentRef `json:"ref"`
	RunID      string                 `json:"runId"`
	Branches   []domain.Branch        `json:"branches,omitempty"`
	APIVersion domain.APIVersion      `json:"apiVersion,omitempty"`
	Headless   bool                   `json:"headless,omitempty"`
}

// HandlerRegistrar is implemented by messenger endpoints.
type HandlerRegistrar interface {
	Handle(method string, h messenger.Handler)
}

// RegisterHandlers serves the engine's remote methods on endpoint.
func RegisterHandlers(endpoint HandlerRegistrar, e *Engine) {
	endpoint.Handle(MethodRunBrick, func(ctx context.Context, call messenger.Call) (any, error) {
		var req RunBrickRequest
		if err := call.Decode(0, &req); err != nil {
			return nil, &domain.ConfigurationError{Message: "invalid run brick request", Err: err}
		}
		return e.HandleRunBrick(ctx, req)
	})
}

// HandleRunBrick runs a brick on behalf of another frame.
func (e *Engine) HandleRunBrick(ctx context.Context, req RunBrickRequest) (any, error) {
	def, err := e.registry.Lookup(ctx, req.BrickID)
	if err != nil {
		return nil, err
	}
	if def.RequiresDOM() && !e.execContext.CanAccessDOM() {
		return nil, &domain.ConfigurationError{Message: fmt.Sprintf("brick %s needs the page but %s cannot reach it", def.ID, e.execContext)}
	}

	r := e.newRun(RunOptions{
		APIVersion: req.APIVersion,
		Ref:        req.Ref,
		RunID:      req.RunID,
		Branches:   req.Branches,
		Headless:   req.Headless,
	})
	r.nested = true
	cfg := domain.BrickConfig{ID: req.BrickID, InstanceID: req.InstanceID}
	logger := logging.ForBrick(r.logger, cfg.ID, cfg.InstanceID)
	logger.Debug("Running brick for remote caller")

	return def.Brick.Run(ctx, req.Args, e.brickOptions(r, cfg, NewScope(req.Context), req.Root, logger))
}

func (e *Engine) runBrickRequest(r *run, cfg domain.BrickConfig, args map[string]any, ctxScope *Scope, root domain.ElementRef) RunBrickRequest {
	plain, _ := derefAll(args).(map[string]any)
	return RunBrickRequest{
		BrickID:    cfg.ID,
		InstanceID: cfg.InstanceID,
		Args:       plain,
		Context:    templateSafe(ctxScope.Values()),
		Root:       root,
		Ref:        r.opts.Ref,
		RunID:      r.id,
		Branches:   r.branches,
		APIVersion: r.opts.APIVersion,
		Headless:   r.opts.Headless,
	}
}

// templateSafe drops reference wrappers so the context serializes to values.
func templateSafe(vars map[string]any) map[string]any {
	out, _ := derefAll(vars).(map[string]any)
	return out
}

func (e *Engine) runRemote(ctx context.Context, r *run, target domain.Target, cfg domain.BrickConfig, args map[string]any, ctxScope *Scope, root domain.ElementRef) (any, error) {
	if e.messenger == nil {
		return nil, &domain.ConfigurationError{Message: fmt.Sprintf("brick %s must run in another frame but no messenger is configured", cfg.ID)}
	}

	e.emitStatus(ctx, r, domain.RunSuspendedOnRemote, r.step, nil)
	out, err := e.messenger.Invoke(ctx, MethodRunBrick, target, e.runBrickRequest(r, cfg, args, ctxScope, root))
	e.emitStatus(ctx, r, domain.RunRunning, r.step, nil)
	if err != nil {
		return nil, domain.AsCancel(err)
	}
	return out, nil
}
