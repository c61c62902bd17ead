package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/brickrt/pkg/domain"
	"golang.org/x/sync/errgroup"
)

type frameResult struct {
	output any
	err    error
}

// runInAllFrames runs the brick in every frame of the target tab. Frames that
// reject the call are left out; outputs keep frame enumeration order.
func (e *Engine) runInAllFrames(ctx context.Context, r *run, cfg domain.BrickConfig, args map[string]any, ctxScope *Scope, root domain.ElementRef, logger *slog.Logger) (any, error) {
	if e.messenger == nil || e.frames == nil {
		return nil, &domain.ConfigurationError{Message: fmt.Sprintf("window %q requires a messenger that can list frames", cfg.Window)}
	}

	frames, err := e.frames.Frames(ctx, r.opts.Target.TabID)
	if err != nil {
		return nil, domain.AsCancel(fmt.Errorf("failed to list frames of tab %d: %w", r.opts.Target.TabID, err))
	}

	req := e.runBrickRequest(r, cfg, args, ctxScope, root)
	results := make([]frameResult, len(frames))

	e.emitStatus(ctx, r, domain.RunSuspendedOnRemote, r.step, nil)
	var g errgroup.Group
	for i, frame := range frames {
		g.Go(func() error {
			out, err := e.messenger.Invoke(ctx, MethodRunBrick, frame, req)
			results[i] = frameResult{output: out, err: err}
			return nil
		})
	}
	_ = g.Wait()
	e.emitStatus(ctx, r, domain.RunRunning, r.step, nil)

	if err := ctx.Err(); err != nil {
		return nil, domain.AsCancel(err)
	}

	outputs := make([]any, 0, len(frames))
	for i, res := range results {
		if res.err != nil {
			logger.Debug("Frame rejected brick", "tab_id", frames[i].TabID, "frame_id", frames[i].FrameID, "err", res.err)
			continue
		}
		outputs = append(outputs, res.output)
	}
	return outputs, nil
}
