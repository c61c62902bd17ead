package runtime

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aretw0/brickrt/internal/compiler"
	"github.com/aretw0/brickrt/internal/logging"
	"github.com/aretw0/brickrt/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ReducePipeline runs the steps of pipeline in order and returns the output
// of the last one. The first failing step aborts the run.
func (e *Engine) ReducePipeline(ctx context.Context, pipeline domain.Pipeline, initial InitialValues, opts RunOptions) (any, error) {
	r := e.newRun(opts)
	return e.reduce(ctx, r, pipeline, initial.Scope(), initial.Input, initial.Root)
}

// RunRendererPipeline runs pipeline headless and returns what its renderer
// would have displayed. It fails with NoRendererError when no renderer ran.
func (e *Engine) RunRendererPipeline(ctx context.Context, pipeline domain.Pipeline, initial InitialValues, opts RunOptions) (*domain.RendererPayload, error) {
	opts.Headless = true
	_, err := e.ReducePipeline(ctx, pipeline, initial, opts)
	return rendererPayload(err)
}

func rendererPayload(err error) (*domain.RendererPayload, error) {
	var he *domain.HeadlessModeError
	if errors.As(err, &he) {
		return he.Payload(), nil
	}
	if err != nil {
		return nil, err
	}
	return nil, &domain.NoRendererError{}
}

func (e *Engine) reduce(ctx context.Context, r *run, pipeline domain.Pipeline, scope *Scope, input any, root domain.ElementRef) (any, error) {
	ctx, span := e.tracer.Start(ctx, "pipeline.reduce", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.String("mod.id", r.opts.Ref.ModID),
		attribute.String("mod_component.id", r.opts.Ref.ModComponentID),
		attribute.String("pipeline.api_version", string(r.opts.APIVersion)),
		attribute.Int("pipeline.steps", len(pipeline)),
		attribute.Int("pipeline.depth", len(r.branches)),
	))
	defer span.End()

	if !r.nested {
		e.emitStatus(ctx, r, domain.RunPending, 0, nil)
	}

	scope, err := ExtendModVariableContext(ctx, scope, e.extendOptions(r, false))
	if err != nil {
		return e.finish(ctx, r, span, 0, nil, err)
	}

	output := input
	for i, cfg := range pipeline {
		if err := ctx.Err(); err != nil {
			return e.finish(ctx, r, span, i, nil, domain.AsCancel(err))
		}
		r.step = i
		if !r.nested {
			e.emitStatus(ctx, r, domain.RunRunning, i, nil)
		}

		result, err := e.runStep(ctx, r, cfg, IntermediateState{
			Scope:          scope,
			Index:          i,
			IsLastBrick:    i == len(pipeline)-1,
			Root:           root,
			PreviousOutput: output,
		})
		if err != nil {
			return e.finish(ctx, r, span, i, nil, err)
		}
		output, scope = result.Output, result.Scope
	}
	return e.finish(ctx, r, span, len(pipeline), output, nil)
}

func (e *Engine) finish(ctx context.Context, r *run, span trace.Span, index int, output any, err error) (any, error) {
	status := domain.RunCompleted
	switch {
	case err == nil:
	case domain.IsHeadless(err):
		span.SetAttributes(attribute.Bool("pipeline.headless", true))
	case domain.IsCancel(err):
		err = domain.AsCancel(err)
		status = domain.RunCancelled
		if !r.nested {
			r.logger.Debug("Run cancelled", "index", index)
		}
	default:
		status = domain.RunFailed
		if !domain.IsBusinessError(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if !r.nested {
			r.logger.Warn("Run failed", "index", index, "err", err)
		}
	}

	if !r.nested {
		e.emitStatus(ctx, r, status, index, err)
	}
	if err != nil {
		return nil, err
	}
	return output, nil
}

// runStep evaluates the step's condition, invokes the brick and binds its output.
func (e *Engine) runStep(ctx context.Context, r *run, cfg domain.BrickConfig, state IntermediateState) (BrickResult, error) {
	scope, err := ExtendModVariableContext(ctx, state.Scope, e.extendOptions(r, true))
	if err != nil {
		return BrickResult{}, &domain.BrickError{BrickID: cfg.ID, InstanceID: cfg.InstanceID, Err: err}
	}
	state.Scope = scope
	ctxScope := r.flow.contextScope(state)

	ok, err := e.shouldRun(ctx, r, cfg, ctxScope)
	if err != nil {
		return BrickResult{}, brickError(cfg, err)
	}
	if !ok {
		e.skip(ctx, r, cfg, ctxScope)
		return BrickResult{Output: state.PreviousOutput, Scope: state.Scope}, nil
	}

	output, err := e.invoke(ctx, r, cfg, state.Root, ctxScope)
	if err != nil {
		return BrickResult{}, brickError(cfg, err)
	}
	return r.flow.bind(cfg, state, output), nil
}

// brickError attributes err to the step. Cancellation and headless hand-offs
// are control flow and pass through unwrapped.
func brickError(cfg domain.BrickConfig, err error) error {
	var (
		ce *domain.CancelError
		he *domain.HeadlessModeError
	)
	switch {
	case errors.As(err, &ce):
		return ce
	case domain.IsCancel(err):
		return &domain.CancelError{Cause: err}
	case errors.As(err, &he):
		return he
	}
	return &domain.BrickError{BrickID: cfg.ID, InstanceID: cfg.InstanceID, Err: err}
}

func (e *Engine) shouldRun(ctx context.Context, r *run, cfg domain.BrickConfig, ctxScope *Scope) (bool, error) {
	if cfg.If == nil {
		return true, nil
	}
	cond, err := e.renderer.Render(ctx, cfg.If, ctxScope.Values(), RenderOptions{
		StringEngine: r.flow.stringEngine(cfg),
		RunBrick:     e.brickExpressionRunner(r, cfg, domain.ElementRef{}),
	})
	if err != nil {
		return false, err
	}
	return IsTruthy(cond), nil
}

func (e *Engine) skip(ctx context.Context, r *run, cfg domain.BrickConfig, ctxScope *Scope) {
	logging.ForBrick(r.logger, cfg.ID, cfg.InstanceID).Debug("Skipping brick, condition is false")

	record := e.traceRecord(r, cfg)
	record.Skipped = true
	if r.opts.LogValues {
		record.TemplateContext = ctxScope.Values()
	}
	if e.traces != nil {
		e.traces.AddExit(ctx, record)
	}
	if e.hooks.OnBrickSkip != nil {
		e.hooks.OnBrickSkip(ctx, &domain.BrickEvent{
			EventBase:  domain.EventBase{Timestamp: record.Timestamp, Type: domain.EventBrickSkip, RunID: r.id},
			BrickID:    cfg.ID,
			InstanceID: cfg.InstanceID,
			Branches:   r.branches,
		})
	}
}

// IsTruthy evaluates a rendered condition. Strings are true only when they
// spell an affirmative such as "true", "yes", "on" or "1".
func IsTruthy(v any) bool {
	switch t := domain.Deref(v).(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "t", "yes", "y", "on", "1":
			return true
		}
		return false
	case int:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case uint:
		return t != 0
	case uint64:
		return t != 0
	case float32:
		return t != 0
	case float64:
		return t != 0
	}
	return true
}

func (e *Engine) extendOptions(r *run, update bool) ExtendOptions {
	return ExtendOptions{
		Ref:        r.opts.Ref,
		APIVersion: r.opts.APIVersion,
		Update:     update,
		State:      e.state,
	}
}

func (e *Engine) emitStatus(ctx context.Context, r *run, status domain.RunStatus, index int, err error) {
	if e.hooks.OnRunStatus == nil {
		return
	}
	e.hooks.OnRunStatus(ctx, &domain.RunEvent{
		EventBase:      domain.EventBase{Timestamp: time.Now(), Type: domain.EventRunStatus, RunID: r.id},
		ModComponentID: r.opts.Ref.ModComponentID,
		Status:         status,
		Index:          index,
		Err:            err,
	})
}

// nestedRunner runs pipelines handed to a brick in its options.
func (e *Engine) nestedRunner(r *run, ctxScope *Scope, root domain.ElementRef, headless bool) func(context.Context, any, domain.Branch, map[string]any) (any, error) {
	return func(ctx context.Context, value any, branch domain.Branch, extra map[string]any) (any, error) {
		pipeline, err := compiler.DecodePipeline(value)
		if err != nil {
			return nil, err
		}
		child := r.child(branch, headless)
		return e.reduce(ctx, child, pipeline, ctxScope.Merge(extra), map[string]any{}, root)
	}
}
