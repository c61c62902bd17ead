package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/aretw0/brickrt/internal/logging"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/messenger"
	"github.com/aretw0/brickrt/pkg/schema"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RunBrick runs one step outside of a pipeline and returns its output and
// the scope the next step would see.
func (e *Engine) RunBrick(ctx context.Context, cfg domain.BrickConfig, state IntermediateState, opts RunOptions) (BrickResult, error) {
	if state.Scope == nil {
		state.Scope = NewScope(nil)
	}
	r := e.newRun(opts)
	return e.runStep(ctx, r, cfg, state)
}

// invoke renders the step's args and runs the brick where its window says.
func (e *Engine) invoke(ctx context.Context, r *run, cfg domain.BrickConfig, root domain.ElementRef, ctxScope *Scope) (any, error) {
	def, err := e.registry.Lookup(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	logger := logging.ForBrick(r.logger, cfg.ID, cfg.InstanceID)
	root = selectRoot(cfg, root)

	record := e.traceRecord(r, cfg)
	if r.opts.LogValues {
		record.TemplateContext = ctxScope.Values()
	}

	args, err := e.renderArgs(ctx, r, cfg, def, ctxScope, root)
	if err != nil {
		record.RenderError = err.Error()
		e.traceExit(ctx, record, nil, err)
		return nil, err
	}
	if r.opts.LogValues {
		record.RenderedArgs = args
	}

	if err := e.authorize(ctx, r, cfg, def); err != nil {
		e.traceExit(ctx, record, nil, err)
		return nil, err
	}
	if r.opts.ValidateInput {
		if err := schema.Validate(def.Inputs, args); err != nil {
			err = &domain.InputValidationError{BrickID: def.ID, Err: err}
			e.traceExit(ctx, record, nil, err)
			return nil, err
		}
	}

	if r.opts.Headless && def.IsRenderer() {
		logger.Debug("Handing renderer args to the caller")
		record.RenderedArgs = args
		e.traceExit(ctx, record, nil, nil)
		return nil, &domain.HeadlessModeError{
			BrickID:    def.ID,
			InstanceID: cfg.InstanceID,
			RunID:      r.id,
			Args:       args,
			Context:    ctxScope.Values(),
		}
	}

	ctx, span := e.tracer.Start(ctx, "pipeline.brick", trace.WithAttributes(
		attribute.String("brick.id", string(def.ID)),
		attribute.String("brick.instance_id", cfg.InstanceID),
		attribute.String("brick.kind", string(def.Kind)),
		attribute.String("brick.window", string(cfg.Window)),
		attribute.String("run.id", r.id),
	))
	defer span.End()

	if e.traces != nil {
		e.traces.AddEntry(ctx, record)
	}
	event := &domain.BrickEvent{
		EventBase:  domain.EventBase{Timestamp: record.Timestamp, Type: domain.EventBrickStart, RunID: r.id},
		BrickID:    def.ID,
		InstanceID: cfg.InstanceID,
		Branches:   record.Branches,
		Input:      args,
	}
	if e.hooks.OnBrickStart != nil {
		e.hooks.OnBrickStart(ctx, event)
	}

	start := time.Now()
	output, err := e.dispatch(ctx, r, cfg, def, args, ctxScope, root, logger)
	duration := time.Since(start)

	outcome := domain.Outcome(err)
	span.SetAttributes(attribute.String("brick.outcome", outcome))
	if outcome == "error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if err != nil && !domain.IsHeadless(err) {
		logger.Debug("Brick failed", "outcome", outcome, "err", err)
	}

	record.Duration = duration
	e.traceExit(ctx, record, output, err)

	if e.hooks.OnBrickFinish != nil {
		finish := *event
		finish.Type = domain.EventBrickFinish
		finish.Timestamp = time.Now()
		finish.Output, finish.Err, finish.Duration = output, err, duration
		e.hooks.OnBrickFinish(ctx, &finish)
	}
	return output, err
}

func (e *Engine) dispatch(ctx context.Context, r *run, cfg domain.BrickConfig, def domain.Definition, args map[string]any, ctxScope *Scope, root domain.ElementRef, logger *slog.Logger) (any, error) {
	switch cfg.Window {
	case domain.WindowBroadcast, domain.WindowAllFrames:
		return e.runInAllFrames(ctx, r, cfg, args, ctxScope, root, logger)
	case domain.WindowOpener:
		return e.runRemote(ctx, r, r.opts.Opener, cfg, args, ctxScope, root)
	case domain.WindowTab:
		return e.runRemote(ctx, r, r.opts.Target, cfg, args, ctxScope, root)
	case domain.WindowTop:
		return e.runRemote(ctx, r, r.opts.Target.TopFrame(), cfg, args, ctxScope, root)
	case "", domain.WindowSelf:
		if def.RequiresDOM() && !e.execContext.CanAccessDOM() {
			logger.Debug("Forwarding page brick to the target frame", "execution_context", e.execContext)
			return e.runRemote(ctx, r, r.opts.Target, cfg, args, ctxScope, root)
		}
		return def.Brick.Run(ctx, args, e.brickOptions(r, cfg, ctxScope, root, logger))
	}
	return nil, &domain.ConfigurationError{Message: fmt.Sprintf("unsupported window target: %s", cfg.Window)}
}

func (e *Engine) renderArgs(ctx context.Context, r *run, cfg domain.BrickConfig, def domain.Definition, ctxScope *Scope, root domain.ElementRef) (map[string]any, error) {
	opts := RenderOptions{
		StringEngine:       r.flow.stringEngine(cfg),
		RunBrick:           e.brickExpressionRunner(r, cfg, root),
		PreserveReferences: def.RequiresDOM(),
	}
	vars := ctxScope.Values()
	args := make(map[string]any, len(cfg.Config))
	for _, key := range slices.Sorted(maps.Keys(cfg.Config)) {
		v, err := e.renderer.Render(ctx, cfg.Config[key], vars, opts)
		if err != nil {
			if domain.IsCancel(err) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to render arg '%s': %w", key, err)
		}
		args[key] = v
	}
	return args, nil
}

func (e *Engine) authorize(ctx context.Context, r *run, cfg domain.BrickConfig, def domain.Definition) error {
	if e.policy == nil {
		return nil
	}
	return e.policy.Authorize(ctx, domain.PolicyInput{
		BrickID:          def.ID,
		Kind:             def.Kind,
		Locality:         def.Locality,
		Window:           cfg.Window,
		ExecutionContext: e.execContext,
		ModID:            r.opts.Ref.ModID,
		ModComponentID:   r.opts.Ref.ModComponentID,
	})
}

func (e *Engine) brickOptions(r *run, cfg domain.BrickConfig, ctxScope *Scope, root domain.ElementRef, logger *slog.Logger) domain.BrickOptions {
	runPipeline := e.nestedRunner(r, ctxScope, root, r.opts.Headless)
	runRenderer := e.nestedRunner(r, ctxScope, root, true)
	return domain.BrickOptions{
		Context:     ctxScope.Values(),
		Root:        root,
		Logger:      logger,
		Ref:         r.opts.Ref,
		RunID:       r.id,
		InstanceID:  cfg.InstanceID,
		Branches:    slices.Clone(r.branches),
		Headless:    r.opts.Headless,
		State:       e.state,
		RunPipeline: runPipeline,
		RunRendererPipeline: func(ctx context.Context, pipeline any, branch domain.Branch, extra map[string]any) (*domain.RendererPayload, error) {
			_, err := runRenderer(ctx, pipeline, branch, extra)
			return rendererPayload(err)
		},
		Render: func(ctx context.Context, value any, extra map[string]any) (any, error) {
			return e.renderer.Render(ctx, value, ctxScope.Merge(extra).Values(), RenderOptions{
				RenderDeferred: true,
				RunBrick:       e.brickExpressionRunner(r, cfg, root),
				RunPipeline: func(ctx context.Context, pipeline domain.Pipeline, vars map[string]any) (any, error) {
					return runPipeline(ctx, pipeline, domain.Branch{Key: "render"}, vars)
				},
			})
		},
	}
}

// brickExpressionRunner invokes the brick named by a brick expression found in cfg.
func (e *Engine) brickExpressionRunner(r *run, cfg domain.BrickConfig, root domain.ElementRef) func(context.Context, domain.BrickCallSpec, map[string]any) (any, error) {
	return func(ctx context.Context, call domain.BrickCallSpec, vars map[string]any) (any, error) {
		step := domain.BrickConfig{
			ID:         call.ID,
			Config:     call.Config,
			InstanceID: cfg.InstanceID + "/" + string(call.ID),
		}
		out, err := e.invoke(ctx, r.child(domain.Branch{Key: "brick"}, r.opts.Headless), step, root, NewScope(vars))
		if err != nil {
			return nil, brickError(step, err)
		}
		return out, nil
	}
}

func selectRoot(cfg domain.BrickConfig, inherited domain.ElementRef) domain.ElementRef {
	switch cfg.RootMode {
	case domain.RootDocument:
		return domain.ElementRef{}.Descend(cfg.Root)
	case domain.RootElement:
		return inherited.Descend(cfg.Root)
	}
	return inherited
}

func (e *Engine) traceRecord(r *run, cfg domain.BrickConfig) domain.TraceRecord {
	return domain.TraceRecord{
		RunID:          r.id,
		ModComponentID: r.opts.Ref.ModComponentID,
		InstanceID:     cfg.InstanceID,
		BrickID:        cfg.ID,
		CallID:         uuid.NewString(),
		Branches:       slices.Clone(r.branches),
		Timestamp:      time.Now(),
	}
}

func (e *Engine) traceExit(ctx context.Context, record domain.TraceRecord, output any, err error) {
	if e.traces == nil {
		return
	}
	record.Output = output
	record.Error = messenger.SerializeError(err)
	e.traces.AddExit(ctx, record)
}
