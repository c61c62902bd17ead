// Package runtime reduces brick pipelines: it renders each step's config,
// dispatches the brick locally or to another frame, and threads outputs
// through the run's data flow.
package runtime

import (
	"log/slog"
	"slices"

	"github.com/aretw0/brickrt/internal/logging"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/ports"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "brickrt.pipeline"

// Engine runs pipelines against a brick registry.
// It holds no per-run state and is safe for concurrent runs.
type Engine struct {
	registry    ports.BrickRegistry
	renderer    *Renderer
	sandbox     ports.TemplateSandbox
	messenger   ports.Messenger
	frames      ports.FrameLister
	state       domain.StateAccessor
	traces      ports.TraceStore
	policy      ports.BrickPolicy
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	tracer      trace.Tracer
	execContext domain.ExecutionContext
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSandbox sets where nunjucks and handlebars templates are rendered.
func WithSandbox(sandbox ports.TemplateSandbox) EngineOption {
	return func(e *Engine) {
		e.sandbox = sandbox
	}
}

// WithMessenger sets the transport for steps that run in another frame.
// A messenger that can also list frames is used for broadcasts.
func WithMessenger(m ports.Messenger) EngineOption {
	return func(e *Engine) {
		e.messenger = m
		if lister, ok := m.(ports.FrameLister); ok && e.frames == nil {
			e.frames = lister
		}
	}
}

// WithFrameLister sets how the frames of a tab are enumerated.
func WithFrameLister(frames ports.FrameLister) EngineOption {
	return func(e *Engine) {
		e.frames = frames
	}
}

// WithStateStore sets the page state bricks and @mod read from.
func WithStateStore(state domain.StateAccessor) EngineOption {
	return func(e *Engine) {
		e.state = state
	}
}

// WithTraceStore records a trace entry for every brick call.
func WithTraceStore(traces ports.TraceStore) EngineOption {
	return func(e *Engine) {
		e.traces = traces
	}
}

// WithPolicy gates every brick call.
func WithPolicy(policy ports.BrickPolicy) EngineOption {
	return func(e *Engine) {
		e.policy = policy
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls are chained.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTracerProvider sets where spans are sent. The global provider is the default.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithExecutionContext declares where the engine runs. Page bricks are sent
// to the target frame when the context cannot reach the DOM.
func WithExecutionContext(c domain.ExecutionContext) EngineOption {
	return func(e *Engine) {
		e.execContext = c
	}
}

// NewEngine creates an engine over registry.
func NewEngine(registry ports.BrickRegistry, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:    registry,
		execContext: domain.ContextContentScript,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger)
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	e.renderer = NewRenderer(e.sandbox)
	return e
}

// Registry returns the registry the engine resolves bricks from.
func (e *Engine) Registry() ports.BrickRegistry {
	return e.registry
}

// RunOptions configures a single run.
type RunOptions struct {
	// APIVersion selects the data flow. Empty means v3.
	APIVersion domain.APIVersion
	Ref        domain.ModComponentRef
	// RunID correlates traces. A random id is generated when empty.
	RunID    string
	Branches []domain.Branch
	// Headless makes renderer bricks hand their args back instead of running.
	Headless bool
	// Target is the frame page bricks run in when they cannot run locally.
	Target domain.Target
	// Opener is the frame that opened the current one.
	Opener domain.Target
	// Logger overrides the engine logger for this run.
	Logger *slog.Logger
	// LogValues stores template contexts and rendered args in trace records.
	LogValues bool
	// ValidateInput checks rendered args against each brick's input schema.
	ValidateInput bool
}

// run is the state shared by a top-level run and its nested runs.
type run struct {
	id       string
	opts     RunOptions
	flow     dataFlow
	logger   *slog.Logger
	branches []domain.Branch
	nested   bool
	// step is the index of the step being run at this nesting level.
	step int
}

func (e *Engine) newRun(opts RunOptions) *run {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	opts.APIVersion = effectiveVersion(opts.APIVersion)
	logger := e.logger
	if opts.Logger != nil {
		logger = opts.Logger
	}
	return &run{
		id:       opts.RunID,
		opts:     opts,
		flow:     flowFor(opts.APIVersion),
		logger:   logging.ForRun(logger, opts.RunID, opts.Ref),
		branches: slices.Clone(opts.Branches),
	}
}

// child derives the run of a nested pipeline.
func (r *run) child(branch domain.Branch, headless bool) *run {
	c := *r
	c.branches = append(slices.Clone(r.branches), branch)
	c.nested = true
	c.opts.Headless = headless
	return &c
}
