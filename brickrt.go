package brickrt

import (
	"context"
	"log/slog"

	"github.com/aretw0/brickrt/internal/compiler"
	"github.com/aretw0/brickrt/internal/runtime"
	"github.com/aretw0/brickrt/internal/validator"
	"github.com/aretw0/brickrt/pkg/adapters/memory"
	"github.com/aretw0/brickrt/pkg/bricks"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/observability"
	"github.com/aretw0/brickrt/pkg/ports"
	"github.com/aretw0/brickrt/pkg/registry"
	"github.com/aretw0/brickrt/pkg/sandbox"
	"go.opentelemetry.io/otel/trace"
)

// Version is the release of the runtime, set at build time with -ldflags.
var Version = "dev"

// Definition is a parsed definition file.
type Definition = compiler.Definition

// Runtime is the high-level entry point of the library.
// It wires a registry, page state, a template sandbox and trace records
// around the pipeline engine.
type Runtime struct {
	engine   *runtime.Engine
	registry *registry.Registry
	store    ports.PageStateStore
	traces   *observability.TraceStore
	sandbox  ports.TemplateSandbox
	worker   *sandbox.Worker

	extra          []domain.Brick
	skipBuiltins   bool
	messenger      ports.Messenger
	frames         ports.FrameLister
	policy         ports.BrickPolicy
	hooks          domain.LifecycleHooks
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	execContext    domain.ExecutionContext
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithBricks registers additional bricks next to the built-in ones.
func WithBricks(b ...domain.Brick) Option {
	return func(r *Runtime) {
		r.extra = append(r.extra, b...)
	}
}

// WithoutBuiltins leaves the built-in bricks out of the registry.
func WithoutBuiltins() Option {
	return func(r *Runtime) {
		r.skipBuiltins = true
	}
}

// WithStateStore sets the page state store. An in-memory store is the default.
func WithStateStore(store ports.PageStateStore) Option {
	return func(r *Runtime) {
		r.store = store
	}
}

// WithSandbox sets where nunjucks and handlebars templates are rendered.
// An in-process worker pool is the default.
func WithSandbox(s ports.TemplateSandbox) Option {
	return func(r *Runtime) {
		r.sandbox = s
	}
}

// WithMessenger sets the transport to other frames.
func WithMessenger(m ports.Messenger) Option {
	return func(r *Runtime) {
		r.messenger = m
	}
}

// WithFrameLister sets how frames are enumerated for broadcasts.
func WithFrameLister(f ports.FrameLister) Option {
	return func(r *Runtime) {
		r.frames = f
	}
}

// WithPolicy gates every brick call.
func WithPolicy(p ports.BrickPolicy) Option {
	return func(r *Runtime) {
		r.policy = p
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runtime) {
		r.hooks = r.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithTracerProvider sets where spans are sent.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runtime) {
		r.tracerProvider = tp
	}
}

// WithExecutionContext declares where the runtime runs. The default is a content script.
func WithExecutionContext(c domain.ExecutionContext) Option {
	return func(r *Runtime) {
		r.execContext = c
	}
}

// New creates a Runtime.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{execContext: domain.ContextContentScript}
	for _, opt := range opts {
		opt(r)
	}

	var all []domain.Brick
	if !r.skipBuiltins {
		all = bricks.All()
	}
	reg, err := registry.NewRegistry(append(all, r.extra...)...)
	if err != nil {
		return nil, err
	}
	r.registry = reg
	r.traces = observability.NewTraceStore()
	if r.store == nil {
		r.store = memory.NewStore()
	}
	if r.sandbox == nil {
		r.worker = sandbox.NewWorker(sandbox.WithLogger(r.logger))
		r.sandbox = r.worker
	}

	engineOpts := []runtime.EngineOption{
		runtime.WithSandbox(r.sandbox),
		runtime.WithStateStore(r.store),
		runtime.WithTraceStore(r.traces),
		runtime.WithLifecycleHooks(r.hooks),
		runtime.WithLogger(r.logger),
		runtime.WithExecutionContext(r.execContext),
	}
	if r.messenger != nil {
		engineOpts = append(engineOpts, runtime.WithMessenger(r.messenger))
	}
	if r.frames != nil {
		engineOpts = append(engineOpts, runtime.WithFrameLister(r.frames))
	}
	if r.policy != nil {
		engineOpts = append(engineOpts, runtime.WithPolicy(r.policy))
	}
	if r.tracerProvider != nil {
		engineOpts = append(engineOpts, runtime.WithTracerProvider(r.tracerProvider))
	}
	r.engine = runtime.NewEngine(reg, engineOpts...)
	return r, nil
}

// Close stops the default sandbox. Injected dependencies are left alone.
func (r *Runtime) Close() {
	if r.worker != nil {
		r.worker.Close()
	}
}

// Registry returns the brick registry.
func (r *Runtime) Registry() *registry.Registry { return r.registry }

// Store returns the page state store.
func (r *Runtime) Store() ports.PageStateStore { return r.store }

// Trace returns the trace records of a run.
func (r *Runtime) Trace(runID string) []domain.TraceRecord {
	return r.traces.Records(runID)
}

// RegisterHandlers answers RUN_BRICK calls from other frames on endpoint.
func (r *Runtime) RegisterHandlers(endpoint runtime.HandlerRegistrar) {
	runtime.RegisterHandlers(endpoint, r.engine)
}

// RunOption configures a single run.
type RunOption func(*runConfig)

type runConfig struct {
	opts         runtime.RunOptions
	options      map[string]any
	root         domain.ElementRef
	integrations map[string]domain.IntegrationBinding
}

// WithRunID sets the run id used in trace records.
func WithRunID(id string) RunOption {
	return func(c *runConfig) { c.opts.RunID = id }
}

// WithAPIVersion selects the data flow. v3 is the default.
func WithAPIVersion(v domain.APIVersion) RunOption {
	return func(c *runConfig) { c.opts.APIVersion = v }
}

// WithRef identifies the mod component the run belongs to.
func WithRef(ref domain.ModComponentRef) RunOption {
	return func(c *runConfig) { c.opts.Ref = ref }
}

// WithOptions binds mod options as @options.
func WithOptions(options map[string]any) RunOption {
	return func(c *runConfig) { c.options = options }
}

// WithTarget sets the frame page bricks are sent to.
func WithTarget(t domain.Target) RunOption {
	return func(c *runConfig) { c.opts.Target = t }
}

// WithRoot sets the element bricks receive as their root.
func WithRoot(root domain.ElementRef) RunOption {
	return func(c *runConfig) { c.root = root }
}

// WithIntegrations binds configured integrations under "@" + key. A var
// expression resolves to the binding's Handle, templates see its Fields.
func WithIntegrations(bindings map[string]domain.IntegrationBinding) RunOption {
	return func(c *runConfig) { c.integrations = bindings }
}

// WithInputValidation checks rendered args against brick input schemas.
func WithInputValidation() RunOption {
	return func(c *runConfig) { c.opts.ValidateInput = true }
}

func buildRun(input any, opts []RunOption) (runtime.InitialValues, runtime.RunOptions) {
	var c runConfig
	for _, opt := range opts {
		opt(&c)
	}
	return runtime.InitialValues{
		Input:        input,
		Options:      c.options,
		Integrations: c.integrations,
		Root:         c.root,
	}, c.opts
}

// Run reduces pipeline and returns the output of its last step.
func (r *Runtime) Run(ctx context.Context, pipeline domain.Pipeline, input any, opts ...RunOption) (any, error) {
	initial, runOpts := buildRun(input, opts)
	return r.engine.ReducePipeline(ctx, pipeline, initial, runOpts)
}

// Render runs pipeline headless and returns what its renderer would display.
func (r *Runtime) Render(ctx context.Context, pipeline domain.Pipeline, input any, opts ...RunOption) (*domain.RendererPayload, error) {
	initial, runOpts := buildRun(input, opts)
	return r.engine.RunRendererPipeline(ctx, pipeline, initial, runOpts)
}

// Load parses and validates a YAML or JSON definition.
func (r *Runtime) Load(ctx context.Context, data []byte) (*Definition, error) {
	def, err := compiler.NewParser().Parse(data)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateDefinition(ctx, def, r.registry); err != nil {
		return nil, err
	}
	return def, nil
}

// RunDefinition runs a loaded definition. input defaults to the definition's
// input; the definition's version, component and options apply unless
// overridden by opts.
func (r *Runtime) RunDefinition(ctx context.Context, def *Definition, input any, opts ...RunOption) (any, error) {
	if input == nil && def.Input != nil {
		input = def.Input
	}
	if len(def.Variables) > 0 {
		r.store.DeclareVariables(def.ModComponent.ModID, def.Variables)
	}
	base := []RunOption{
		WithAPIVersion(def.APIVersion),
		WithRef(def.ModComponent),
		WithOptions(def.Options),
	}
	return r.Run(ctx, def.Pipeline, input, append(base, opts...)...)
}
