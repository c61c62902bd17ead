package cli

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/brickrt/internal/runtime"
	brickhttp "github.com/aretw0/brickrt/pkg/adapters/http"
	"github.com/aretw0/brickrt/pkg/adapters/memory"
	"github.com/aretw0/brickrt/pkg/adapters/process"
	redisstore "github.com/aretw0/brickrt/pkg/adapters/redis"
	"github.com/aretw0/brickrt/pkg/bricks"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/observability"
	"github.com/aretw0/brickrt/pkg/persistence/middleware"
	"github.com/aretw0/brickrt/pkg/policy"
	"github.com/aretw0/brickrt/pkg/ports"
	"github.com/aretw0/brickrt/pkg/registry"
	"github.com/aretw0/brickrt/pkg/sandbox"
	backend "github.com/redis/go-redis/v9"
)

// Sandbox modes.
const (
	SandboxWorker  = "worker"
	SandboxProcess = "process"
)

// Config holds the flags shared by every command that builds an engine.
type Config struct {
	Debug   bool
	LogJSON bool
	// BricksFile lists external process bricks. A missing file is ignored.
	BricksFile string
	// RedisURL selects the Redis page state store, e.g. redis://localhost:6379/0.
	RedisURL string
	// StateKey is a hex AES-256 key sealing page state values at rest.
	StateKey string
	// Redact masks state keys matching these patterns in change events.
	Redact []string
	// PolicyFiles are Rego modules added to the built-in policy.
	PolicyFiles []string
	Sandbox     string
	// OTLPEndpoint enables span export to an OTLP/gRPC collector.
	OTLPEndpoint string
	// Remote is the base URL of a messenger server. Page bricks are then
	// forwarded to it and the engine runs as a background context.
	Remote string
}

// Env is an engine plus everything wired around it.
type Env struct {
	Engine   *runtime.Engine
	Registry *registry.Registry
	Store    ports.PageStateStore
	Traces   *observability.TraceStore
	Metrics  *observability.Metrics
	Logger   *slog.Logger

	closers []func(context.Context) error
}

// NewEnv builds an engine with standard CLI conventions. Extra options are
// applied last.
func NewEnv(ctx context.Context, cfg Config, extra ...runtime.EngineOption) (*Env, error) {
	logger := NewLogger(cfg.Debug, cfg.LogJSON)
	env := &Env{
		Traces:  observability.NewTraceStore(),
		Metrics: observability.NewMetrics(),
		Logger:  logger,
	}

	reg, err := buildRegistry(cfg.BricksFile)
	if err != nil {
		return nil, err
	}
	env.Registry = reg

	store, err := env.buildStore(cfg)
	if err != nil {
		_ = env.Close(ctx)
		return nil, err
	}
	env.Store = store
	if cfg.Debug {
		unsubscribe := store.Subscribe(func(_ context.Context, e domain.StateChangeEvent) {
			logger.Debug("State changed", "namespace", e.Namespace, "mod_id", e.ModID, "changed", e.Changed)
		})
		env.closers = append(env.closers, func(context.Context) error { unsubscribe(); return nil })
	}

	authz, err := buildPolicy(ctx, cfg.PolicyFiles, logger)
	if err != nil {
		_ = env.Close(ctx)
		return nil, err
	}

	shutdown, err := observability.SetupProvider(ctx, observability.TelemetryConfig{
		ServiceName: "brickrt",
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    true,
	})
	if err != nil {
		_ = env.Close(ctx)
		return nil, err
	}
	env.closers = append(env.closers, shutdown)

	opts := []runtime.EngineOption{
		runtime.WithLogger(logger),
		runtime.WithStateStore(store),
		runtime.WithTraceStore(env.Traces),
		runtime.WithPolicy(authz),
		runtime.WithLifecycleHooks(env.Metrics.Hooks()),
		runtime.WithSandbox(env.buildSandbox(cfg, logger)),
	}
	if cfg.Debug {
		opts = append(opts, runtime.WithLifecycleHooks(createDebugHooks(logger)))
	}
	if cfg.Remote != "" {
		client := brickhttp.NewClient(cfg.Remote, brickhttp.WithClientLogger(logger))
		opts = append(opts,
			runtime.WithMessenger(client),
			runtime.WithExecutionContext(domain.ContextBackground),
		)
	}
	env.Engine = runtime.NewEngine(reg, append(opts, extra...)...)
	return env, nil
}

// Close releases the store, sandbox and tracer provider.
func (e *Env) Close(ctx context.Context) error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i](ctx))
	}
	e.closers = nil
	return errors.Join(errs...)
}

func buildRegistry(bricksFile string) (*registry.Registry, error) {
	reg, err := registry.NewRegistry(bricks.All()...)
	if err != nil {
		return nil, err
	}
	if bricksFile == "" {
		return reg, nil
	}
	configs, err := process.LoadConfig(bricksFile)
	if err != nil {
		return nil, err
	}
	external := process.Bricks(configs, process.WithBaseDir(filepath.Dir(bricksFile)))
	if err := reg.Register(external...); err != nil {
		return nil, fmt.Errorf("failed to register bricks from %s: %w", bricksFile, err)
	}
	return reg, nil
}

func (e *Env) buildStore(cfg Config) (ports.PageStateStore, error) {
	var store ports.PageStateStore = memory.NewStore()
	if cfg.RedisURL != "" {
		redisOpts, err := backend.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := backend.NewClient(redisOpts)
		rs := redisstore.NewFromClient(client, redisstore.WithLocker(redisstore.NewLocker(client, redisstore.DefaultPrefix)))
		e.closers = append(e.closers, func(context.Context) error { return rs.Close() })
		store = rs
	}

	var mws []middleware.Middleware
	if len(cfg.Redact) > 0 {
		mw, err := middleware.NewPIIMiddleware(cfg.Redact)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern: %w", err)
		}
		mws = append(mws, mw)
	}
	if cfg.StateKey != "" {
		key, err := hex.DecodeString(cfg.StateKey)
		if err != nil {
			return nil, fmt.Errorf("state key must be hex: %w", err)
		}
		encCfg := middleware.EncryptionConfig{ActiveKey: key}
		if err := encCfg.Validate(); err != nil {
			return nil, err
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(encCfg))
	}
	return middleware.Chain(store, mws...), nil
}

func buildPolicy(ctx context.Context, files []string, logger *slog.Logger) (*policy.Engine, error) {
	modules := map[string]string{"builtin.rego": policy.DenyPageBricksInSandbox}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy: %w", err)
		}
		modules[filepath.Base(path)] = string(data)
	}
	return policy.NewEngine(ctx, policy.Options{Modules: modules, Logger: logger})
}

func (e *Env) buildSandbox(cfg Config, logger *slog.Logger) ports.TemplateSandbox {
	if cfg.Sandbox == SandboxProcess {
		exe, err := os.Executable()
		if err == nil {
			sb := process.NewSandbox(exe, []string{"sandbox"}, process.WithSandboxLogger(logger))
			e.closers = append(e.closers, func(context.Context) error { return sb.Close() })
			return sb
		}
		logger.Warn("Falling back to in-process sandbox", "err", err)
	}
	w := sandbox.NewWorker(sandbox.WithLogger(logger))
	e.closers = append(e.closers, func(context.Context) error { w.Close(); return nil })
	return w
}
