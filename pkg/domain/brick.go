package domain

import (
	"context"
	"log/slog"

	"github.com/aretw0/brickrt/pkg/schema"
)

// RegistryID identifies a brick in the registry (e.g. "@brickrt/identity").
type RegistryID string

// BrickKind is the closed set of brick capabilities.
type BrickKind string

const (
	KindReader    BrickKind = "reader"
	KindEffect    BrickKind = "effect"
	KindTransform BrickKind = "transform"
	KindRenderer  BrickKind = "renderer"
)

// IsValid reports whether k is one of the known kinds.
func (k BrickKind) IsValid() bool {
	switch k {
	case KindReader, KindEffect, KindTransform, KindRenderer:
		return true
	}
	return false
}

// Locality declares where a brick is able to run.
type Locality string

const (
	// LocalityAny bricks run in whatever context invokes them.
	LocalityAny Locality = "any"
	// LocalityPage bricks need the target page's DOM and run in its content script.
	LocalityPage Locality = "page"
)

// ExecutionContext names the context an engine is running in.
type ExecutionContext string

const (
	ContextContentScript ExecutionContext = "contentScript"
	ContextBackground    ExecutionContext = "background"
	ContextPageEditor    ExecutionContext = "pageEditor"
	ContextSidebar       ExecutionContext = "sidebar"
	ContextSandbox       ExecutionContext = "sandbox"
)

// CanAccessDOM reports whether bricks with LocalityPage can run locally.
func (c ExecutionContext) CanAccessDOM() bool {
	return c == ContextContentScript
}

// APIVersion selects the data-flow semantics of a pipeline.
type APIVersion string

const (
	APIVersionV1 APIVersion = "v1"
	APIVersionV2 APIVersion = "v2"
	APIVersionV3 APIVersion = "v3"
)

// ExplicitDataFlow reports whether outputs are only visible through outputKey bindings.
func (v APIVersion) ExplicitDataFlow() bool {
	return v == APIVersionV3
}

// IsValid reports whether v is a supported version. Empty is treated as v3.
func (v APIVersion) IsValid() bool {
	switch v {
	case "", APIVersionV1, APIVersionV2, APIVersionV3:
		return true
	}
	return false
}

// WindowTarget selects where a step runs relative to the caller.
type WindowTarget string

const (
	WindowSelf      WindowTarget = "self"
	WindowOpener    WindowTarget = "opener"
	WindowTab       WindowTarget = "target"
	WindowTop       WindowTarget = "top"
	WindowBroadcast WindowTarget = "broadcast"
	WindowAllFrames WindowTarget = "all_frames"
)

// IsValid reports whether w is a supported window target. Empty means self.
func (w WindowTarget) IsValid() bool {
	switch w {
	case "", WindowSelf, WindowOpener, WindowTab, WindowTop, WindowBroadcast, WindowAllFrames:
		return true
	}
	return false
}

// FanOut reports whether the step is broadcast to every frame of a tab.
func (w WindowTarget) FanOut() bool {
	return w == WindowBroadcast || w == WindowAllFrames
}

// RootMode controls which element a step receives as its root.
type RootMode string

const (
	RootInherit  RootMode = "inherit"
	RootDocument RootMode = "document"
	RootElement  RootMode = "element"
)

// BrickConfig is one step of a pipeline.
type BrickConfig struct {
	ID             RegistryID     `json:"id" yaml:"id" mapstructure:"id"`
	Label          string         `json:"label,omitempty" yaml:"label,omitempty" mapstructure:"label"`
	Config         map[string]any `json:"config,omitempty" yaml:"config,omitempty" mapstructure:"config"`
	OutputKey      string         `json:"outputKey,omitempty" yaml:"outputKey,omitempty" mapstructure:"outputKey"`
	If             any            `json:"if,omitempty" yaml:"if,omitempty" mapstructure:"if"`
	Window         WindowTarget   `json:"window,omitempty" yaml:"window,omitempty" mapstructure:"window"`
	TemplateEngine ExpressionType `json:"templateEngine,omitempty" yaml:"templateEngine,omitempty" mapstructure:"templateEngine"`
	RootMode       RootMode       `json:"rootMode,omitempty" yaml:"rootMode,omitempty" mapstructure:"rootMode"`
	Root           string         `json:"root,omitempty" yaml:"root,omitempty" mapstructure:"root"`
	InstanceID     string         `json:"instanceId,omitempty" yaml:"instanceId,omitempty" mapstructure:"instanceId"`
}

// Engine returns the template dialect for plain strings, defaulting to mustache.
func (c BrickConfig) Engine() ExpressionType {
	if c.TemplateEngine == "" {
		return ExprMustache
	}
	return c.TemplateEngine
}

// Pipeline is an ordered sequence of steps. Execution order is array order.
type Pipeline []BrickConfig

// Metadata describes a brick to the registry.
type Metadata struct {
	ID          RegistryID
	Name        string
	Description string
	Kind        BrickKind
	Locality    Locality
	Inputs      schema.Schema
}

// Brick is the pluggable unit of execution.
type Brick interface {
	Metadata() Metadata
	Run(ctx context.Context, args map[string]any, opts BrickOptions) (any, error)
}

// RunFunc is the body of a function-backed brick.
type RunFunc func(ctx context.Context, args map[string]any, opts BrickOptions) (any, error)

type funcBrick struct {
	meta Metadata
	run  RunFunc
}

func (b *funcBrick) Metadata() Metadata { return b.meta }

func (b *funcBrick) Run(ctx context.Context, args map[string]any, opts BrickOptions) (any, error) {
	return b.run(ctx, args, opts)
}

// NewBrick adapts a function into a Brick.
func NewBrick(meta Metadata, run RunFunc) Brick {
	if meta.Kind == "" {
		meta.Kind = KindTransform
	}
	if meta.Locality == "" {
		meta.Locality = LocalityAny
	}
	return &funcBrick{meta: meta, run: run}
}

// Definition is a registered brick, with its kind resolved once at registration.
type Definition struct {
	Brick    Brick
	ID       RegistryID
	Kind     BrickKind
	Locality Locality
	Inputs   schema.Schema
}

// IsRenderer reports whether the brick hands its output to a display surface.
func (d Definition) IsRenderer() bool { return d.Kind == KindRenderer }

// RequiresDOM reports whether the brick must run next to the page DOM.
func (d Definition) RequiresDOM() bool { return d.Locality == LocalityPage }

// PipelineRunner runs a nested pipeline expression on behalf of a brick.
// The branch is appended to the caller's branch path and extra is merged into
// the caller's context.
type PipelineRunner func(ctx context.Context, pipeline any, branch Branch, extra map[string]any) (any, error)

// RendererRunner runs a nested pipeline that is expected to end in a renderer.
type RendererRunner func(ctx context.Context, pipeline any, branch Branch, extra map[string]any) (*RendererPayload, error)

// StateAccessor reads and writes page state.
type StateAccessor interface {
	GetState(ctx context.Context, q StateQuery) (map[string]any, error)
	SetState(ctx context.Context, u StateUpdate) (map[string]any, error)
}

// BrickOptions is everything a brick receives besides its rendered args.
type BrickOptions struct {
	Context             map[string]any
	Root                ElementRef
	Logger              *slog.Logger
	Ref                 ModComponentRef
	RunID               string
	InstanceID          string
	Branches            []Branch
	Headless            bool
	State               StateAccessor
	RunPipeline         PipelineRunner
	RunRendererPipeline RendererRunner
	// Render renders deferred values against the brick's context plus extra.
	Render func(ctx context.Context, value any, extra map[string]any) (any, error)
}

// RendererPayload is what a renderer hands to a display surface.
type RendererPayload struct {
	BrickID    RegistryID     `json:"brickId"`
	InstanceID string         `json:"instanceId,omitempty"`
	RunID      string         `json:"runId,omitempty"`
	Args       map[string]any `json:"args"`
	Context    map[string]any `json:"context,omitempty"`
}
