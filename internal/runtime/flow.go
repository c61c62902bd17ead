package runtime

import "github.com/aretw0/brickrt/pkg/domain"

// IntermediateState is what a step sees when it is reached.
type IntermediateState struct {
	Scope          *Scope
	Index          int
	IsLastBrick    bool
	Root           domain.ElementRef
	PreviousOutput any
}

// BrickResult is the outcome of one step.
type BrickResult struct {
	// Output becomes the next step's PreviousOutput.
	Output any
	Scope  *Scope
}

// dataFlow is how outputs travel between steps. It is picked once per run.
type dataFlow interface {
	// contextScope is the scope a step's config renders against.
	contextScope(state IntermediateState) *Scope
	// stringEngine is the dialect plain strings are rendered with, if any.
	stringEngine(cfg domain.BrickConfig) domain.ExpressionType
	// bind folds a step's output into the state the next step sees.
	bind(cfg domain.BrickConfig, state IntermediateState, output any) BrickResult
}

func flowFor(v domain.APIVersion) dataFlow {
	if effectiveVersion(v).ExplicitDataFlow() {
		return explicitFlow{}
	}
	return implicitFlow{}
}

// explicitFlow only exposes outputs through outputKey bindings.
type explicitFlow struct{}

func (explicitFlow) contextScope(state IntermediateState) *Scope { return state.Scope }

func (explicitFlow) stringEngine(domain.BrickConfig) domain.ExpressionType { return "" }

func (explicitFlow) bind(cfg domain.BrickConfig, state IntermediateState, output any) BrickResult {
	if cfg.OutputKey == "" {
		return BrickResult{Output: output, Scope: state.Scope}
	}
	return BrickResult{Output: output, Scope: state.Scope.With(OutputVar(cfg.OutputKey), output)}
}

// implicitFlow overlays the previous output onto the context and renders plain strings.
type implicitFlow struct{}

func (implicitFlow) contextScope(state IntermediateState) *Scope {
	if previous, ok := state.PreviousOutput.(map[string]any); ok {
		return state.Scope.Merge(previous)
	}
	return state.Scope
}

func (implicitFlow) stringEngine(cfg domain.BrickConfig) domain.ExpressionType { return cfg.Engine() }

func (implicitFlow) bind(cfg domain.BrickConfig, state IntermediateState, output any) BrickResult {
	if cfg.OutputKey == "" {
		return BrickResult{Output: output, Scope: state.Scope}
	}
	next := state.Scope.With(OutputVar(cfg.OutputKey), output)
	if state.IsLastBrick {
		return BrickResult{Output: output, Scope: next}
	}
	return BrickResult{Output: state.PreviousOutput, Scope: next}
}
