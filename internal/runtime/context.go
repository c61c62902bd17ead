package runtime

import (
	"context"
	"fmt"
	"maps"

	"github.com/aretw0/brickrt/pkg/domain"
)

// Well-known scope keys.
const (
	KeyInput   = "@input"
	KeyOptions = "@options"
	KeyMod     = "@mod"
)

// InitialValues seeds the scope of a run.
type InitialValues struct {
	// Input is the starter brick's output, bound as @input.
	Input any
	// Options are the mod options, bound as @options.
	Options map[string]any
	// Integrations are keyed by output key; each is bound under its "@" key.
	Integrations map[string]domain.IntegrationBinding
	// Root is handed to bricks through BrickOptions.Root.
	Root domain.ElementRef
}

// Scope builds the initial scope of a run.
func (v InitialValues) Scope() *Scope {
	vars := make(map[string]any, 2+len(v.Integrations))
	vars[KeyInput] = v.Input
	options := v.Options
	if options == nil {
		options = map[string]any{}
	}
	vars[KeyOptions] = options
	for key, binding := range v.Integrations {
		vars[OutputVar(key)] = binding
	}
	return &Scope{vars: vars}
}

// ExtendOptions configures ExtendModVariableContext.
type ExtendOptions struct {
	Ref        domain.ModComponentRef
	APIVersion domain.APIVersion
	// Update re-reads the mod variables even if the scope already has them.
	Update bool
	// State supplies mod variables. Without it @mod is bound to an empty map.
	State domain.StateAccessor
}

// ExtendModVariableContext binds the mod's variables under @mod.
//
// It returns base itself for pipelines with implicit data flow, and when
// base is already extended and no update is requested.
func ExtendModVariableContext(ctx context.Context, base *Scope, opts ExtendOptions) (*Scope, error) {
	if !effectiveVersion(opts.APIVersion).ExplicitDataFlow() {
		return base, nil
	}
	if base.ModExtended() && !opts.Update {
		return base, nil
	}

	vars := map[string]any{}
	if opts.State != nil && opts.Ref.ModID != "" {
		state, err := opts.State.GetState(ctx, domain.StateQuery{Namespace: domain.NamespaceMod, Ref: opts.Ref})
		if err != nil {
			return nil, fmt.Errorf("failed to read mod variables: %w", err)
		}
		vars = maps.Clone(state)
		if vars == nil {
			vars = map[string]any{}
		}
	}

	next := base.With(KeyMod, vars)
	next.modExtended = true
	return next, nil
}

func effectiveVersion(v domain.APIVersion) domain.APIVersion {
	if v == "" {
		return domain.APIVersionV3
	}
	return v
}
