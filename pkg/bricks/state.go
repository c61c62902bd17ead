package bricks

import (
	"context"

	"github.com/aretw0/brickrt/pkg/domain"
)

type getStateArgs struct {
	Namespace domain.Namespace `mapstructure:"namespace"`
}

// GetState reads a page state namespace (mod by default).
func GetState() domain.Brick {
	return domain.NewBrick(domain.Metadata{
		ID:          GetStateID,
		Name:        "Get Page State",
		Description: "Read shared page state",
		Kind:        domain.KindReader,
	}, func(ctx context.Context, args map[string]any, opts domain.BrickOptions) (any, error) {
		var in getStateArgs
		if err := decodeArgs(GetStateID, args, &in); err != nil {
			return nil, err
		}
		state, err := requireState(GetStateID, opts)
		if err != nil {
			return nil, err
		}
		return state.GetState(ctx, domain.StateQuery{Namespace: namespaceOrMod(in.Namespace), Ref: opts.Ref})
	})
}

type setStateArgs struct {
	Namespace     domain.Namespace     `mapstructure:"namespace"`
	Data          map[string]any       `mapstructure:"data"`
	MergeStrategy domain.MergeStrategy `mapstructure:"mergeStrategy"`
}

// SetState merges data into a page state namespace and returns the result.
// The default strategy is shallow.
func SetState() domain.Brick {
	return domain.NewBrick(domain.Metadata{
		ID:          SetStateID,
		Name:        "Set Page State",
		Description: "Update shared page state",
		Kind:        domain.KindEffect,
	}, func(ctx context.Context, args map[string]any, opts domain.BrickOptions) (any, error) {
		var in setStateArgs
		if err := decodeArgs(SetStateID, args, &in); err != nil {
			return nil, err
		}
		if in.MergeStrategy == "" {
			in.MergeStrategy = domain.MergeShallow
		}
		state, err := requireState(SetStateID, opts)
		if err != nil {
			return nil, err
		}
		return state.SetState(ctx, domain.StateUpdate{
			Namespace:     namespaceOrMod(in.Namespace),
			Data:          in.Data,
			MergeStrategy: in.MergeStrategy,
			Ref:           opts.Ref,
		})
	})
}
