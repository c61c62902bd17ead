package bricks

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/aretw0/brickrt/internal/runtime"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/schema"
)

// Identity returns its args unchanged.
func Identity() domain.Brick {
	return domain.NewBrick(domain.Metadata{
		ID:          IdentityID,
		Name:        "Identity",
		Description: "Returns its configuration as output",
		Kind:        domain.KindTransform,
	}, func(_ context.Context, args map[string]any, _ domain.BrickOptions) (any, error) {
		return maps.Clone(args), nil
	})
}

type forEachArgs struct {
	Elements   []any  `mapstructure:"elements"`
	Body       any    `mapstructure:"body"`
	ElementKey string `mapstructure:"elementKey"`
}

// ForEach runs body once per element, binding it as @element (or @elementKey).
// The output is the output of the last iteration.
func ForEach() domain.Brick {
	return domain.NewBrick(domain.Metadata{
		ID:          ForEachID,
		Name:        "For-Each Element",
		Description: "Loop over elements, running a sub-pipeline for each",
		Kind:        domain.KindEffect,
		Inputs: schema.Schema{
			"elements":   schema.Slice(schema.Any()),
			"body":       schema.Any(),
			"elementKey": schema.Optional(schema.String()),
		},
	}, func(ctx context.Context, args map[string]any, opts domain.BrickOptions) (any, error) {
		var in forEachArgs
		if err := decodeArgs(ForEachID, args, &in); err != nil {
			return nil, err
		}
		if in.ElementKey == "" {
			in.ElementKey = "element"
		}
		if opts.RunPipeline == nil {
			return nil, &domain.ConfigurationError{Message: "for-each requires a pipeline runner"}
		}

		var last any
		for i, element := range in.Elements {
			out, err := opts.RunPipeline(ctx, in.Body, domain.Branch{Key: "body", Counter: i}, map[string]any{
				runtime.OutputVar(in.ElementKey): element,
			})
			if err != nil {
				return nil, err
			}
			last = out
		}
		return last, nil
	})
}

type ifElseArgs struct {
	Condition any `mapstructure:"condition"`
	If        any `mapstructure:"if"`
	Else      any `mapstructure:"else"`
}

// IfElse runs the if or else sub-pipeline depending on condition.
// A missing branch yields nil.
func IfElse() domain.Brick {
	return domain.NewBrick(domain.Metadata{
		ID:          IfElseID,
		Name:        "If-Else",
		Description: "Conditionally run one of two sub-pipelines",
		Kind:        domain.KindEffect,
	}, func(ctx context.Context, args map[string]any, opts domain.BrickOptions) (any, error) {
		var in ifElseArgs
		if err := decodeArgs(IfElseID, args, &in); err != nil {
			return nil, err
		}

		key, body := "else", in.Else
		if runtime.IsTruthy(in.Condition) {
			key, body = "if", in.If
		}
		if body == nil {
			return nil, nil
		}
		if opts.RunPipeline == nil {
			return nil, &domain.ConfigurationError{Message: "if-else requires a pipeline runner"}
		}
		return opts.RunPipeline(ctx, body, domain.Branch{Key: key}, nil)
	})
}

type delayArgs struct {
	Millis int `mapstructure:"millis"`
}

// Delay waits for millis milliseconds. Cancellation interrupts the wait.
func Delay() domain.Brick {
	return domain.NewBrick(domain.Metadata{
		ID:          DelayID,
		Name:        "Delay",
		Description: "Wait before continuing the pipeline",
		Kind:        domain.KindEffect,
		Inputs:      schema.Schema{"millis": schema.Int()},
	}, func(ctx context.Context, args map[string]any, _ domain.BrickOptions) (any, error) {
		var in delayArgs
		if err := decodeArgs(DelayID, args, &in); err != nil {
			return nil, err
		}
		if in.Millis < 0 {
			return nil, &domain.BusinessError{Message: fmt.Sprintf("delay must not be negative: %d", in.Millis)}
		}

		timer := time.NewTimer(time.Duration(in.Millis) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, domain.AsCancel(ctx.Err())
		}
	})
}
