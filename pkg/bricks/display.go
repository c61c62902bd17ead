package bricks

import (
	"context"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/schema"
)

// Markdown renders markdown on a display surface. Run outside headless mode,
// it returns the source so a caller can render it itself.
func Markdown() domain.Brick {
	return domain.NewBrick(domain.Metadata{
		ID:          MarkdownID,
		Name:        "Render Markdown",
		Description: "Show markdown in a panel",
		Kind:        domain.KindRenderer,
		Inputs:      schema.Schema{"markdown": schema.String()},
	}, func(_ context.Context, args map[string]any, _ domain.BrickOptions) (any, error) {
		return map[string]any{"markdown": args["markdown"]}, nil
	})
}

// Display shows an arbitrary body.
func Display() domain.Brick {
	return domain.NewBrick(domain.Metadata{
		ID:          DisplayID,
		Name:        "Display",
		Description: "Show a value in a panel",
		Kind:        domain.KindRenderer,
	}, func(_ context.Context, args map[string]any, _ domain.BrickOptions) (any, error) {
		return args["body"], nil
	})
}
