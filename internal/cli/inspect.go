package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/aretw0/brickrt/internal/compiler"
	"github.com/aretw0/brickrt/internal/presentation/graph"
	"github.com/aretw0/brickrt/pkg/registry"
)

// BrickInfo is one row of the bricks listing.
type BrickInfo struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Kind     string   `json:"kind"`
	Locality string   `json:"locality"`
	Inputs   []string `json:"inputs,omitempty"`
}

// ListBricks prints the registered bricks matching pattern ("" for all).
func ListBricks(w io.Writer, reg *registry.Registry, pattern string, jsonMode bool) error {
	defs := reg.List()
	if pattern != "" {
		var err error
		if defs, err = reg.Filter(pattern); err != nil {
			return err
		}
	}

	rows := make([]BrickInfo, len(defs))
	for i, def := range defs {
		rows[i] = BrickInfo{
			ID:       string(def.ID),
			Name:     def.Brick.Metadata().Name,
			Kind:     string(def.Kind),
			Locality: string(def.Locality),
			Inputs:   def.Inputs.Keys(),
		}
	}

	if jsonMode {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tLOCALITY\tINPUTS")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.ID, row.Kind, row.Locality, strings.Join(row.Inputs, ","))
	}
	return tw.Flush()
}

// Graph prints the Mermaid diagram of a definition's pipeline.
func Graph(ctx context.Context, w io.Writer, path string, reg *registry.Registry) error {
	def, err := compiler.NewParser().ParseFile(path)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, graph.GenerateMermaid(ctx, def.Pipeline, graph.Options{Registry: reg}))
	return err
}

// Validate checks a definition file against reg.
func Validate(ctx context.Context, path string, reg *registry.Registry) error {
	_, err := LoadDefinition(ctx, path, reg)
	return err
}
