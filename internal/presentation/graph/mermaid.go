package graph

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/brickrt/internal/compiler"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/ports"
)

// GraphOverlay contains run data to visualize on the graph, keyed by step instance id.
type GraphOverlay struct {
	Executed map[string]bool
	Skipped  map[string]bool
	Failed   map[string]bool
}

// OverlayFromTrace builds an overlay from the trace records of one run.
// A step that failed in any branch is marked failed.
func OverlayFromTrace(records []domain.TraceRecord) *GraphOverlay {
	o := &GraphOverlay{Executed: map[string]bool{}, Skipped: map[string]bool{}, Failed: map[string]bool{}}
	for _, r := range records {
		switch {
		case r.Error != nil || r.RenderError != "":
			o.Failed[r.InstanceID] = true
		case r.Skipped:
			o.Skipped[r.InstanceID] = true
		case !r.Pending:
			o.Executed[r.InstanceID] = true
		}
	}
	return o
}

// Options tune GenerateMermaid.
type Options struct {
	// Registry resolves brick kinds for node shapes. Unknown bricks render as rectangles.
	Registry ports.BrickRegistry
	Overlay  *GraphOverlay
}

// GenerateMermaid produces a Mermaid flowchart of a pipeline.
// It applies semantic styling by brick kind:
// - Reader: ([Stadium])
// - Effect: [[Subroutine]]
// - Renderer: [/Parallelogram/]
// - Transform or unknown: [Rectangle]
// Nested pipelines found in step configs become subgraphs.
func GenerateMermaid(ctx context.Context, pipeline domain.Pipeline, opts Options) string {
	g := &generator{ctx: ctx, opts: opts, ids: map[string]string{}}
	g.sb.WriteString("graph TD\n")
	g.sb.WriteString("    start((\"start\"))\n")
	first := g.pipeline(pipeline, "s", 1)
	if first != "" {
		fmt.Fprintf(&g.sb, "    start --> %s\n", first)
	}
	g.overlay()
	return g.sb.String()
}

type generator struct {
	ctx  context.Context
	opts Options
	sb   strings.Builder
	// ids maps instance ids to mermaid node ids for the overlay.
	ids map[string]string
}

// pipeline writes the steps of p and returns the id of its first node.
func (g *generator) pipeline(p domain.Pipeline, prefix string, depth int) string {
	indent := strings.Repeat("    ", depth)
	var first, prev string
	for i, step := range p {
		id := fmt.Sprintf("%s%d", prefix, i)
		if step.InstanceID != "" {
			g.ids[step.InstanceID] = id
		}
		opener, closer := g.shape(step.ID)
		fmt.Fprintf(&g.sb, "%s%s%s\"%s\"%s\n", indent, id, opener, label(step), closer)

		if prev != "" {
			if step.If != nil {
				fmt.Fprintf(&g.sb, "%s%s -- \"if\" --> %s\n", indent, prev, id)
			} else {
				fmt.Fprintf(&g.sb, "%s%s --> %s\n", indent, prev, id)
			}
		}
		if first == "" {
			first = id
		}
		prev = id

		for _, key := range sortedKeys(step.Config) {
			nested, ok := nestedPipeline(step.Config[key])
			if !ok {
				continue
			}
			sub := fmt.Sprintf("%s_%s", id, sanitizeMermaidID(key))
			fmt.Fprintf(&g.sb, "%ssubgraph %s[\"%s\"]\n", indent, sub, key)
			entry := g.pipeline(nested, sub+"_", depth+1)
			fmt.Fprintf(&g.sb, "%send\n", indent)
			if entry != "" {
				fmt.Fprintf(&g.sb, "%s%s -.-> %s\n", indent, id, entry)
			}
		}
	}
	return first
}

func (g *generator) shape(id domain.RegistryID) (string, string) {
	if g.opts.Registry == nil {
		return "[", "]"
	}
	def, err := g.opts.Registry.Lookup(g.ctx, id)
	if err != nil {
		return "[", "]"
	}
	switch def.Kind {
	case domain.KindReader:
		return "([", "])"
	case domain.KindEffect:
		return "[[", "]]"
	case domain.KindRenderer:
		return "[/", "/]"
	}
	return "[", "]"
}

func (g *generator) overlay() {
	o := g.opts.Overlay
	if o == nil {
		return
	}
	g.sb.WriteString("\n    %% Overlay Styles\n")
	// Force black text (color:#000) for contrast regardless of theme.
	g.sb.WriteString("    classDef executed fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	g.sb.WriteString("    classDef skipped fill:#eeeeee,stroke:#9e9e9e,stroke-dasharray:4,color:#000;\n")
	g.sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#c62828,stroke-width:3px,color:#000;\n")

	for _, class := range []struct {
		name string
		set  map[string]bool
	}{{"executed", o.Executed}, {"skipped", o.Skipped}, {"failed", o.Failed}} {
		var nodes []string
		for instanceID := range class.set {
			if id, ok := g.ids[instanceID]; ok {
				nodes = append(nodes, id)
			}
		}
		slices.Sort(nodes)
		for _, id := range nodes {
			fmt.Fprintf(&g.sb, "    class %s %s;\n", id, class.name)
		}
	}
}

func label(step domain.BrickConfig) string {
	text := string(step.ID)
	if step.Label != "" {
		text = step.Label
	}
	text = strings.ReplaceAll(text, "\"", "'")
	if step.OutputKey != "" {
		text += " <br/> @" + strings.TrimPrefix(step.OutputKey, "@")
	}
	if step.Window != "" && step.Window != domain.WindowSelf {
		text += " <br/> window: " + string(step.Window)
	}
	return text
}

func nestedPipeline(v any) (domain.Pipeline, bool) {
	expr, ok := domain.AsExpression(v)
	if !ok {
		return nil, false
	}
	if expr.Type == domain.ExprDefer {
		return nestedPipeline(expr.Value)
	}
	if expr.Type != domain.ExprPipeline {
		return nil, false
	}
	p, err := compiler.DecodePipeline(expr)
	if err != nil {
		return nil, false
	}
	return p, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "@", "")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
