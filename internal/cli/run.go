package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/brickrt/internal/compiler"
	"github.com/aretw0/brickrt/internal/presentation/graph"
	"github.com/aretw0/brickrt/internal/presentation/tui"
	"github.com/aretw0/brickrt/internal/runtime"
	"github.com/aretw0/brickrt/internal/validator"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/messenger"
	"github.com/aretw0/brickrt/pkg/ports"
	"github.com/aretw0/brickrt/pkg/schema"
	"github.com/google/uuid"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	Config
	Path string
	// Input is a JSON document bound as @input. The definition's input is used when empty.
	Input string
	// Options is a JSON object bound as @options.
	Options string
	RunID   string
	// Headless hands renderer args back for terminal display instead of
	// running the renderer brick.
	Headless bool
	JSON     bool
	// Graph prints the pipeline with the steps that ran highlighted.
	Graph bool
	Watch bool
}

// RunResult is the outcome of a run, as printed in JSON mode.
type RunResult struct {
	RunID    string                  `json:"runId"`
	Output   any                     `json:"output,omitempty"`
	Renderer *domain.RendererPayload `json:"renderer,omitempty"`
	Error    *domain.SerializedError `json:"error,omitempty"`
}

// Run handles the 'run' command, dispatching to watch mode when asked.
func Run(ctx context.Context, opts RunOptions, w io.Writer) error {
	if opts.Watch {
		return handleExecutionError(Watch(ctx, opts, w))
	}
	env, err := NewEnv(ctx, opts.Config)
	if err != nil {
		return err
	}
	defer env.Close(context.Background())
	return handleExecutionError(runOnce(ctx, env, opts, w))
}

func runOnce(ctx context.Context, env *Env, opts RunOptions, w io.Writer) error {
	def, err := LoadDefinition(ctx, opts.Path, env.Registry)
	if err != nil {
		return err
	}
	input, options, err := parseValues(def, opts.Input, opts.Options)
	if err != nil {
		return err
	}

	result, runErr := Execute(ctx, env, def, Invocation{
		Input:    input,
		Options:  options,
		RunID:    opts.RunID,
		Headless: opts.Headless,
	})
	if opts.JSON {
		if runErr != nil {
			result.Error = messenger.SerializeError(runErr)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
		return runErr
	}

	renderer := tui.NewRenderer(w)
	switch {
	case runErr != nil:
		renderer.Error(runErr)
	case result.Renderer != nil:
		err = renderer.Payload(result.Renderer)
	default:
		err = renderer.Value(result.Output)
	}
	if opts.Graph {
		fmt.Fprint(w, graph.GenerateMermaid(ctx, def.Pipeline, graph.Options{
			Registry: env.Registry,
			Overlay:  graph.OverlayFromTrace(env.Traces.Records(result.RunID)),
		}))
	}
	if runErr != nil {
		return runErr
	}
	return err
}

// LoadDefinition parses and validates a definition file.
func LoadDefinition(ctx context.Context, path string, registry ports.BrickRegistry) (*compiler.Definition, error) {
	def, err := compiler.NewParser().ParseFile(path)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateDefinition(ctx, def, registry); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

func parseValues(def *compiler.Definition, rawInput, rawOptions string) (any, map[string]any, error) {
	var input any = def.Input
	if rawInput != "" {
		if err := json.Unmarshal([]byte(rawInput), &input); err != nil {
			return nil, nil, fmt.Errorf("error parsing --input JSON: %w", err)
		}
	}
	options := def.Options
	if rawOptions != "" {
		if err := json.Unmarshal([]byte(rawOptions), &options); err != nil {
			return nil, nil, fmt.Errorf("error parsing --options JSON: %w", err)
		}
	}

	s, err := def.Schema()
	if err != nil {
		return nil, nil, err
	}
	if s != nil {
		data, _ := input.(map[string]any)
		if err := schema.Validate(s, data); err != nil {
			return nil, nil, fmt.Errorf("invalid input: %w", err)
		}
	}
	return input, options, nil
}

// Invocation carries the per-run values of Execute.
type Invocation struct {
	Input    any
	Options  map[string]any
	RunID    string
	Headless bool
}

// Execute runs def. In headless mode a pipeline ending in a renderer returns
// the renderer payload; otherwise the output of the last step is returned.
func Execute(ctx context.Context, env *Env, def *compiler.Definition, inv Invocation) (RunResult, error) {
	runID := inv.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	result := RunResult{RunID: runID}
	if len(def.Variables) > 0 {
		env.Store.DeclareVariables(def.ModComponent.ModID, def.Variables)
	}

	initial := runtime.InitialValues{Input: inv.Input, Options: inv.Options}
	opts := runtime.RunOptions{
		APIVersion:    def.APIVersion,
		Ref:           def.ModComponent,
		RunID:         runID,
		ValidateInput: true,
	}

	if inv.Headless && endsInRenderer(ctx, env.Registry, def.Pipeline) {
		payload, err := env.Engine.RunRendererPipeline(ctx, def.Pipeline, initial, opts)
		result.Renderer = payload
		return result, err
	}
	output, err := env.Engine.ReducePipeline(ctx, def.Pipeline, initial, opts)
	result.Output = domain.Deref(output)
	return result, err
}

func endsInRenderer(ctx context.Context, registry ports.BrickRegistry, pipeline domain.Pipeline) bool {
	if len(pipeline) == 0 {
		return false
	}
	def, err := registry.Lookup(ctx, pipeline[len(pipeline)-1].ID)
	return err == nil && def.IsRenderer()
}
