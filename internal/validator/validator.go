package validator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/aretw0/brickrt/internal/compiler"
	"github.com/aretw0/brickrt/internal/runtime"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/ports"
)

var outputKeyPattern = regexp.MustCompile(`^@?[A-Za-z_][A-Za-z0-9_-]*$`)

var reservedKeys = map[string]bool{
	runtime.KeyInput:   true,
	runtime.KeyOptions: true,
	runtime.KeyMod:     true,
}

// Issue is one problem found in a definition.
type Issue struct {
	// Path locates the step, e.g. "pipeline[1].config.body[0]".
	Path    string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// ValidateDefinition checks a definition without running it.
func ValidateDefinition(ctx context.Context, def *compiler.Definition, registry ports.BrickRegistry) error {
	var issues []Issue
	if !def.APIVersion.IsValid() {
		issues = append(issues, Issue{Path: "apiVersion", Message: fmt.Sprintf("unsupported version %q", def.APIVersion)})
	}
	if _, err := def.Schema(); err != nil {
		issues = append(issues, Issue{Path: "inputSchema", Message: err.Error()})
	}
	if len(def.Pipeline) == 0 {
		issues = append(issues, Issue{Path: "pipeline", Message: "pipeline is empty"})
	}
	issues = append(issues, ValidatePipeline(ctx, def.Pipeline, registry, "pipeline")...)
	return Join(issues)
}

// ValidatePipeline checks every step of pipeline, including nested pipelines
// found in step configs.
func ValidatePipeline(ctx context.Context, pipeline domain.Pipeline, registry ports.BrickRegistry, path string) []Issue {
	var issues []Issue
	for i, step := range pipeline {
		at := fmt.Sprintf("%s[%d]", path, i)
		issues = append(issues, validateStep(ctx, step, registry, at, i == len(pipeline)-1)...)
	}
	return issues
}

func validateStep(ctx context.Context, step domain.BrickConfig, registry ports.BrickRegistry, at string, last bool) []Issue {
	var issues []Issue
	report := func(format string, args ...any) {
		issues = append(issues, Issue{Path: at, Message: fmt.Sprintf(format, args...)})
	}

	if step.ID == "" {
		report("missing brick id")
	} else if def, err := registry.Lookup(ctx, step.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			report("unknown brick %s", step.ID)
		} else {
			report("failed to look up brick %s: %v", step.ID, err)
		}
	} else if def.IsRenderer() && !last {
		report("renderer %s must be the last step", step.ID)
	}

	if !step.Window.IsValid() {
		report("unsupported window %q", step.Window)
	}
	if step.TemplateEngine != "" && !step.TemplateEngine.IsTemplate() {
		report("unsupported template engine %q", step.TemplateEngine)
	}
	switch step.RootMode {
	case "", domain.RootInherit, domain.RootDocument:
	case domain.RootElement:
		if step.Root == "" {
			report("rootMode element needs a root selector")
		}
	default:
		report("unsupported rootMode %q", step.RootMode)
	}
	if step.OutputKey != "" {
		if !outputKeyPattern.MatchString(step.OutputKey) {
			report("invalid outputKey %q", step.OutputKey)
		} else if reservedKeys[runtime.OutputVar(step.OutputKey)] {
			report("outputKey %q shadows a reserved variable", step.OutputKey)
		}
	}

	for _, key := range sortedKeys(step.Config) {
		issues = append(issues, validateValue(ctx, step.Config[key], registry, at+".config."+key)...)
	}
	if step.If != nil {
		issues = append(issues, validateValue(ctx, step.If, registry, at+".if")...)
	}
	return issues
}

func validateValue(ctx context.Context, v any, registry ports.BrickRegistry, at string) []Issue {
	expr, ok := domain.AsExpression(v)
	if !ok {
		switch t := v.(type) {
		case map[string]any:
			var issues []Issue
			for _, key := range sortedKeys(t) {
				issues = append(issues, validateValue(ctx, t[key], registry, at+"."+key)...)
			}
			return issues
		case []any:
			var issues []Issue
			for i, e := range t {
				issues = append(issues, validateValue(ctx, e, registry, fmt.Sprintf("%s[%d]", at, i))...)
			}
			return issues
		}
		return nil
	}

	switch expr.Type {
	case domain.ExprVar:
		path, _ := expr.Value.(string)
		if !strings.HasPrefix(strings.TrimSpace(path), "@") {
			return []Issue{{Path: at, Message: fmt.Sprintf("var %q must start with @", path)}}
		}
	case domain.ExprPipeline:
		pipeline, err := compiler.DecodePipeline(expr.Value)
		if err != nil {
			return []Issue{{Path: at, Message: err.Error()}}
		}
		return ValidatePipeline(ctx, pipeline, registry, at)
	case domain.ExprRepeat:
		spec, err := compiler.DecodeRepeat(expr.Value)
		if err != nil {
			return []Issue{{Path: at, Message: err.Error()}}
		}
		return append(validateValue(ctx, spec.Data, registry, at+".data"), validateValue(ctx, spec.Element, registry, at+".element")...)
	case domain.ExprBrick:
		spec, err := compiler.DecodeBrickCall(expr.Value)
		if err != nil {
			return []Issue{{Path: at, Message: err.Error()}}
		}
		return validateStep(ctx, domain.BrickConfig{ID: spec.ID, Config: spec.Config}, registry, at, true)
	case domain.ExprDefer:
		return validateValue(ctx, expr.Value, registry, at)
	}
	return nil
}

// Join folds issues into a single error, or nil when there are none.
func Join(issues []Issue) error {
	if len(issues) == 0 {
		return nil
	}
	lines := make([]string, len(issues))
	for i, issue := range issues {
		lines[i] = issue.String()
	}
	return fmt.Errorf("found %d errors:\n- %s", len(issues), strings.Join(lines, "\n- "))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
