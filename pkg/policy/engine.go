package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aretw0/brickrt/internal/logging"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const defaultEntrypoint = "brickrt/authz/deny"

// DenyPageBricksInSandbox denies page bricks invoked from the sandbox,
// where neither the DOM nor the messenger is reachable.
const DenyPageBricksInSandbox = `package brickrt.authz

deny contains msg if {
	input.locality == "page"
	input.executionContext == "sandbox"
	msg := "page bricks cannot run from the sandbox"
}
`

// Options control Engine construction.
type Options struct {
	// Entrypoint is the rule path yielding the set of denial reasons.
	Entrypoint string
	// Modules maps module names to Rego (v1 syntax) sources.
	Modules map[string]string
	Logger  *slog.Logger
}

// Engine implements ports.BrickPolicy with a prepared Rego query.
type Engine struct {
	query  rego.PreparedEvalQuery
	logger *slog.Logger
}

// NewEngine parses and compiles the modules.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	if len(opts.Modules) == 0 {
		return nil, errors.New("policy engine requires at least one rego module")
	}
	entry := strings.TrimSpace(opts.Entrypoint)
	if entry == "" {
		entry = defaultEntrypoint
	}

	names := make([]string, 0, len(opts.Modules))
	for name := range opts.Modules {
		names = append(names, name)
	}
	sort.Strings(names)

	regoOpts := []func(*rego.Rego){rego.Query("data." + strings.ReplaceAll(entry, "/", "."))}
	for _, name := range names {
		module, err := ast.ParseModuleWithOpts(name, opts.Modules[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("failed to parse rego module %q: %w", name, err)
		}
		regoOpts = append(regoOpts, rego.ParsedModule(module))
	}

	prepared, err := rego.New(regoOpts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rego modules: %w", err)
	}
	return &Engine{query: prepared, logger: logging.OrNop(opts.Logger)}, nil
}

// Authorize returns *domain.PermissionDeniedError when any deny rule matches.
func (e *Engine) Authorize(ctx context.Context, input domain.PolicyInput) error {
	doc, err := toDocument(input)
	if err != nil {
		return err
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		if ctx.Err() != nil {
			return domain.AsCancel(ctx.Err())
		}
		return fmt.Errorf("failed to evaluate policy: %w", err)
	}

	reasons := denials(results)
	if len(reasons) == 0 {
		return nil
	}
	e.logger.Debug("Policy denied brick", "brick_id", string(input.BrickID), "reasons", reasons)
	return &domain.PermissionDeniedError{BrickID: input.BrickID, Reason: strings.Join(reasons, "; ")}
}

func toDocument(input domain.PolicyInput) (map[string]any, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy input: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode policy input: %w", err)
	}
	return doc, nil
}

// denials flattens the rule value. Sets arrive as []any; a bare string or
// true counts as one reason.
func denials(results rego.ResultSet) []string {
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil
	}

	var reasons []string
	switch v := results[0].Expressions[0].Value.(type) {
	case []any:
		for _, item := range v {
			reasons = append(reasons, fmt.Sprint(item))
		}
	case string:
		reasons = append(reasons, v)
	case bool:
		if v {
			reasons = append(reasons, "denied by policy")
		}
	}
	sort.Strings(reasons)
	return reasons
}
