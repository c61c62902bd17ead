package compiler

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/schema"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Definition is a mod component definition file.
type Definition struct {
	APIVersion   domain.APIVersion            `mapstructure:"apiVersion"`
	ModComponent domain.ModComponentRef       `mapstructure:"modComponent"`
	Name         string                       `mapstructure:"name"`
	Description  string                       `mapstructure:"description"`
	Input        map[string]any               `mapstructure:"input"`
	InputSchema  map[string]string            `mapstructure:"inputSchema"`
	Options      map[string]any               `mapstructure:"options"`
	Variables    map[string]domain.SyncPolicy `mapstructure:"variables"`
	Pipeline     domain.Pipeline              `mapstructure:"pipeline"`
}

// Schema parses InputSchema.
func (d *Definition) Schema() (schema.Schema, error) {
	if len(d.InputSchema) == 0 {
		return nil, nil
	}
	return schema.ParseTypeMap(d.InputSchema)
}

// Parser converts definition files (YAML or JSON) into Definitions.
//
// Expressions are written with local tags:
//
//	message: !mustache "Hello {{ @input.name }}"
//	items: !var "@input.items"
//	body: !pipeline
//	  - id: "@brickrt/identity"
//
// or in their wire form, {"__type__": "var", "__value__": "@input"}.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile reads and parses a definition file.
func (p *Parser) ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	def, err := p.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse decodes a definition and assigns instance ids to steps lacking one.
func (p *Parser) Parse(data []byte) (*Definition, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, &domain.ConfigurationError{Message: "definition is empty"}
	}

	raw, err := convert(&root)
	if err != nil {
		return nil, err
	}
	if _, ok := raw.(map[string]any); !ok {
		return nil, &domain.ConfigurationError{Message: fmt.Sprintf("definition must be a mapping, got %T", raw)}
	}

	var def Definition
	if err := decode(raw, &def); err != nil {
		return nil, &domain.ConfigurationError{Message: "invalid definition", Err: err}
	}
	if !def.APIVersion.IsValid() {
		return nil, &domain.ConfigurationError{Message: fmt.Sprintf("unsupported apiVersion: %q", def.APIVersion)}
	}
	for name, policy := range def.Variables {
		switch policy {
		case domain.SyncNone, domain.SyncTab, domain.SyncSession:
		default:
			return nil, &domain.ConfigurationError{Message: fmt.Sprintf("variable %q has unknown sync policy %q", name, policy)}
		}
	}

	AssignInstanceIDs(def.Pipeline)
	return &def, nil
}

var tagTypes = map[string]domain.ExpressionType{
	"!var":        domain.ExprVar,
	"!mustache":   domain.ExprMustache,
	"!nunjucks":   domain.ExprNunjucks,
	"!handlebars": domain.ExprHandlebars,
	"!pipeline":   domain.ExprPipeline,
	"!defer":      domain.ExprDefer,
	"!repeat":     domain.ExprRepeat,
	"!brick":      domain.ExprBrick,
}

// convert walks a YAML node into plain values, turning tagged nodes and
// wire-form maps into domain.Expression.
func convert(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		return convert(node.Content[0])
	case yaml.AliasNode:
		return convert(node.Alias)
	}

	exprType, tagged := tagTypes[node.Tag]
	if !tagged && strings.HasPrefix(node.Tag, "!") && !strings.HasPrefix(node.Tag, "!!") {
		return nil, nodeError(node, "unknown tag %s", node.Tag)
	}

	var value any
	switch node.Kind {
	case yaml.ScalarNode:
		if tagged {
			if exprType.IsTemplate() || exprType == domain.ExprVar {
				return domain.Expression{Type: exprType, Value: node.Value}, nil
			}
			// A tagged scalar keeps its plain YAML type.
			plain := *node
			plain.Tag = ""
			if err := plain.Decode(&value); err != nil {
				return nil, nodeError(node, "%v", err)
			}
		} else if err := node.Decode(&value); err != nil {
			return nil, nodeError(node, "%v", err)
		}
	case yaml.SequenceNode:
		items := make([]any, 0, len(node.Content))
		for _, child := range node.Content {
			item, err := convert(child)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		value = items
	case yaml.MappingNode:
		m, err := convertMapping(node)
		if err != nil {
			return nil, err
		}
		if !tagged {
			if expr, ok := domain.AsExpression(m); ok {
				return typed(expr, node)
			}
		}
		value = m
	default:
		return nil, nodeError(node, "unsupported node")
	}

	if !tagged {
		return value, nil
	}
	return typed(domain.Expression{Type: exprType, Value: value}, node)
}

func convertMapping(node *yaml.Node) (map[string]any, error) {
	m := make(map[string]any, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		v, err := convert(val)
		if err != nil {
			return nil, err
		}
		if key.Tag == "!!merge" {
			merged, ok := v.(map[string]any)
			if !ok {
				return nil, nodeError(key, "merge value must be a mapping")
			}
			for mk, mv := range merged {
				if _, exists := m[mk]; !exists {
					m[mk] = mv
				}
			}
			continue
		}
		if key.Kind != yaml.ScalarNode {
			return nil, nodeError(key, "mapping keys must be scalars")
		}
		m[key.Value] = v
	}
	return m, nil
}

// typed gives structured expressions their domain value types.
func typed(expr domain.Expression, node *yaml.Node) (any, error) {
	switch expr.Type {
	case domain.ExprVar, domain.ExprMustache, domain.ExprNunjucks, domain.ExprHandlebars:
		if _, ok := expr.Value.(string); !ok {
			return nil, nodeError(node, "%s expression must be a string", expr.Type)
		}
	case domain.ExprPipeline:
		pipeline, err := DecodePipeline(expr.Value)
		if err != nil {
			return nil, atLine(node, err)
		}
		return domain.PipelineExpr(pipeline), nil
	case domain.ExprRepeat:
		spec, err := DecodeRepeat(expr.Value)
		if err != nil {
			return nil, atLine(node, err)
		}
		return domain.Repeat(spec), nil
	case domain.ExprBrick:
		spec, err := DecodeBrickCall(expr.Value)
		if err != nil {
			return nil, atLine(node, err)
		}
		return domain.Expression{Type: domain.ExprBrick, Value: spec}, nil
	}
	return expr, nil
}

func nodeError(node *yaml.Node, format string, args ...any) error {
	return &domain.ConfigurationError{Message: fmt.Sprintf("line %d: %s", node.Line, fmt.Sprintf(format, args...))}
}

// atLine prefixes a decode error with the node's line.
func atLine(node *yaml.Node, err error) error {
	var ce *domain.ConfigurationError
	if errors.As(err, &ce) {
		return &domain.ConfigurationError{Message: fmt.Sprintf("line %d: %s", node.Line, ce.Message), Err: ce.Err}
	}
	return nodeError(node, "%v", err)
}

// AssignInstanceIDs gives every step without an instance id a fresh one,
// including steps of nested pipeline expressions.
func AssignInstanceIDs(pipeline domain.Pipeline) {
	for i := range pipeline {
		if pipeline[i].InstanceID == "" {
			pipeline[i].InstanceID = uuid.NewString()
		}
		for _, v := range pipeline[i].Config {
			assignNested(v)
		}
		assignNested(pipeline[i].If)
	}
}

func assignNested(v any) {
	switch t := v.(type) {
	case domain.Expression:
		switch spec := t.Value.(type) {
		case domain.Pipeline:
			AssignInstanceIDs(spec)
		case domain.RepeatSpec:
			assignNested(spec.Element)
		case domain.BrickCallSpec:
			for _, c := range spec.Config {
				assignNested(c)
			}
		default:
			assignNested(t.Value)
		}
	case map[string]any:
		for _, e := range t {
			assignNested(e)
		}
	case []any:
		for _, e := range t {
			assignNested(e)
		}
	}
}
