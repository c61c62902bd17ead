package domain

import "strings"

// ExpressionType is the tag of an Expression.
type ExpressionType string

const (
	ExprVar        ExpressionType = "var"
	ExprMustache   ExpressionType = "mustache"
	ExprHandlebars ExpressionType = "handlebars"
	ExprNunjucks   ExpressionType = "nunjucks"
	ExprPipeline   ExpressionType = "pipeline"
	ExprRepeat     ExpressionType = "repeat"
	ExprBrick      ExpressionType = "brick"
	ExprDefer      ExpressionType = "defer"
)

// Wire keys of a serialized expression.
const (
	TypeKey  = "__type__"
	ValueKey = "__value__"
)

// IsKnown reports whether t is one of the expression tags the runtime understands.
func (t ExpressionType) IsKnown() bool {
	switch t {
	case ExprVar, ExprMustache, ExprHandlebars, ExprNunjucks,
		ExprPipeline, ExprRepeat, ExprBrick, ExprDefer:
		return true
	}
	return false
}

// IsTemplate reports whether t is a string template dialect.
func (t ExpressionType) IsTemplate() bool {
	return t == ExprMustache || t == ExprNunjucks || t == ExprHandlebars
}

// Expression is a deferred value resolved against a context at runtime.
// Expressions are immutable once constructed.
type Expression struct {
	Type  ExpressionType `json:"__type__" yaml:"__type__" mapstructure:"__type__"`
	Value any            `json:"__value__" yaml:"__value__" mapstructure:"__value__"`
}

// RepeatSpec is the value of a repeat expression.
type RepeatSpec struct {
	Data       any    `json:"data" yaml:"data" mapstructure:"data"`
	Element    any    `json:"element" yaml:"element" mapstructure:"element"`
	ElementKey string `json:"elementKey,omitempty" yaml:"elementKey,omitempty" mapstructure:"elementKey"`
}

// DefaultElementKey is bound when a repeat expression omits ElementKey.
const DefaultElementKey = "element"

// Key returns the element key, falling back to DefaultElementKey.
func (r RepeatSpec) Key() string {
	key := strings.TrimPrefix(strings.TrimSpace(r.ElementKey), "@")
	if key == "" {
		return DefaultElementKey
	}
	return key
}

// BrickCallSpec is the value of a brick expression.
type BrickCallSpec struct {
	ID     RegistryID     `json:"id" yaml:"id" mapstructure:"id"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty" mapstructure:"config"`
}

// IsExpression reports whether v has the structural shape of an Expression.
func IsExpression(v any) bool {
	_, ok := AsExpression(v)
	return ok
}

// AsExpression unwraps v as an Expression.
// It accepts Expression, *Expression and a map carrying exactly the
// __type__ and __value__ keys with a known type. Anything else is a literal.
func AsExpression(v any) (Expression, bool) {
	switch e := v.(type) {
	case Expression:
		return e, e.Type.IsKnown()
	case *Expression:
		if e == nil {
			return Expression{}, false
		}
		return *e, e.Type.IsKnown()
	case map[string]any:
		if len(e) != 2 {
			return Expression{}, false
		}
		raw, ok := e[TypeKey].(string)
		if !ok {
			return Expression{}, false
		}
		value, ok := e[ValueKey]
		if !ok {
			return Expression{}, false
		}
		t := ExpressionType(raw)
		if !t.IsKnown() {
			return Expression{}, false
		}
		return Expression{Type: t, Value: value}, true
	}
	return Expression{}, false
}

// IsTemplateExpression reports whether v is a mustache, nunjucks or handlebars expression.
func IsTemplateExpression(v any) bool {
	e, ok := AsExpression(v)
	return ok && e.Type.IsTemplate()
}

// IsPipelineExpression reports whether v is a pipeline expression.
func IsPipelineExpression(v any) bool {
	e, ok := AsExpression(v)
	return ok && e.Type == ExprPipeline
}

func Var(path string) Expression { return Expression{Type: ExprVar, Value: path} }

func Mustache(template string) Expression { return Expression{Type: ExprMustache, Value: template} }

func Nunjucks(template string) Expression { return Expression{Type: ExprNunjucks, Value: template} }

func Handlebars(template string) Expression {
	return Expression{Type: ExprHandlebars, Value: template}
}

// Template builds a template expression of the given dialect.
func Template(dialect ExpressionType, template string) Expression {
	return Expression{Type: dialect, Value: template}
}

func PipelineExpr(pipeline Pipeline) Expression {
	return Expression{Type: ExprPipeline, Value: pipeline}
}

func Repeat(spec RepeatSpec) Expression { return Expression{Type: ExprRepeat, Value: spec} }

func BrickCall(id RegistryID, config map[string]any) Expression {
	return Expression{Type: ExprBrick, Value: BrickCallSpec{ID: id, Config: config}}
}

// Defer wraps a value whose rendering is left to the consuming brick.
func Defer(value any) Expression { return Expression{Type: ExprDefer, Value: value} }
