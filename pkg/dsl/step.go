package dsl

import (
	"github.com/aretw0/brickrt/pkg/adapters/memory"
	"github.com/aretw0/brickrt/pkg/domain"
)

// StepBuilder provides a fluent API for configuring one step.
// Step, Build, Expr and Register hand back to the owning Builder so chains read top to bottom.
type StepBuilder struct {
	step    domain.BrickConfig
	builder *Builder
}

// Config sets one brick argument. Values may be literals or expressions.
func (s *StepBuilder) Config(key string, value any) *StepBuilder {
	if s.step.Config == nil {
		s.step.Config = make(map[string]any)
	}
	s.step.Config[key] = value
	return s
}

// Configs merges args into the brick arguments.
func (s *StepBuilder) Configs(args map[string]any) *StepBuilder {
	for k, v := range args {
		s.Config(k, v)
	}
	return s
}

// Output binds the step output to @key.
func (s *StepBuilder) Output(key string) *StepBuilder {
	s.step.OutputKey = key
	return s
}

// If makes the step conditional.
func (s *StepBuilder) If(condition any) *StepBuilder {
	s.step.If = condition
	return s
}

// Label sets a human-readable label.
func (s *StepBuilder) Label(label string) *StepBuilder {
	s.step.Label = label
	return s
}

// Window sets where the step runs.
func (s *StepBuilder) Window(target domain.WindowTarget) *StepBuilder {
	s.step.Window = target
	return s
}

// Engine sets the dialect used for plain strings in Config.
func (s *StepBuilder) Engine(dialect domain.ExpressionType) *StepBuilder {
	s.step.TemplateEngine = dialect
	return s
}

// Root runs the step against the element matching selector.
func (s *StepBuilder) Root(selector string) *StepBuilder {
	s.step.RootMode = domain.RootElement
	s.step.Root = selector
	return s
}

// DocumentRoot runs the step against the whole document.
func (s *StepBuilder) DocumentRoot() *StepBuilder {
	s.step.RootMode = domain.RootDocument
	s.step.Root = ""
	return s
}

// InstanceID pins the step's instance id.
func (s *StepBuilder) InstanceID(id string) *StepBuilder {
	s.step.InstanceID = id
	return s
}

// Step starts the next step.
func (s *StepBuilder) Step(id domain.RegistryID) *StepBuilder {
	return s.builder.Step(id)
}

// Build returns the owning builder's pipeline.
func (s *StepBuilder) Build() domain.Pipeline {
	return s.builder.Build()
}

// Expr returns the owning builder's pipeline as an expression.
func (s *StepBuilder) Expr() domain.Expression {
	return s.builder.Expr()
}

// Register stores the owning builder's pipeline in lib under name.
func (s *StepBuilder) Register(lib *memory.Library, name string) error {
	return s.builder.Register(lib, name)
}
