package dsl

import (
	"fmt"

	"github.com/aretw0/brickrt/internal/compiler"
	"github.com/aretw0/brickrt/pkg/adapters/memory"
	"github.com/aretw0/brickrt/pkg/domain"
)

// Builder collects the steps of one pipeline in order.
type Builder struct {
	steps []*StepBuilder
}

// New creates an empty pipeline builder.
func New() *Builder {
	return &Builder{}
}

// Step appends a step running the brick id.
func (b *Builder) Step(id domain.RegistryID) *StepBuilder {
	sb := &StepBuilder{
		step:    domain.BrickConfig{ID: id},
		builder: b,
	}
	b.steps = append(b.steps, sb)
	return sb
}

// Build returns the pipeline. Steps without an instance id get a generated one.
func (b *Builder) Build() domain.Pipeline {
	pipeline := make(domain.Pipeline, len(b.steps))
	for i, sb := range b.steps {
		pipeline[i] = sb.step
	}
	compiler.AssignInstanceIDs(pipeline)
	return pipeline
}

// Expr returns the built pipeline as a pipeline expression, for use as the
// body of a control-flow brick.
func (b *Builder) Expr() domain.Expression {
	return domain.PipelineExpr(b.Build())
}

// Register builds the pipeline and stores it in lib under name.
func (b *Builder) Register(lib *memory.Library, name string) error {
	if err := lib.Put(name, b.Build()); err != nil {
		return fmt.Errorf("failed to register pipeline: %w", err)
	}
	return nil
}
