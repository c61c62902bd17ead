/*
Package brickrt runs brick pipelines.

A brick is a small unit of behavior with a registry id ("@brickrt/identity"),
a kind (reader, effect, transform or renderer) and typed arguments. A pipeline
is an ordered list of brick configurations. Each step's config may hold
deferred expressions (variables, mustache, nunjucks or handlebars templates,
nested pipelines) that are rendered against the outputs of earlier steps
just before the brick runs.

# Concept

The runtime reduces a pipeline step by step:

  - It builds the scope the step sees: @input, @options, integrations,
    outputs stored under output keys, and @mod page state.
  - It skips the step when its "if" condition renders falsy.
  - It renders the config into arguments, checks the policy, and runs the
    brick here or in another frame through a messenger.
  - It records a trace entry and exit for every call.

Renderer bricks end a pipeline. In headless mode they hand their arguments
back instead of drawing, so a host can display them itself.

# Usage

	rt, err := brickrt.New()
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Close()

	pipeline := dsl.New().
		Step(bricks.IdentityID).
		Config("greeting", domain.Mustache("Hello {{ input.name }}")).
		Build()

	out, err := rt.Run(ctx, pipeline, map[string]any{"name": "Ada"})

Definitions can also be written in YAML, with tags for expressions:

	apiVersion: v3
	pipeline:
	  - id: "@brickrt/identity"
	    outputKey: greeting
	    config:
	      text: !mustache "Hello {{ input.name }}"
	  - id: "@brickrt/markdown"
	    config:
	      markdown: !var "@greeting.text"

Load parses and validates them; RunDefinition runs them. The brickrt command
(cmd/brickrt) wraps the same runtime with page state in Redis, external
process bricks, a Rego policy, Prometheus metrics and OTLP tracing.
*/
package brickrt
