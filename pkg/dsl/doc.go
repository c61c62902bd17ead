/*
Package dsl provides a fluent Go builder for brick pipelines.

It is an alternative to YAML definition files when a pipeline is assembled in
code, for example in tests or by a host that generates pipelines.

Example usage:

	package main

	import (
		"github.com/aretw0/brickrt/pkg/bricks"
		"github.com/aretw0/brickrt/pkg/domain"
		"github.com/aretw0/brickrt/pkg/dsl"
	)

	func main() {
		body := dsl.New().
			Step(bricks.IdentityID).Config("item", domain.Var("@element"))

		pipeline := dsl.New().
			Step(bricks.ForEachID).
			Config("elements", domain.Var("@input.items")).
			Config("body", body.Expr()).
			Output("last").
			Step(bricks.MarkdownID).
			Config("markdown", domain.Mustache("# {{ @last.item }}")).
			Build()

		// pass pipeline to brickrt.Runtime.Run(...)
	}
*/
package dsl
