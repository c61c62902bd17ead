/*
Package ports defines the driven ports (interfaces) of the brick runtime.

These interfaces decouple the engine from the contexts it runs in, so the same
pipeline can resolve bricks, reach other execution contexts, share page state
and evaluate sandboxed templates through whichever adapters the host wires in.

# Key Interfaces

  - BrickRegistry: Resolves brick ids to registered definitions.
  - Messenger: Invokes a named procedure in another execution context.
  - PageStateStore: Namespaced page state with merge strategies and change events.
  - TemplateSandbox: Evaluates nunjucks/handlebars templates in isolation.
  - TraceStore: Keeps per-run trace records for previews.
  - DistributedLocker: Coordinates state writes across replicas.
*/
package ports
