/*
Package domain contains the core models of the brick runtime.

It defines the data that flows through a pipeline run: expressions, brick
configurations, page state, trace records and the typed errors the runtime
raises. The package is kept free of I/O and persistence so that adapters,
the engine and the public facade can share it without cycles.

# Key Entities

  - Expression: A deferred, tagged value ({__type__, __value__}) rendered against a context.
  - BrickConfig: One pipeline step (brick id, config, outputKey, if, window).
  - Brick: The pluggable unit of execution, discriminated by Kind at registration.
  - TraceRecord: A record of a single brick call, correlated by run id and branches.
  - StateUpdate: A namespaced page state write with a merge strategy.
*/
package domain
