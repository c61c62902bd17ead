// Package policy decides whether a brick may run, using Rego policies
// evaluated by an embedded OPA.
//
// A policy module defines a set rule (by default data.brickrt.authz.deny)
// whose members are denial reasons. The input document is domain.PolicyInput
// in its JSON shape: brickId, kind, locality, window, executionContext, modId
// and modComponentId.
package policy
