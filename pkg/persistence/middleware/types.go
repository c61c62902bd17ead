// Package middleware wraps page state stores with cross-cutting behavior:
// at-rest encryption of values and redaction of change events.
package middleware

import "github.com/aretw0/brickrt/pkg/ports"

// Middleware allows wrapping a PageStateStore to add behavior.
type Middleware func(ports.PageStateStore) ports.PageStateStore

// Chain wraps store so that the first middleware is the outermost.
func Chain(store ports.PageStateStore, mws ...Middleware) ports.PageStateStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
