// Package bricks ships the control-flow, state and display bricks the runtime
// needs to be useful on its own. Page-specific bricks (DOM, clipboard, HTTP)
// are left to hosts, which register them next to these.
package bricks
