package domain

import "strings"

// ModComponentRef identifies the mod component that owns a run.
type ModComponentRef struct {
	ModID          string `json:"modId" yaml:"modId" mapstructure:"modId"`
	ModComponentID string `json:"modComponentId" yaml:"modComponentId" mapstructure:"modComponentId"`
	StarterBrickID string `json:"starterBrickId,omitempty" yaml:"starterBrickId,omitempty" mapstructure:"starterBrickId"`
}

// Target addresses a frame of a tab in another execution context.
type Target struct {
	TabID   int `json:"tabId" mapstructure:"tabId"`
	FrameID int `json:"frameId" mapstructure:"frameId"`
}

// TopFrame returns the target's top-level frame.
func (t Target) TopFrame() Target {
	return Target{TabID: t.TabID, FrameID: 0}
}

// ElementRef points at the root element of a step. An empty selector is the document.
type ElementRef struct {
	Selector string `json:"selector,omitempty" mapstructure:"selector"`
}

// IsDocument reports whether the reference is the document itself.
func (r ElementRef) IsDocument() bool { return r.Selector == "" }

// Descend narrows the reference to a selector relative to it.
func (r ElementRef) Descend(selector string) ElementRef {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return r
	}
	if r.IsDocument() {
		return ElementRef{Selector: selector}
	}
	return ElementRef{Selector: r.Selector + " " + selector}
}

// Reference is a stable token standing for a value produced by a repeat
// expression. Only the token crosses serialization boundaries.
type Reference struct {
	Token string `json:"__ref__" mapstructure:"__ref__"`
	value any
}

// NewReference binds token to value.
func NewReference(token string, value any) Reference {
	return Reference{Token: token, value: value}
}

// Value returns the referenced value. It is nil once the reference has been serialized.
func (r Reference) Value() any { return r.value }

// Deref returns the value behind v if v is a Reference, and v otherwise.
func Deref(v any) any {
	switch r := v.(type) {
	case Reference:
		return r.value
	case *Reference:
		if r == nil {
			return nil
		}
		return r.value
	}
	return v
}

// IntegrationBinding binds a configured integration into a template context.
// Templates see Fields; a var expression resolving to the binding gets Handle.
type IntegrationBinding struct {
	IntegrationID string         `json:"integrationId"`
	ConfigID      string         `json:"configId,omitempty"`
	Handle        any            `json:"-"`
	Fields        map[string]any `json:"fields,omitempty"`
}

// Resolve returns the value a var expression sees for the binding.
func (b IntegrationBinding) Resolve() any {
	if b.Handle != nil {
		return b.Handle
	}
	return b.Fields
}
