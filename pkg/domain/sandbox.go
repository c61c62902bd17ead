package domain

// SandboxRequest asks an isolated evaluator to render a template.
type SandboxRequest struct {
	Engine     ExpressionType `json:"engine"`
	Template   string         `json:"template"`
	Context    map[string]any `json:"context"`
	Autoescape bool           `json:"autoescape"`
}

// SandboxResponse is the reply of an isolated evaluator.
type SandboxResponse struct {
	Output string           `json:"output,omitempty"`
	Error  *SerializedError `json:"error,omitempty"`
}

// PolicyInput is what a brick policy decides on.
type PolicyInput struct {
	BrickID          RegistryID       `json:"brickId"`
	Kind             BrickKind        `json:"kind"`
	Locality         Locality         `json:"locality"`
	Window           WindowTarget     `json:"window,omitempty"`
	ExecutionContext ExecutionContext `json:"executionContext"`
	ModID            string           `json:"modId,omitempty"`
	ModComponentID   string           `json:"modComponentId,omitempty"`
}
