package domain

import "time"

// Branch is one hop through a nested pipeline (e.g. "body" of a loop, iteration 2).
type Branch struct {
	Key     string `json:"key"`
	Counter int    `json:"counter"`
}

// TraceRecord captures a single brick call for previews and debugging.
type TraceRecord struct {
	RunID           string           `json:"runId"`
	ModComponentID  string           `json:"modComponentId,omitempty"`
	InstanceID      string           `json:"instanceId"`
	BrickID         RegistryID       `json:"brickId"`
	CallID          string           `json:"callId"`
	Branches        []Branch         `json:"branches"`
	TemplateContext map[string]any   `json:"templateContext,omitempty"`
	RenderedArgs    map[string]any   `json:"renderedArgs,omitempty"`
	RenderError     string           `json:"renderError,omitempty"`
	Output          any              `json:"output,omitempty"`
	Error           *SerializedError `json:"error,omitempty"`
	Skipped         bool             `json:"skipped,omitempty"`
	Pending         bool             `json:"pending,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
	Duration        time.Duration    `json:"duration,omitempty"`
}

// SameCall reports whether r and other describe the same brick invocation.
func (r TraceRecord) SameCall(other TraceRecord) bool {
	if other.CallID != "" && r.CallID != "" {
		return r.CallID == other.CallID
	}
	if r.RunID != other.RunID || r.InstanceID != other.InstanceID || len(r.Branches) != len(other.Branches) {
		return false
	}
	for i := range r.Branches {
		if r.Branches[i] != other.Branches[i] {
			return false
		}
	}
	return true
}

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunPending           RunStatus = "PENDING"
	RunRunning           RunStatus = "RUNNING"
	RunSuspendedOnRemote RunStatus = "SUSPENDED_ON_REMOTE"
	RunCompleted         RunStatus = "COMPLETED"
	RunFailed            RunStatus = "FAILED"
	RunCancelled         RunStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions can follow.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}
