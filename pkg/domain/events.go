package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRunStatus   EventType = "run_status"
	EventBrickStart  EventType = "brick_start"
	EventBrickFinish EventType = "brick_finish"
	EventBrickSkip   EventType = "brick_skip"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
}

// RunEvent reports a run status transition.
type RunEvent struct {
	EventBase
	ModComponentID string    `json:"mod_component_id,omitempty"`
	Status         RunStatus `json:"status"`
	Index          int       `json:"index"`
	Err            error     `json:"-"`
}

// BrickEvent represents a brick invocation.
type BrickEvent struct {
	EventBase
	BrickID    RegistryID    `json:"brick_id"`
	InstanceID string        `json:"instance_id"`
	Branches   []Branch      `json:"branches,omitempty"`
	Input      any           `json:"input,omitempty"`
	Output     any           `json:"output,omitempty"`
	Err        error         `json:"-"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Outcome classifies the event for metrics: ok, error, business_error or cancelled.
func (e *BrickEvent) Outcome() string {
	return Outcome(e.Err)
}

// Outcome classifies err for metrics and spans.
func Outcome(err error) string {
	switch {
	case err == nil, IsHeadless(err):
		return "ok"
	case IsCancel(err):
		return "cancelled"
	case IsBusinessError(err):
		return "business_error"
	}
	return "error"
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnRunStatus   func(context.Context, *RunEvent)
	OnBrickStart  func(context.Context, *BrickEvent)
	OnBrickFinish func(context.Context, *BrickEvent)
	OnBrickSkip   func(context.Context, *BrickEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnRunStatus:   chain(h.OnRunStatus, other.OnRunStatus),
		OnBrickStart:  chain(h.OnBrickStart, other.OnBrickStart),
		OnBrickFinish: chain(h.OnBrickFinish, other.OnBrickFinish),
		OnBrickSkip:   chain(h.OnBrickSkip, other.OnBrickSkip),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
