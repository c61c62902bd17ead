package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is matched by DoesNotExistError.
var ErrNotFound = errors.New("does not exist")

// ErrCancelled is matched by every CancelError.
var ErrCancelled = errors.New("run cancelled")

// ConfigurationError is a fatal problem with a pipeline definition. It is never retried.
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Err)
	}
	return "configuration error: " + e.Message
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DoesNotExistError is returned when a brick id is not registered.
type DoesNotExistError struct {
	ID RegistryID
}

func (e *DoesNotExistError) Error() string {
	return fmt.Sprintf("brick does not exist: %s", e.ID)
}

func (e *DoesNotExistError) Unwrap() error { return ErrNotFound }

// BusinessError is an expected, user-facing failure. It is excluded from error telemetry.
type BusinessError struct {
	Message string
	Err     error
}

func (e *BusinessError) Error() string { return e.Message }

func (e *BusinessError) Unwrap() error { return e.Err }

// NoRendererError is returned when a renderer pipeline finishes without reaching a renderer.
type NoRendererError struct{}

func (e *NoRendererError) Error() string { return "no renderer brick configured in pipeline" }

// InputValidationError is returned when rendered args fail a brick's input schema.
type InputValidationError struct {
	BrickID RegistryID
	Err     error
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid input for brick %s: %v", e.BrickID, e.Err)
}

func (e *InputValidationError) Unwrap() error { return e.Err }

// PermissionDeniedError is returned when a policy refuses to run a brick.
type PermissionDeniedError struct {
	BrickID RegistryID
	Reason  string
}

func (e *PermissionDeniedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("brick %s is not allowed in this context", e.BrickID)
	}
	return fmt.Sprintf("brick %s is not allowed in this context: %s", e.BrickID, e.Reason)
}

// HeadlessModeError hands a renderer's output to a display surface.
// It is a control-flow signal, not a failure.
type HeadlessModeError struct {
	BrickID    RegistryID
	InstanceID string
	RunID      string
	Args       map[string]any
	Context    map[string]any
}

func (e *HeadlessModeError) Error() string {
	return fmt.Sprintf("brick %s requested headless rendering", e.BrickID)
}

// Payload converts the signal into what a display surface consumes.
func (e *HeadlessModeError) Payload() *RendererPayload {
	return &RendererPayload{
		BrickID:    e.BrickID,
		InstanceID: e.InstanceID,
		RunID:      e.RunID,
		Args:       e.Args,
		Context:    e.Context,
	}
}

// CancelError reports that a run was cancelled by its caller.
type CancelError struct {
	Cause error
}

func (e *CancelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("run cancelled: %v", e.Cause)
	}
	return "run cancelled"
}

func (e *CancelError) Unwrap() error { return e.Cause }

func (e *CancelError) Is(target error) bool { return target == ErrCancelled }

// BrickError attributes a failure to the step that raised it.
type BrickError struct {
	BrickID    RegistryID
	InstanceID string
	Err        error
}

func (e *BrickError) Error() string {
	return fmt.Sprintf("brick %s failed: %v", e.BrickID, e.Err)
}

func (e *BrickError) Unwrap() error { return e.Err }

// SerializedError is the wire form of an error crossing an execution context.
type SerializedError struct {
	Name    string           `json:"name" mapstructure:"name"`
	Message string           `json:"message" mapstructure:"message"`
	Data    map[string]any   `json:"data,omitempty" mapstructure:"data"`
	Cause   *SerializedError `json:"cause,omitempty" mapstructure:"cause"`
}

// RemoteError is a rehydrated error whose name matched no known type.
type RemoteError struct {
	Name    string
	Message string
	Cause   error
}

func (e *RemoteError) Error() string {
	if e.Name == "" || e.Name == "Error" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

func (e *RemoteError) Unwrap() error { return e.Cause }

// AsCancel converts context cancellation into a CancelError. Other errors are returned as is.
func AsCancel(err error) error {
	if err == nil {
		return nil
	}
	var ce *CancelError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &CancelError{Cause: err}
	}
	return err
}

// IsCancel reports whether err is a cancellation.
func IsCancel(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsHeadless reports whether err carries a headless hand-off.
func IsHeadless(err error) bool {
	var he *HeadlessModeError
	return errors.As(err, &he)
}

// IsBusinessError reports whether err is an expected failure that telemetry should skip.
func IsBusinessError(err error) bool {
	var (
		be *BusinessError
		nr *NoRendererError
		iv *InputValidationError
		pd *PermissionDeniedError
	)
	return errors.As(err, &be) || errors.As(err, &nr) || errors.As(err, &iv) || errors.As(err, &pd)
}

// IsConfigurationError reports whether err is a fatal definition problem.
func IsConfigurationError(err error) bool {
	var (
		ce *ConfigurationError
		de *DoesNotExistError
	)
	return errors.As(err, &ce) || errors.As(err, &de)
}
