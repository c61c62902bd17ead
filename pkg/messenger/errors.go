package messenger

import (
	"errors"

	"github.com/aretw0/brickrt/pkg/domain"
)

// SerializeError converts err to its wire form, keeping the type name and
// the fields needed to rebuild it on the other side.
func SerializeError(err error) *domain.SerializedError {
	if err == nil {
		return nil
	}

	s := &domain.SerializedError{Name: "Error", Message: err.Error()}
	switch e := err.(type) {
	case *domain.BusinessError:
		s.Name = "BusinessError"
		s.Cause = SerializeError(e.Err)
	case *domain.ConfigurationError:
		s.Name, s.Message = "ConfigurationError", e.Message
		s.Cause = SerializeError(e.Err)
	case *domain.DoesNotExistError:
		s.Name = "DoesNotExistError"
		s.Data = map[string]any{"id": string(e.ID)}
	case *domain.CancelError:
		s.Name = "CancelError"
		s.Cause = SerializeError(e.Cause)
	case *domain.InputValidationError:
		s.Name = "InputValidationError"
		s.Data = map[string]any{"brickId": string(e.BrickID)}
		s.Cause = SerializeError(e.Err)
	case *domain.PermissionDeniedError:
		s.Name = "PermissionDeniedError"
		s.Data = map[string]any{"brickId": string(e.BrickID), "reason": e.Reason}
	case *domain.NoRendererError:
		s.Name = "NoRendererError"
	case *domain.HeadlessModeError:
		s.Name = "HeadlessModeError"
		s.Data = map[string]any{
			"brickId":    string(e.BrickID),
			"instanceId": e.InstanceID,
			"runId":      e.RunID,
			"args":       e.Args,
			"context":    e.Context,
		}
	case *domain.BrickError:
		s.Name = "BrickError"
		s.Data = map[string]any{"brickId": string(e.BrickID), "instanceId": e.InstanceID}
		s.Cause = SerializeError(e.Err)
	case *domain.RemoteError:
		s.Name, s.Message = e.Name, e.Message
		s.Cause = SerializeError(e.Cause)
	default:
		if domain.IsCancel(err) {
			s.Name = "CancelError"
			break
		}
		s.Cause = SerializeError(errors.Unwrap(err))
	}

	if data, err := Normalize(s.Data); err == nil {
		s.Data, _ = data.(map[string]any)
	}
	return s
}

// DeserializeError rebuilds a local error from its wire form. Unknown names
// become *domain.RemoteError so the chain stays inspectable with errors.As.
func DeserializeError(s *domain.SerializedError) error {
	if s == nil {
		return nil
	}
	cause := DeserializeError(s.Cause)
	str := func(key string) string {
		v, _ := s.Data[key].(string)
		return v
	}
	obj := func(key string) map[string]any {
		v, _ := s.Data[key].(map[string]any)
		return v
	}

	switch s.Name {
	case "BusinessError":
		return &domain.BusinessError{Message: s.Message, Err: cause}
	case "ConfigurationError":
		return &domain.ConfigurationError{Message: s.Message, Err: cause}
	case "DoesNotExistError":
		return &domain.DoesNotExistError{ID: domain.RegistryID(str("id"))}
	case "CancelError":
		return &domain.CancelError{Cause: cause}
	case "InputValidationError":
		if cause == nil {
			cause = errors.New(s.Message)
		}
		return &domain.InputValidationError{BrickID: domain.RegistryID(str("brickId")), Err: cause}
	case "PermissionDeniedError":
		return &domain.PermissionDeniedError{BrickID: domain.RegistryID(str("brickId")), Reason: str("reason")}
	case "NoRendererError":
		return &domain.NoRendererError{}
	case "HeadlessModeError":
		return &domain.HeadlessModeError{
			BrickID:    domain.RegistryID(str("brickId")),
			InstanceID: str("instanceId"),
			RunID:      str("runId"),
			Args:       obj("args"),
			Context:    obj("context"),
		}
	case "BrickError":
		if cause == nil {
			cause = errors.New(s.Message)
		}
		return &domain.BrickError{BrickID: domain.RegistryID(str("brickId")), InstanceID: str("instanceId"), Err: cause}
	}
	return &domain.RemoteError{Name: s.Name, Message: s.Message, Cause: cause}
}
