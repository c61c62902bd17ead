package messenger

import (
	"encoding/json"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Normalize converts v to its JSON form: structs become maps, numbers float64
// and values without a wire form (handles, unexported state) are dropped.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &domain.ConfigurationError{Message: "message is not serializable", Err: err}
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &domain.ConfigurationError{Message: "message is not serializable", Err: err}
	}
	return out, nil
}

func normalizeArgs(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := Normalize(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// DecodeArg decodes a wire value into out, which must be a pointer.
func DecodeArg(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
