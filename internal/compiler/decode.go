package compiler

import (
	"fmt"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// DecodePipeline converts a pipeline value into a domain.Pipeline.
// It accepts a Pipeline, a pipeline expression (typed or in wire form) and
// plain lists of step maps as produced by JSON or YAML decoding.
func DecodePipeline(value any) (domain.Pipeline, error) {
	if expr, ok := domain.AsExpression(value); ok {
		if expr.Type != domain.ExprPipeline {
			return nil, &domain.ConfigurationError{Message: fmt.Sprintf("expected a pipeline expression, got %s", expr.Type)}
		}
		value = expr.Value
	}

	switch p := value.(type) {
	case nil:
		return domain.Pipeline{}, nil
	case domain.Pipeline:
		return p, nil
	case []domain.BrickConfig:
		return domain.Pipeline(p), nil
	}

	var pipeline domain.Pipeline
	if err := decode(value, &pipeline); err != nil {
		return nil, &domain.ConfigurationError{Message: "invalid pipeline", Err: err}
	}
	return pipeline, nil
}

// DecodeRepeat converts the value of a repeat expression.
func DecodeRepeat(value any) (domain.RepeatSpec, error) {
	switch r := value.(type) {
	case domain.RepeatSpec:
		return r, nil
	case *domain.RepeatSpec:
		if r != nil {
			return *r, nil
		}
	}
	var spec domain.RepeatSpec
	if err := decode(value, &spec); err != nil {
		return spec, &domain.ConfigurationError{Message: "invalid repeat expression", Err: err}
	}
	return spec, nil
}

// DecodeBrickCall converts the value of a brick expression.
func DecodeBrickCall(value any) (domain.BrickCallSpec, error) {
	switch b := value.(type) {
	case domain.BrickCallSpec:
		return b, nil
	case *domain.BrickCallSpec:
		if b != nil {
			return *b, nil
		}
	}
	var spec domain.BrickCallSpec
	if err := decode(value, &spec); err != nil {
		return spec, &domain.ConfigurationError{Message: "invalid brick expression", Err: err}
	}
	if spec.ID == "" {
		return spec, &domain.ConfigurationError{Message: "brick expression is missing an id"}
	}
	return spec, nil
}

func decode(input, output any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      output,
		ErrorUnused: true,
		TagName:     "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
