package bricks

import (
	"fmt"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

const (
	IdentityID  domain.RegistryID = "@brickrt/identity"
	ForEachID   domain.RegistryID = "@brickrt/for-each"
	IfElseID    domain.RegistryID = "@brickrt/if-else"
	GetStateID  domain.RegistryID = "@brickrt/get-state"
	SetStateID  domain.RegistryID = "@brickrt/set-state"
	WithCacheID domain.RegistryID = "@brickrt/with-cache"
	MarkdownID  domain.RegistryID = "@brickrt/markdown"
	DisplayID   domain.RegistryID = "@brickrt/display"
	DelayID     domain.RegistryID = "@brickrt/delay"
)

// All returns a fresh instance of every built-in brick.
func All() []domain.Brick {
	return []domain.Brick{
		Identity(),
		ForEach(),
		IfElse(),
		GetState(),
		SetState(),
		NewWithCache(),
		Markdown(),
		Display(),
		Delay(),
	}
}

// decodeArgs decodes rendered args into a struct using mapstructure tags.
// Expressions left unrendered (pipelines, deferred values) decode into any fields.
func decodeArgs(id domain.RegistryID, args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(args); err != nil {
		return &domain.InputValidationError{BrickID: id, Err: fmt.Errorf("failed to decode args: %w", err)}
	}
	return nil
}

func requireState(id domain.RegistryID, opts domain.BrickOptions) (domain.StateAccessor, error) {
	if opts.State == nil {
		return nil, &domain.ConfigurationError{Message: fmt.Sprintf("%s requires a page state store", id)}
	}
	return opts.State, nil
}

func namespaceOrMod(ns domain.Namespace) domain.Namespace {
	if ns == "" {
		return domain.NamespaceMod
	}
	return ns
}
