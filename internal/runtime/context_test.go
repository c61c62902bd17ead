package runtime_test

import (
	"context"
	"testing"

	"github.com/aretw0/brickrt/internal/runtime"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeIsCopyOnWrite(t *testing.T) {
	base := runtime.NewScope(map[string]any{"@input": 1})
	next := base.With("@a", 2)

	_, ok := base.Get("@a")
	assert.False(t, ok)
	assert.Equal(t, []string{"@a", "@input"}, next.Keys())
	assert.Same(t, base, base.Merge(nil))

	merged := next.Merge(map[string]any{"@input": 3})
	v, _ := merged.Get("@input")
	assert.Equal(t, 3, v)
	v, _ = next.Get("@input")
	assert.Equal(t, 1, v)
}

func TestInitialValues(t *testing.T) {
	scope := runtime.InitialValues{
		Input:        map[string]any{"q": "x"},
		Integrations: map[string]domain.IntegrationBinding{"google": {IntegrationID: "google"}},
	}.Scope()

	assert.Equal(t, []string{"@google", "@input", "@options"}, scope.Keys())
	options, _ := scope.Get("@options")
	assert.Equal(t, map[string]any{}, options)
}

func TestExtendModVariableContext(t *testing.T) {
	ctx := context.Background()
	ref := domain.ModComponentRef{ModID: "mod-1", ModComponentID: "c-1"}
	state := &stubState{vars: map[string]any{"count": 1}}
	base := runtime.NewScope(map[string]any{"@input": "x"})

	t.Run("Implicit data flow is untouched", func(t *testing.T) {
		for _, v := range []domain.APIVersion{domain.APIVersionV1, domain.APIVersionV2} {
			got, err := runtime.ExtendModVariableContext(ctx, base, runtime.ExtendOptions{Ref: ref, APIVersion: v, State: state})
			require.NoError(t, err)
			assert.Same(t, base, got)
		}
	})

	t.Run("Binds @mod once", func(t *testing.T) {
		extended, err := runtime.ExtendModVariableContext(ctx, base, runtime.ExtendOptions{Ref: ref, State: state})
		require.NoError(t, err)
		assert.Equal(t, append(base.Keys(), "@mod"), extended.Keys())
		assert.True(t, extended.ModExtended())
		assert.False(t, base.ModExtended())
		mod, _ := extended.Get("@mod")
		assert.Equal(t, map[string]any{"count": 1}, mod)

		again, err := runtime.ExtendModVariableContext(ctx, extended, runtime.ExtendOptions{Ref: ref, State: state})
		require.NoError(t, err)
		assert.Same(t, extended, again)
	})

	t.Run("Update re-reads", func(t *testing.T) {
		extended, err := runtime.ExtendModVariableContext(ctx, base, runtime.ExtendOptions{Ref: ref, State: state})
		require.NoError(t, err)
		_, err = state.SetState(ctx, domain.StateUpdate{Namespace: domain.NamespaceMod, Ref: ref, Data: map[string]any{"count": 2}, MergeStrategy: domain.MergeShallow})
		require.NoError(t, err)

		updated, err := runtime.ExtendModVariableContext(ctx, extended, runtime.ExtendOptions{Ref: ref, State: state, Update: true})
		require.NoError(t, err)
		assert.NotSame(t, extended, updated)
		mod, _ := updated.Get("@mod")
		assert.Equal(t, map[string]any{"count": 2}, mod)
	})

	t.Run("Without a store", func(t *testing.T) {
		extended, err := runtime.ExtendModVariableContext(ctx, base, runtime.ExtendOptions{Ref: ref})
		require.NoError(t, err)
		mod, _ := extended.Get("@mod")
		assert.Equal(t, map[string]any{}, mod)
	})
}

func TestIsTruthy(t *testing.T) {
	tests := []struct {
		value any
		want  bool
	}{
		{true, true},
		{false, false},
		{nil, false},
		{0, false},
		{0.0, false},
		{3, true},
		{"", false},
		{"yes", true},
		{"ON", true},
		{" 1 ", true},
		{"false", false},
		{"maybe", false},
		{map[string]any{}, true},
		{domain.NewReference("t", "y"), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, runtime.IsTruthy(tt.value), "value %#v", tt.value)
	}
}
