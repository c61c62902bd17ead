package brickrt_test

import (
	"context"
	"testing"

	"github.com/aretw0/brickrt"
	"github.com/aretw0/brickrt/pkg/bricks"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/dsl"
	"github.com/aretw0/brickrt/pkg/messenger"
	"github.com/aretw0/brickrt/pkg/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuntime(t *testing.T, opts ...brickrt.Option) *brickrt.Runtime {
	t.Helper()
	rt, err := brickrt.New(opts...)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

func TestRuntime_Run(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	pipeline := dsl.New().
		Step(bricks.IdentityID).Config("name", domain.Var("@input.name")).Output("person").
		Step(bricks.IdentityID).Config("shout", domain.Nunjucks("{{ person.name|upper }}")).
		Build()

	out, err := rt.Run(ctx, pipeline, map[string]any{"name": "ada"}, brickrt.WithRunID("run-1"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"shout": "ADA"}, out)

	records := rt.Trace("run-1")
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.False(t, rec.Pending)
		assert.Nil(t, rec.Error)
	}
}

func TestRuntime_Integrations(t *testing.T) {
	type client struct{ token string }
	handle := &client{token: "t"}

	var got any
	capture := domain.NewBrick(domain.Metadata{ID: "@test/capture", Kind: domain.KindEffect},
		func(_ context.Context, args map[string]any, _ domain.BrickOptions) (any, error) {
			got = args["client"]
			return args["user"], nil
		})
	rt := newRuntime(t, brickrt.WithBricks(capture))

	pipeline := dsl.New().
		Step("@test/capture").
		Config("client", domain.Var("@google")).
		Config("user", domain.Mustache("{{ google.user }}")).
		Build()

	out, err := rt.Run(context.Background(), pipeline, nil, brickrt.WithIntegrations(map[string]domain.IntegrationBinding{
		"google": {IntegrationID: "google", Handle: handle, Fields: map[string]any{"user": "ada"}},
	}))
	require.NoError(t, err)
	assert.Equal(t, "ada", out)
	assert.Same(t, handle, got)
}

func TestRuntime_Render(t *testing.T) {
	rt := newRuntime(t)
	pipeline := dsl.New().
		Step(bricks.MarkdownID).Config("markdown", domain.Mustache("# {{ input }}")).
		Build()

	payload, err := rt.Render(context.Background(), pipeline, "Title")
	require.NoError(t, err)
	assert.Equal(t, bricks.MarkdownID, payload.BrickID)
	assert.Equal(t, map[string]any{"markdown": "# Title"}, payload.Args)

	_, err = rt.Render(context.Background(), dsl.New().Step(bricks.IdentityID).Build(), nil)
	var nr *domain.NoRendererError
	assert.ErrorAs(t, err, &nr)
}

func TestRuntime_Definition(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	def, err := rt.Load(ctx, []byte(`
apiVersion: v3
modComponent:
  modId: acme/counter
  modComponentId: c1
input:
  start: 41
pipeline:
  - id: "@brickrt/set-state"
    config:
      data:
        count: !var "@input.start"
`))
	require.NoError(t, err)

	_, err = rt.RunDefinition(ctx, def, nil)
	require.NoError(t, err)

	state, err := rt.Store().GetState(ctx, domain.StateQuery{
		Namespace: domain.NamespaceMod,
		Ref:       domain.ModComponentRef{ModID: "acme/counter"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 41, state["count"])

	t.Run("Invalid definition", func(t *testing.T) {
		_, err := rt.Load(ctx, []byte("pipeline:\n  - id: \"@acme/ghost\"\n"))
		assert.ErrorContains(t, err, "unknown brick @acme/ghost")
	})
}

func TestRuntime_Options(t *testing.T) {
	custom := domain.NewBrick(domain.Metadata{ID: "@test/double"},
		func(_ context.Context, args map[string]any, _ domain.BrickOptions) (any, error) {
			n, _ := args["n"].(int)
			return n * 2, nil
		})

	t.Run("Custom bricks only", func(t *testing.T) {
		rt := newRuntime(t, brickrt.WithoutBuiltins(), brickrt.WithBricks(custom))
		assert.Len(t, rt.Registry().List(), 1)

		out, err := rt.Run(context.Background(), domain.Pipeline{{ID: "@test/double", Config: map[string]any{"n": 21}}}, nil)
		require.NoError(t, err)
		assert.Equal(t, 42, out)
	})

	t.Run("Policy", func(t *testing.T) {
		authz, err := policy.NewEngine(context.Background(), policy.Options{Modules: map[string]string{"deny.rego": `package brickrt.authz

deny contains "no doubling" if input.brickId == "@test/double"
`}})
		require.NoError(t, err)
		rt := newRuntime(t, brickrt.WithBricks(custom), brickrt.WithPolicy(authz))

		_, err = rt.Run(context.Background(), domain.Pipeline{{ID: "@test/double", Config: map[string]any{"n": 1}}}, nil)
		var denied *domain.PermissionDeniedError
		assert.ErrorAs(t, err, &denied)
	})

	t.Run("Lifecycle hooks", func(t *testing.T) {
		var started []domain.RegistryID
		rt := newRuntime(t, brickrt.WithLifecycleHooks(domain.LifecycleHooks{
			OnBrickStart: func(_ context.Context, e *domain.BrickEvent) { started = append(started, e.BrickID) },
		}))
		_, err := rt.Run(context.Background(), dsl.New().Step(bricks.IdentityID).Build(), nil)
		require.NoError(t, err)
		assert.Equal(t, []domain.RegistryID{bricks.IdentityID}, started)
	})
}

func TestRuntime_RemotePageBrick(t *testing.T) {
	page := domain.NewBrick(domain.Metadata{ID: "@test/title", Locality: domain.LocalityPage},
		func(_ context.Context, args map[string]any, _ domain.BrickOptions) (any, error) {
			return "title: " + args["q"].(string), nil
		})
	target := domain.Target{TabID: 3}

	hub := messenger.NewHub()
	frame := newRuntime(t, brickrt.WithBricks(page))
	frame.RegisterHandlers(hub.Endpoint(target))

	background := newRuntime(t,
		brickrt.WithBricks(page),
		brickrt.WithMessenger(hub),
		brickrt.WithExecutionContext(domain.ContextBackground),
	)
	out, err := background.Run(context.Background(),
		domain.Pipeline{{ID: "@test/title", Config: map[string]any{"q": domain.Var("@input")}}},
		"docs",
		brickrt.WithTarget(target),
	)
	require.NoError(t, err)
	assert.Equal(t, "title: docs", out)
}
