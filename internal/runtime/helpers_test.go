package runtime_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aretw0/brickrt/internal/runtime"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/registry"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, bricks []domain.Brick, opts ...runtime.EngineOption) *runtime.Engine {
	t.Helper()
	reg, err := registry.NewRegistry(bricks...)
	require.NoError(t, err)
	return runtime.NewEngine(reg, opts...)
}

func toInt(v any) int {
	switch n := domain.Deref(v).(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// addBrick returns args["value"] + 1 and counts its calls.
type addBrick struct {
	mu    sync.Mutex
	calls int
}

func (b *addBrick) Metadata() domain.Metadata {
	return domain.Metadata{ID: "@test/add", Kind: domain.KindTransform}
}

func (b *addBrick) Run(_ context.Context, args map[string]any, _ domain.BrickOptions) (any, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	return toInt(args["value"]) + 1, nil
}

func (b *addBrick) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

var echoBrick = domain.NewBrick(domain.Metadata{ID: "@test/echo"},
	func(_ context.Context, args map[string]any, _ domain.BrickOptions) (any, error) {
		return args, nil
	})

var failBrick = domain.NewBrick(domain.Metadata{ID: "@test/fail"},
	func(context.Context, map[string]any, domain.BrickOptions) (any, error) {
		return nil, &domain.BusinessError{Message: "expected failure"}
	})

var blockBrick = domain.NewBrick(domain.Metadata{ID: "@test/block", Kind: domain.KindEffect},
	func(ctx context.Context, _ map[string]any, _ domain.BrickOptions) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

var panelBrick = domain.NewBrick(domain.Metadata{ID: "@test/panel", Kind: domain.KindRenderer},
	func(context.Context, map[string]any, domain.BrickOptions) (any, error) {
		return "displayed", nil
	})

// argsBrick records the args it receives.
type argsBrick struct {
	id       domain.RegistryID
	locality domain.Locality
	mu       sync.Mutex
	received []map[string]any
}

func (b *argsBrick) Metadata() domain.Metadata {
	return domain.Metadata{ID: b.id, Kind: domain.KindEffect, Locality: b.locality}
}

func (b *argsBrick) Run(_ context.Context, args map[string]any, _ domain.BrickOptions) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.received = append(b.received, args)
	return args, nil
}

func (b *argsBrick) Last() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.received) == 0 {
		return nil
	}
	return b.received[len(b.received)-1]
}

// loopBrick runs args["body"] once per item, binding @element.
var loopBrick = domain.NewBrick(domain.Metadata{ID: "@test/loop", Kind: domain.KindTransform},
	func(ctx context.Context, args map[string]any, opts domain.BrickOptions) (any, error) {
		items, _ := args["items"].([]any)
		var last any
		for i, item := range items {
			out, err := opts.RunPipeline(ctx, args["body"], domain.Branch{Key: "body", Counter: i}, map[string]any{"@element": item})
			if err != nil {
				return nil, err
			}
			last = out
		}
		return last, nil
	})

type stubState struct {
	mu    sync.Mutex
	vars  map[string]any
	reads int
}

func (s *stubState) GetState(_ context.Context, q domain.StateQuery) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return domain.CloneMap(s.vars), nil
}

func (s *stubState) SetState(_ context.Context, u domain.StateUpdate) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged, err := domain.MergeState(s.vars, u.Data, u.MergeStrategy)
	if err != nil {
		return nil, err
	}
	s.vars = merged
	return domain.CloneMap(merged), nil
}

func (s *stubState) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type recordingTraces struct {
	mu      sync.Mutex
	entries []domain.TraceRecord
	exits   []domain.TraceRecord
}

func (r *recordingTraces) AddEntry(_ context.Context, record domain.TraceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, record)
}

func (r *recordingTraces) AddExit(_ context.Context, record domain.TraceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits = append(r.exits, record)
}

func (r *recordingTraces) Records(runID string) []domain.TraceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TraceRecord
	for _, rec := range r.exits {
		if rec.RunID == runID {
			out = append(out, rec)
		}
	}
	return out
}

func (r *recordingTraces) Clear(string) {}

type denyPolicy struct {
	deny domain.RegistryID
}

func (p denyPolicy) Authorize(_ context.Context, in domain.PolicyInput) error {
	if in.BrickID == p.deny {
		return &domain.PermissionDeniedError{BrickID: in.BrickID, Reason: fmt.Sprintf("denied in %s", in.ExecutionContext)}
	}
	return nil
}

func statusRecorder() (*[]domain.RunStatus, domain.LifecycleHooks) {
	var (
		mu       sync.Mutex
		statuses []domain.RunStatus
	)
	return &statuses, domain.LifecycleHooks{
		OnRunStatus: func(_ context.Context, e *domain.RunEvent) {
			mu.Lock()
			defer mu.Unlock()
			statuses = append(statuses, e.Status)
		},
	}
}
