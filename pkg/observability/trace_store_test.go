package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Exit completes entry", func(t *testing.T) {
		store := observability.NewTraceStore()
		start := time.Now()
		entry := domain.TraceRecord{
			RunID: "r1", ModComponentID: "c1", InstanceID: "i1", CallID: "call-1",
			BrickID: "@test/echo", RenderedArgs: map[string]any{"x": 1}, Timestamp: start,
		}
		store.AddEntry(ctx, entry)

		pending := store.Records("r1")
		require.Len(t, pending, 1)
		assert.True(t, pending[0].Pending)

		exit := entry
		exit.RenderedArgs = nil
		exit.Output = "done"
		exit.Duration = time.Millisecond
		exit.Timestamp = start.Add(time.Second)
		store.AddExit(ctx, exit)

		records := store.Records("r1")
		require.Len(t, records, 1)
		assert.False(t, records[0].Pending)
		assert.Equal(t, "done", records[0].Output)
		assert.Equal(t, map[string]any{"x": 1}, records[0].RenderedArgs)
		assert.Equal(t, start, records[0].Timestamp)
	})

	t.Run("Exit without entry is appended", func(t *testing.T) {
		store := observability.NewTraceStore()
		store.AddExit(ctx, domain.TraceRecord{RunID: "r1", InstanceID: "skipped", CallID: "c", Skipped: true})
		records := store.Records("r1")
		require.Len(t, records, 1)
		assert.True(t, records[0].Skipped)
	})

	t.Run("Branches distinguish calls", func(t *testing.T) {
		store := observability.NewTraceStore()
		for i := 0; i < 2; i++ {
			store.AddEntry(ctx, domain.TraceRecord{RunID: "r1", InstanceID: "body", Branches: []domain.Branch{{Key: "body", Counter: i}}})
		}
		store.AddExit(ctx, domain.TraceRecord{RunID: "r1", InstanceID: "body", Branches: []domain.Branch{{Key: "body", Counter: 0}}, Output: 0})

		records := store.Records("r1")
		require.Len(t, records, 2)
		assert.False(t, records[0].Pending)
		assert.True(t, records[1].Pending)
	})

	t.Run("New run replaces older runs of the component", func(t *testing.T) {
		store := observability.NewTraceStore()
		store.AddEntry(ctx, domain.TraceRecord{RunID: "old", ModComponentID: "c1", InstanceID: "a"})
		store.AddEntry(ctx, domain.TraceRecord{RunID: "other", ModComponentID: "c2", InstanceID: "a"})
		store.AddEntry(ctx, domain.TraceRecord{RunID: "new", ModComponentID: "c1", InstanceID: "a"})

		assert.Empty(t, store.Records("old"))
		assert.Len(t, store.Records("other"), 1)
		assert.Len(t, store.Latest("c1"), 1)
		assert.Equal(t, "new", store.Latest("c1")[0].RunID)
	})

	t.Run("Late records of a replaced run are dropped", func(t *testing.T) {
		store := observability.NewTraceStore()
		store.AddEntry(ctx, domain.TraceRecord{RunID: "old", ModComponentID: "c", InstanceID: "a"})
		store.AddEntry(ctx, domain.TraceRecord{RunID: "new", ModComponentID: "c", InstanceID: "a"})
		store.AddExit(ctx, domain.TraceRecord{RunID: "old", ModComponentID: "c", InstanceID: "a", Output: "stale"})
		store.AddEntry(ctx, domain.TraceRecord{RunID: "old", ModComponentID: "c", InstanceID: "b"})

		assert.Empty(t, store.Records("old"))
		require.Len(t, store.Records("new"), 1)
		latest := store.Latest("c")
		require.Len(t, latest, 1)
		assert.Equal(t, "new", latest[0].RunID)
		assert.True(t, latest[0].Pending)
	})

	t.Run("Clear", func(t *testing.T) {
		store := observability.NewTraceStore()
		store.AddEntry(ctx, domain.TraceRecord{RunID: "r1", ModComponentID: "c1", InstanceID: "a"})
		store.Clear("c1")
		assert.Empty(t, store.Records("r1"))
		assert.Nil(t, store.Latest("c1"))

		store.AddExit(ctx, domain.TraceRecord{RunID: "r1", ModComponentID: "c1", InstanceID: "a"})
		assert.Empty(t, store.Records("r1"), "a cleared run stays cleared")
	})

	t.Run("Records are copies", func(t *testing.T) {
		store := observability.NewTraceStore()
		store.AddEntry(ctx, domain.TraceRecord{RunID: "r1", InstanceID: "a"})
		records := store.Records("r1")
		records[0].InstanceID = "mutated"
		assert.Equal(t, "a", store.Records("r1")[0].InstanceID)
	})
}
