package ports

import (
	"context"

	"github.com/aretw0/brickrt/pkg/domain"
)

// TraceStore keeps trace records for the runs of each mod component.
type TraceStore interface {
	// AddEntry records a call before the brick runs.
	AddEntry(ctx context.Context, record domain.TraceRecord)
	// AddExit completes the matching entry with output or error.
	AddExit(ctx context.Context, record domain.TraceRecord)
	// Records returns the records of a run in insertion order.
	Records(runID string) []domain.TraceRecord
	// Clear drops every record of a mod component.
	Clear(modComponentID string)
}
