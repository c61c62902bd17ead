package observability

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/brickrt/pkg/domain"
)

// TraceStore is an in-memory ports.TraceStore. Only the latest run of each
// mod component is kept; records of runs without a component stay until cleared.
// Once a run has been replaced or cleared, late records for it are dropped.
type TraceStore struct {
	mu      sync.RWMutex
	runs    map[string][]domain.TraceRecord
	latest  map[string]string // mod component id -> run id
	retired map[string]struct{}
}

// NewTraceStore creates an empty store.
func NewTraceStore() *TraceStore {
	return &TraceStore{
		runs:    make(map[string][]domain.TraceRecord),
		latest:  make(map[string]string),
		retired: make(map[string]struct{}),
	}
}

// AddEntry records a pending call.
func (s *TraceStore) AddEntry(_ context.Context, record domain.TraceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.track(record) {
		return
	}
	record.Pending = true
	s.runs[record.RunID] = append(s.runs[record.RunID], record)
}

// AddExit completes the pending entry of the same call. An exit without an
// entry (a skipped step, a render failure) is appended as is.
func (s *TraceStore) AddExit(_ context.Context, record domain.TraceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.track(record) {
		return
	}
	record.Pending = false
	records := s.runs[record.RunID]
	for i := len(records) - 1; i >= 0; i-- {
		entry := records[i]
		if !entry.Pending || !entry.SameCall(record) {
			continue
		}
		if record.TemplateContext == nil {
			record.TemplateContext = entry.TemplateContext
		}
		if record.RenderedArgs == nil {
			record.RenderedArgs = entry.RenderedArgs
		}
		record.Timestamp = entry.Timestamp
		records[i] = record
		return
	}
	s.runs[record.RunID] = append(records, record)
}

// track makes record's run the latest of its component, retiring the run it
// replaces. It reports false for records of a retired run.
func (s *TraceStore) track(record domain.TraceRecord) bool {
	if _, ok := s.retired[record.RunID]; ok {
		return false
	}
	if record.ModComponentID == "" {
		return true
	}
	prev, ok := s.latest[record.ModComponentID]
	if ok && prev == record.RunID {
		return true
	}
	if ok {
		s.retire(prev)
	}
	s.latest[record.ModComponentID] = record.RunID
	return true
}

func (s *TraceStore) retire(runID string) {
	delete(s.runs, runID)
	s.retired[runID] = struct{}{}
}

// Records returns a copy of a run's records in insertion order.
func (s *TraceStore) Records(runID string) []domain.TraceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.runs[runID])
}

// Latest returns the records of the latest run of a mod component.
func (s *TraceStore) Latest(modComponentID string) []domain.TraceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runID, ok := s.latest[modComponentID]
	if !ok {
		return nil
	}
	return slices.Clone(s.runs[runID])
}

// Clear drops every record of a mod component.
func (s *TraceStore) Clear(modComponentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runID, ok := s.latest[modComponentID]; ok {
		s.retire(runID)
		delete(s.latest, modComponentID)
	}
}
