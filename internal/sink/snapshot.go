// Package sink holds the destinations a pipeline run emits records to.
package sink

import (
	"context"
	"sync"

	"zoomsync/internal/pipeline"
)

// Snapshot keeps the records and summary of the last run in memory for the
// status server.
type Snapshot struct {
	mu      sync.RWMutex
	records []pipeline.Record
	summary *pipeline.Summary
}

func NewSnapshot() *Snapshot { return &Snapshot{} }

func (s *Snapshot) Emit(ctx context.Context, records []pipeline.Record) error {
	cp := make([]pipeline.Record, len(records))
	copy(cp, records)
	s.mu.Lock()
	s.records = cp
	s.mu.Unlock()
	return nil
}

// SetSummary replaces the last run summary. Failed runs update the summary
// but keep the previous records.
func (s *Snapshot) SetSummary(sum pipeline.Summary) {
	s.mu.Lock()
	s.summary = &sum
	s.mu.Unlock()
}

func (s *Snapshot) Records() []pipeline.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

// Summary returns the last summary, false before the first run.
func (s *Snapshot) Summary() (pipeline.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.summary == nil {
		return pipeline.Summary{}, false
	}
	return *s.summary, true
}

// Find returns the record with the given id ("zm_<n>").
func (s *Snapshot) Find(id string) (pipeline.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return pipeline.Record{}, false
}

// Multi fans records out to every sink in order. The first error stops the
// fan-out.
type Multi []pipeline.Sink

func (m Multi) Emit(ctx context.Context, records []pipeline.Record) error {
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Emit(ctx, records); err != nil {
			return err
		}
	}
	return nil
}
