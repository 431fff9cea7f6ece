package report

import (
	"context"
	"fmt"

	"github.com/studiowebux/restswarm/internal/stats"
	"github.com/studiowebux/restswarm/internal/store"
)

// StoreSink persists interval rows and the final run totals
type StoreSink struct {
	manager *store.Manager
	run     *store.Run
}

// NewStoreSink writes into run, which must already exist in manager
func NewStoreSink(manager *store.Manager, run *store.Run) *StoreSink {
	return &StoreSink{manager: manager, run: run}
}

// Report saves one row per key of the interval
func (s *StoreSink) Report(ctx context.Context, snap *stats.Snapshot) error {
	if err := s.manager.SaveIntervals(s.run.ID, snap); err != nil {
		return fmt.Errorf("failed to save intervals of run %d: %w", s.run.ID, err)
	}
	return nil
}

// Close copies the final totals into the run record. Status, completion time
// and forced shutdowns are set by the caller before Close.
func (s *StoreSink) Close(ctx context.Context, final *stats.Snapshot) error {
	s.run.ApplySnapshot(final)
	if err := s.manager.UpdateRun(s.run); err != nil {
		return fmt.Errorf("failed to finalize run %d: %w", s.run.ID, err)
	}
	return nil
}
