package syncer

import (
	"sync"
	"time"

	"github.com/melisync/melisync/internal/models"
)

// RunState holds the outcome of the last completed cycle. The coordinator
// is its only writer; readers always get copies.
type RunState struct {
	mu       sync.RWMutex
	lastSync *time.Time
	results  []models.SyncResult
}

// NewRunState returns an empty state.
func NewRunState() *RunState {
	return &RunState{}
}

func (s *RunState) replace(at time.Time, results []models.SyncResult) {
	cp := make([]models.SyncResult, len(results))
	copy(cp, results)

	s.mu.Lock()
	s.lastSync = &at
	s.results = cp
	s.mu.Unlock()
}

// LastSync returns the completion time of the last cycle, or nil before the first.
func (s *RunState) LastSync() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSync == nil {
		return nil
	}
	t := *s.lastSync
	return &t
}

// Snapshot returns a copy of the last cycle.
func (s *RunState) Snapshot() models.RunSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.RunSnapshot{Results: make([]models.SyncResult, len(s.results))}
	copy(snap.Results, s.results)
	if s.lastSync != nil {
		t := *s.lastSync
		snap.LastSync = &t
	}
	return snap
}
