package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/core/ports"
)

var _ ports.RunStore = (*RunStore)(nil)

// RunStore is a thread-safe in-memory implementation of ports.RunStore.
// Admission runs under the store lock, like the advisory-locked transaction
// of the PostgreSQL store.
type RunStore struct {
	mu   sync.Mutex
	runs map[string]*domain.RunRecord
	seq  map[string]int
	next int

	// StartRunExclusiveFn allows overriding StartRunExclusive behavior.
	StartRunExclusiveFn func(ctx context.Context, rec domain.RunRecord, admit ports.AdmitFunc) error

	// FinishRunFn allows overriding FinishRun behavior.
	FinishRunFn func(ctx context.Context, id string, status domain.RunStatus, counters domain.RunCounters, errMsg string) error
}

// NewRunStore creates an empty run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]*domain.RunRecord),
		seq:  make(map[string]int),
	}
}

// Seed stores a run record directly.
func (s *RunStore) Seed(rec domain.RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(rec)
}

func (s *RunStore) put(rec domain.RunRecord) {
	s.next++
	cp := rec
	s.runs[rec.ID] = &cp
	s.seq[rec.ID] = s.next
}

// Runs returns all run records in insertion order.
func (s *RunStore) Runs() []domain.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.RunRecord, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] < s.seq[out[j].ID] })

	return out
}

// Reset removes all runs.
func (s *RunStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string]*domain.RunRecord)
	s.seq = make(map[string]int)
	s.next = 0
}

// ReclaimStuckRuns fails running runs started before olderThan.
func (s *RunStore) ReclaimStuckRuns(_ context.Context, olderThan time.Time, reason string) ([]domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.RunRecord

	now := time.Now()

	for _, r := range s.runs {
		if r.Status != domain.RunStatusRunning || !r.StartedAt.Before(olderThan) {
			continue
		}

		r.Status = domain.RunStatusFailed
		r.CompletedAt = &now
		r.Error = reason
		out = append(out, *r)
	}

	return out, nil
}

// StartRunExclusive admits and inserts rec atomically.
func (s *RunStore) StartRunExclusive(ctx context.Context, rec domain.RunRecord, admit ports.AdmitFunc) error {
	if s.StartRunExclusiveFn != nil {
		return s.StartRunExclusiveFn(ctx, rec, admit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	running := s.running()

	if admit != nil {
		if err := admit(running); err != nil {
			return err
		}
	}

	for _, r := range running {
		if r.ExclusionKey == rec.ExclusionKey {
			return fmt.Errorf("exclusion key %s held by %s: %w", rec.ExclusionKey, r.ID, apperrors.ErrRunRejected)
		}
	}

	rec.Status = domain.RunStatusRunning
	s.put(rec)

	return nil
}

func (s *RunStore) running() []domain.RunRecord {
	var out []domain.RunRecord

	for _, r := range s.runs {
		if r.Status == domain.RunStatusRunning {
			out = append(out, *r)
		}
	}

	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] < s.seq[out[j].ID] })

	return out
}

// UpdateRunCounters stores progress counters of a running run.
func (s *RunStore) UpdateRunCounters(_ context.Context, id string, counters domain.RunCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("update counters %s: %w", id, apperrors.ErrRunNotFound)
	}

	r.Counters = counters

	return nil
}

// FinishRun finalizes a running run.
func (s *RunStore) FinishRun(ctx context.Context, id string, status domain.RunStatus, counters domain.RunCounters, errMsg string) error {
	if s.FinishRunFn != nil {
		return s.FinishRunFn(ctx, id, status, counters, errMsg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("finish %s: %w", id, apperrors.ErrRunNotFound)
	}

	if r.Status != domain.RunStatusRunning {
		return fmt.Errorf("finish %s: %w", id, apperrors.ErrRunNotRunning)
	}

	now := time.Now()
	r.Status = status
	r.CompletedAt = &now
	r.Counters = counters
	r.Error = errMsg

	return nil
}

// Run returns a copy of the run with id.
func (s *RunStore) Run(id string) (domain.RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return domain.RunRecord{}, false
	}

	return *r, true
}

// ListRunningRuns returns running runs.
func (s *RunStore) ListRunningRuns(_ context.Context) ([]domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running(), nil
}

// ListRecentRuns returns the most recently started runs first.
func (s *RunStore) ListRecentRuns(_ context.Context, limit int) ([]domain.RunRecord, error) {
	all := s.Runs()

	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	return all, nil
}
