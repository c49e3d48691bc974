package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/axion-mining/fleet-optimizer/internal/optimizer"
)

const (
	// DefaultHistoryLimit is how many runs a store keeps when no limit is configured.
	DefaultHistoryLimit = 100
)

var (
	// ErrRunNotFound is returned when a run ID is unknown.
	ErrRunNotFound = errors.New("run not found")
)

// Run is a completed optimization together with its inputs.
type Run struct {
	ID         string               `json:"id"`
	CreatedAt  time.Time            `json:"createdAt"`
	Mode       string               `json:"mode"`
	DurationMs int64                `json:"durationMs"`
	Parameters optimizer.Parameters `json:"parameters"`
	Results    optimizer.Results    `json:"results"`
}

// NewRun stamps a fresh ID on a finished run.
func NewRun(mode string, createdAt time.Time, elapsed time.Duration, params optimizer.Parameters, res optimizer.Results) Run {
	return Run{
		ID:         uuid.NewString(),
		CreatedAt:  createdAt.UTC(),
		Mode:       mode,
		DurationMs: elapsed.Milliseconds(),
		Parameters: params,
		Results:    res,
	}
}

// RunStore keeps the history of completed runs.
type RunStore interface {
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	// ListRuns returns up to limit runs, most recent first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

// MemoryRunStore keeps the most recent runs in-memory.
type MemoryRunStore struct {
	mu    sync.RWMutex
	limit int
	order []string
	runs  map[string]Run
}

// NewMemoryRunStore creates a store that retains at most limit runs.
func NewMemoryRunStore(limit int) *MemoryRunStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &MemoryRunStore{
		limit: limit,
		runs:  make(map[string]Run, limit),
	}
}

// SaveRun stores run, evicting the oldest entry when the store is full.
func (s *MemoryRunStore) SaveRun(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run

	for len(s.order) > s.limit {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// GetRun returns the run with the given ID.
func (s *MemoryRunStore) GetRun(_ context.Context, id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns up to limit runs, most recent first.
func (s *MemoryRunStore) ListRuns(_ context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]Run, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[s.order[i]])
	}
	return out, nil
}

// Close implements RunStore.
func (s *MemoryRunStore) Close() error {
	return nil
}
