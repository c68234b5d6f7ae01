// Package store holds the task persistence boundary: the TaskStore interface
// the pipeline talks to, a threadsafe in-memory implementation, and a
// postgres implementation.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/todoharvest/internal/fingerprint"
	"github.com/todoharvest/pkg/models"
)

var ErrNotFound = errors.New("task not found")

// TaskStore is the external store collaborator. ListOpenTasks returns the
// immutable snapshot a run starts from; ApplyOps consumes the ordered plan
// and reports per-op outcomes. A failed op never blocks the rest of the
// batch.
type TaskStore interface {
	ListOpenTasks(ctx context.Context) ([]models.ExistingTask, error)
	ApplyOps(ctx context.Context, ops []models.ReconciliationOp) ([]models.OpResult, error)
}

// InMemoryStore is a threadsafe in-memory store for tests and dry runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	tasks   map[string]*models.ExistingTask
	sources map[string][]models.SourceRef
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tasks:   make(map[string]*models.ExistingTask),
		sources: make(map[string][]models.SourceRef),
		now:     time.Now,
	}
}

// Seed inserts a task directly, bypassing op application. Test helper.
func (s *InMemoryStore) Seed(task models.ExistingTask) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Fingerprint == "" {
		task.Fingerprint = fingerprint.Fingerprint(task.Task)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now()
	}
	clone := task
	s.tasks[task.ID] = &clone
	return task.ID
}

func (s *InMemoryStore) ListOpenTasks(ctx context.Context) ([]models.ExistingTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ExistingTask
	for _, task := range s.tasks {
		if task.Status == models.StatusOpen || task.Status == models.StatusInProgress {
			out = append(out, *task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *InMemoryStore) ApplyOps(ctx context.Context, ops []models.ReconciliationOp) ([]models.OpResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]models.OpResult, 0, len(ops))
	for _, op := range ops {
		results = append(results, s.applyLocked(op))
	}
	return results, nil
}

func (s *InMemoryStore) applyLocked(op models.ReconciliationOp) models.OpResult {
	result := models.OpResult{Op: op}

	switch op.Kind {
	case models.OpCreate:
		if op.Candidate == nil {
			result.Error = "create op without candidate"
			return result
		}
		task := models.ExistingTask{
			ID:          uuid.NewString(),
			Task:        op.Candidate.Task,
			Assignee:    op.Candidate.Assignee,
			DueDate:     op.Candidate.DueDate,
			Priority:    op.Candidate.Priority,
			Category:    append([]string(nil), op.Candidate.Category...),
			Status:      models.StatusOpen,
			Fingerprint: op.Candidate.Fingerprint,
			CreatedAt:   s.now(),
		}
		if task.Fingerprint == "" {
			task.Fingerprint = fingerprint.Fingerprint(task.Task)
		}
		s.tasks[task.ID] = &task
		s.sources[task.ID] = append([]models.SourceRef(nil), op.Candidate.Sources...)
		result.Applied = true

	case models.OpComplete:
		result = s.setStatusLocked(op, models.StatusDone)

	case models.OpTentativelyComplete:
		result = s.setStatusLocked(op, models.StatusTentativelyDone)

	case models.OpNoOp:
		if _, ok := s.tasks[op.TaskID]; !ok {
			result.Error = ErrNotFound.Error()
			return result
		}
		s.sources[op.TaskID] = appendSources(s.sources[op.TaskID], op.ExtraSources)
		result.Applied = true

	default:
		result.Error = fmt.Sprintf("unknown op kind %q", op.Kind)
	}
	return result
}

func (s *InMemoryStore) setStatusLocked(op models.ReconciliationOp, status models.TaskStatus) models.OpResult {
	result := models.OpResult{Op: op}
	task, ok := s.tasks[op.TaskID]
	if !ok {
		result.Error = ErrNotFound.Error()
		return result
	}
	task.Status = status
	s.sources[op.TaskID] = appendSources(s.sources[op.TaskID], op.ExtraSources)
	result.Applied = true
	return result
}

// Sources returns the attributions recorded for a task. Test helper.
func (s *InMemoryStore) Sources(id string) []models.SourceRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.SourceRef(nil), s.sources[id]...)
}

// Get returns a copy of one task. Test helper.
func (s *InMemoryStore) Get(id string) (models.ExistingTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return models.ExistingTask{}, false
	}
	return *task, true
}

func appendSources(base []models.SourceRef, add []models.SourceRef) []models.SourceRef {
	seen := make(map[string]bool, len(base))
	for _, ref := range base {
		seen[string(ref.Source)+"\x00"+ref.SourceID] = true
	}
	out := base
	for _, ref := range add {
		key := string(ref.Source) + "\x00" + ref.SourceID
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ref)
	}
	return out
}
