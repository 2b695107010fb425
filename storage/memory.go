package storage

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"syncboard/domain"
)

// Memory is the in-process task store. Records are handed out by value so a
// caller can never mutate stored state behind the version counter. List
// returns tasks in creation order.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]*domain.Task
	order []string
}

// NewMemory creates an empty in-memory task store.
func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]*domain.Task)}
}

// Create validates the title, allocates an id and stores a new task in the
// todo column, assigned to its creator, at version 1.
func (m *Memory) Create(title, description string, priority domain.Priority, creatorID string) (domain.Task, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Task{}, domain.ErrInvalidInput
	}
	if domain.ReservedTitle(title) {
		return domain.Task{}, domain.ErrReservedTitle
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.Title == title {
			return domain.Task{}, domain.ErrDuplicateTitle
		}
	}

	now := time.Now().UTC()
	task := domain.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      domain.StatusTodo,
		AssignedTo:  creatorID,
		CreatedBy:   creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	m.tasks[task.ID] = &task
	m.order = append(m.order, task.ID)
	return task, nil
}

// Get returns a copy of the task with the given id.
func (m *Memory) Get(id string) (domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	return *t, nil
}

// List returns copies of all tasks in creation order.
func (m *Memory) List() []domain.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Task, 0, len(m.order))
	for _, id := range m.order {
		if t, ok := m.tasks[id]; ok {
			out = append(out, *t)
		}
	}
	return out
}

// Replace applies the mutator to the stored task, stamps UpdatedAt and
// increments the version by exactly one. This is the only mutation primitive.
func (m *Memory) Replace(id string, mutate func(*domain.Task)) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	mutate(t)
	t.UpdatedAt = time.Now().UTC()
	t.Version++
	return *t, nil
}

// Delete removes the task with the given id.
func (m *Memory) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(m.tasks, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Seed loads previously persisted tasks, preserving the given order. Used to
// warm the board from a mirror at boot; existing entries are overwritten.
func (m *Memory) Seed(tasks []domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range tasks {
		t := tasks[i]
		if _, ok := m.tasks[t.ID]; !ok {
			m.order = append(m.order, t.ID)
		}
		m.tasks[t.ID] = &t
	}
}
