package domain

import (
	"strings"
	"time"
)

// Priority is the urgency bucket of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Status places a task in one of the board columns.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Column display names. Task titles must not collide with these,
// case-insensitively, so a card can never impersonate a column header.
var reservedTitles = []string{"todo", "in progress", "done"}

// Task represents a single board item.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	AssignedTo  string    `json:"assignedTo,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Version     int       `json:"version"`
}

// TaskDelta carries the optional field changes of an update request.
// Nil fields are left untouched.
type TaskDelta struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	AssignedTo  *string   `json:"assignedTo,omitempty"`
}

// Empty reports whether the delta changes nothing.
func (d TaskDelta) Empty() bool {
	return d.Title == nil && d.Description == nil && d.Priority == nil &&
		d.Status == nil && d.AssignedTo == nil
}

// Apply copies the delta's set fields onto the task.
func (d TaskDelta) Apply(t *Task) {
	if d.Title != nil {
		t.Title = *d.Title
	}
	if d.Description != nil {
		t.Description = *d.Description
	}
	if d.Priority != nil {
		t.Priority = *d.Priority
	}
	if d.Status != nil {
		t.Status = *d.Status
	}
	if d.AssignedTo != nil {
		t.AssignedTo = *d.AssignedTo
	}
}

// ValidPriority reports whether p is one of the known priorities.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ValidStatus reports whether s is one of the board columns.
func ValidStatus(s Status) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ReservedTitle reports whether the title matches a column name.
func ReservedTitle(title string) bool {
	for _, r := range reservedTitles {
		if strings.EqualFold(title, r) {
			return true
		}
	}
	return false
}
