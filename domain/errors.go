package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrDuplicateTitle     = errors.New("task title must be unique")
	ErrReservedTitle      = errors.New("task title cannot match column names")
	ErrInvalidInput       = errors.New("invalid task input")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ConflictError signals that an update collided with another actor's edit
// lock. It carries the current task so the caller can reconcile and resubmit
// with a merge or an overwrite. It is a business condition, not a failure.
type ConflictError struct {
	ActorID string
	Current Task
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("task %s is being edited by %s", e.Current.ID, e.ActorID)
}
