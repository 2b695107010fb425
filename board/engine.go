package board

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"syncboard/domain"
)

// Store is the versioned task collection the engine mutates. Implementations
// hand out task values, never live references.
type Store interface {
	Create(title, description string, priority domain.Priority, creatorID string) (domain.Task, error)
	Get(id string) (domain.Task, error)
	List() []domain.Task
	Replace(id string, mutate func(*domain.Task)) (domain.Task, error)
	Delete(id string) error
}

// Publisher fans out events to connected observers. Publish must not block;
// delivery is best-effort and never fails the triggering mutation.
type Publisher interface {
	Publish(topic string, payload any)
}

// Mirror persists task records outside the process. Calls happen after the
// commit, off the mutation path.
type Mirror interface {
	SaveTask(ctx context.Context, t domain.Task) error
	DeleteTask(ctx context.Context, id string) error
}

// Engine applies every board mutation. One mutex guards the task store, the
// edit-lock registry, the user directory and the activity log as a single
// serialization domain, so concurrent operations are linearized. Publishing
// only enqueues frames, so holding the mutex across it keeps the event order
// consistent with the commit order without blocking on any observer.
type Engine struct {
	mu         sync.Mutex
	store      Store
	locks      *lockRegistry
	users      *directory
	activities *activityLog

	pub    Publisher
	logger *log.Logger
	arch   *archiver
	mirror *mirrorWorker
}

// NewEngine creates an engine over the given store and publisher.
func NewEngine(store Store, pub Publisher, logger *log.Logger) *Engine {
	if store == nil {
		panic("board.NewEngine: store is nil")
	}
	if pub == nil {
		panic("board.NewEngine: publisher is nil")
	}
	if logger == nil {
		logger = log.New()
	}
	return &Engine{
		store:      store,
		locks:      newLockRegistry(),
		users:      newDirectory(),
		activities: newActivityLog(),
		pub:        pub,
		logger:     logger,
	}
}

// EnableArchive starts draining activity records to the sink.
func (e *Engine) EnableArchive(sink Sink) {
	e.arch = newArchiver(sink, e.logger)
}

// EnableMirror turns on write-behind task persistence. Writes go through a
// single ordered worker so the mirror sees commits in commit order.
func (e *Engine) EnableMirror(m Mirror) {
	e.mirror = newMirrorWorker(m, e.logger)
}

// Shutdown stops background workers, draining any buffered records.
func (e *Engine) Shutdown() {
	if e.arch != nil {
		e.arch.shutdown()
	}
	if e.mirror != nil {
		e.mirror.shutdown()
	}
}

// CreateTask validates and stores a new task, records the activity and
// broadcasts task_created.
func (e *Engine) CreateTask(actorID, title, description string, priority domain.Priority) (domain.Task, error) {
	if !domain.ValidPriority(priority) {
		return domain.Task{}, domain.ErrInvalidInput
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.store.Create(title, description, priority, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	e.record(domain.ActionTaskCreated, actorID, task.ID, domain.TaskCreatedDetails{Title: task.Title})
	e.pub.Publish(domain.TopicTaskCreated, task)
	e.mirrorSave(task)
	e.logger.WithFields(log.Fields{"task": task.ID, "actor": actorID}).Debug("task created")
	return task, nil
}

// Tasks returns all tasks in creation order.
func (e *Engine) Tasks() []domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.List()
}

// UpdateTask applies the delta to the task. When force is false and another
// actor holds the edit lock, the delta is not applied and a ConflictError
// carrying the current task is returned; resolution (merge or overwrite) is
// the caller's decision. An accepted update releases any lock on the task as
// part of the commit, regardless of who held it.
func (e *Engine) UpdateTask(taskID, actorID string, delta domain.TaskDelta, force bool) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.store.Get(taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if !force {
		if l, ok := e.locks.holder(taskID); ok && l.ActorID != actorID {
			return domain.Task{}, &domain.ConflictError{ActorID: l.ActorID, Current: current}
		}
	}
	if err := e.validateDelta(taskID, delta); err != nil {
		return domain.Task{}, err
	}

	updated, err := e.store.Replace(taskID, delta.Apply)
	if err != nil {
		return domain.Task{}, err
	}
	e.locks.end(taskID)
	e.record(domain.ActionTaskUpdated, actorID, taskID, domain.TaskUpdatedDetails{
		Fields: domain.FieldsChanged(delta),
		Forced: force,
	})
	e.pub.Publish(domain.TopicTaskUpdated, updated)
	e.mirrorSave(updated)
	e.logger.WithFields(log.Fields{"task": taskID, "actor": actorID, "version": updated.Version, "forced": force}).Debug("task updated")
	return updated, nil
}

// DeleteTask removes the task and any lock on it. Deletion unconditionally
// wins over a held lock.
func (e *Engine) DeleteTask(taskID, actorID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.store.Get(taskID)
	if err != nil {
		return err
	}
	if err := e.store.Delete(taskID); err != nil {
		return err
	}
	e.locks.end(taskID)
	e.record(domain.ActionTaskDeleted, actorID, taskID, domain.TaskDeletedDetails{Title: task.Title})
	e.pub.Publish(domain.TopicTaskDeleted, domain.TaskDeletedEvent{ID: taskID})
	e.mirrorDelete(taskID)
	e.logger.WithFields(log.Fields{"task": taskID, "actor": actorID}).Debug("task deleted")
	return nil
}

// SmartAssign assigns the task to the registered user with the fewest
// not-done tasks. Ties go to the first-registered user. With no registered
// users the assignment is cleared.
func (e *Engine) SmartAssign(taskID, actorID string) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.Get(taskID); err != nil {
		return domain.Task{}, err
	}

	users := e.users.list()
	counts := make(map[string]int, len(users))
	for _, u := range users {
		counts[u.ID] = 0
	}
	for _, t := range e.store.List() {
		if t.Status == domain.StatusDone || t.AssignedTo == "" {
			continue
		}
		if _, known := counts[t.AssignedTo]; known {
			counts[t.AssignedTo]++
		}
	}

	assignee := ""
	best := -1
	for _, u := range users {
		if best == -1 || counts[u.ID] < best {
			best = counts[u.ID]
			assignee = u.ID
		}
	}

	updated, err := e.store.Replace(taskID, func(t *domain.Task) {
		t.AssignedTo = assignee
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.record(domain.ActionTaskSmartAssign, actorID, taskID, domain.SmartAssignDetails{AssignedTo: assignee})
	e.pub.Publish(domain.TopicTaskUpdated, updated)
	e.mirrorSave(updated)
	e.logger.WithFields(log.Fields{"task": taskID, "assignee": assignee}).Debug("task smart-assigned")
	return updated, nil
}

// RegisterUser adds a user to the directory and records the registration.
func (e *Engine) RegisterUser(email, name string, passwordHash []byte) (domain.User, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(name) == "" {
		return domain.User{}, domain.ErrInvalidInput
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.users.add(user); err != nil {
		return domain.User{}, err
	}
	e.record(domain.ActionUserRegistered, user.ID, "", nil)
	e.logger.WithField("user", user.ID).Debug("user registered")
	return user, nil
}

// UserByEmail looks up a user for credential verification.
func (e *Engine) UserByEmail(email string) (domain.User, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.users.byEmailAddr(email)
}

// NoteLogin records a successful login.
func (e *Engine) NoteLogin(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record(domain.ActionUserLoggedIn, userID, "", nil)
}

// Users returns the public view of all registered users, in registration
// order.
func (e *Engine) Users() []domain.PublicUser {
	e.mu.Lock()
	defer e.mu.Unlock()
	users := e.users.list()
	out := make([]domain.PublicUser, len(users))
	for i, u := range users {
		out[i] = u.Public()
	}
	return out
}

// Activities returns the bounded activity log, newest first.
func (e *Engine) Activities() []domain.Activity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activities.list()
}

// BeginEdit claims editing focus on a task for the given connection and
// notifies observers.
func (e *Engine) BeginEdit(taskID, actorID, connectionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locks.begin(taskID, actorID, connectionID)
	e.pub.Publish(domain.TopicUserEditing, domain.EditingEvent{TaskID: taskID, ActorID: actorID})
}

// EndEdit releases the lock on a task if present and notifies observers.
func (e *Engine) EndEdit(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locks.end(taskID)
	e.pub.Publish(domain.TopicUserStoppedEditing, domain.StoppedEditingEvent{TaskID: taskID})
}

// Disconnect releases every lock held by the connection and emits a stopped
// notification for each affected task.
func (e *Engine) Disconnect(connectionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, taskID := range e.locks.releaseAllFor(connectionID) {
		e.pub.Publish(domain.TopicUserStoppedEditing, domain.StoppedEditingEvent{TaskID: taskID})
	}
}

// record is the single entry point for activity writes: it appends to the
// bounded log, broadcasts the record and hands it to the archiver. Callers
// must hold e.mu.
func (e *Engine) record(action domain.Action, userID, taskID string, details domain.ActivityDetails) {
	act := domain.Activity{
		ID:        uuid.NewString(),
		Action:    action,
		UserID:    userID,
		TaskID:    taskID,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
	e.activities.add(act)
	e.pub.Publish(domain.TopicActivity, act)
	if e.arch != nil {
		e.arch.submit(act)
	}
}

func (e *Engine) validateDelta(taskID string, delta domain.TaskDelta) error {
	if delta.Empty() {
		return domain.ErrInvalidInput
	}
	if delta.Title != nil {
		title := *delta.Title
		if strings.TrimSpace(title) == "" {
			return domain.ErrInvalidInput
		}
		if domain.ReservedTitle(title) {
			return domain.ErrReservedTitle
		}
		for _, t := range e.store.List() {
			if t.ID != taskID && t.Title == title {
				return domain.ErrDuplicateTitle
			}
		}
	}
	if delta.Priority != nil && !domain.ValidPriority(*delta.Priority) {
		return domain.ErrInvalidInput
	}
	if delta.Status != nil && !domain.ValidStatus(*delta.Status) {
		return domain.ErrInvalidInput
	}
	return nil
}

func (e *Engine) mirrorSave(t domain.Task) {
	if e.mirror != nil {
		e.mirror.save(t)
	}
}

func (e *Engine) mirrorDelete(id string) {
	if e.mirror != nil {
		e.mirror.remove(id)
	}
}
