package board

import "sort"

// editLock is a soft claim of editing focus on a task. It never blocks reads
// or concurrent focus; it only gates the write path.
type editLock struct {
	ActorID      string
	ConnectionID string
}

// lockRegistry tracks which connection is focused on which task, keyed by
// task id with at most one entry per task. The engine's mutex serializes all
// access.
type lockRegistry struct {
	locks map[string]editLock
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]editLock)}
}

// begin installs or overwrites the lock entry for taskID. Last writer of
// focus wins on the lock itself.
func (r *lockRegistry) begin(taskID, actorID, connectionID string) {
	r.locks[taskID] = editLock{ActorID: actorID, ConnectionID: connectionID}
}

// end removes the entry if present; no-op otherwise.
func (r *lockRegistry) end(taskID string) {
	delete(r.locks, taskID)
}

// holder returns the current lock entry for taskID.
func (r *lockRegistry) holder(taskID string) (editLock, bool) {
	l, ok := r.locks[taskID]
	return l, ok
}

// releaseAllFor removes every lock held by the given connection and returns
// the affected task ids, sorted for deterministic notification order.
func (r *lockRegistry) releaseAllFor(connectionID string) []string {
	var released []string
	for taskID, l := range r.locks {
		if l.ConnectionID == connectionID {
			delete(r.locks, taskID)
			released = append(released, taskID)
		}
	}
	sort.Strings(released)
	return released
}
