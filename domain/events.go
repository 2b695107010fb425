package domain

// Broadcast topics. Every store-changing operation and lock-state change is
// fanned out to connected observers under one of these.
const (
	TopicTaskCreated        = "task_created"
	TopicTaskUpdated        = "task_updated"
	TopicTaskDeleted        = "task_deleted"
	TopicActivity           = "activity"
	TopicUserEditing        = "user_editing"
	TopicUserStoppedEditing = "user_stopped_editing"
	TopicConnected          = "connected"
)

// TaskDeletedEvent is the payload of TopicTaskDeleted.
type TaskDeletedEvent struct {
	ID string `json:"id"`
}

// EditingEvent is the payload of TopicUserEditing.
type EditingEvent struct {
	TaskID  string `json:"taskId"`
	ActorID string `json:"actorId"`
}

// StoppedEditingEvent is the payload of TopicUserStoppedEditing.
type StoppedEditingEvent struct {
	TaskID string `json:"taskId"`
}

// ConnectedEvent is the first frame of a stream connection and hands the
// client its connection id for edit signals.
type ConnectedEvent struct {
	ConnectionID string `json:"connectionId"`
}
