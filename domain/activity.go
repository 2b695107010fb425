package domain

import "time"

// Action identifies the kind of event an activity record describes.
type Action string

const (
	ActionTaskCreated     Action = "task_created"
	ActionTaskUpdated     Action = "task_updated"
	ActionTaskDeleted     Action = "task_deleted"
	ActionTaskSmartAssign Action = "task_smart_assigned"
	ActionUserRegistered  Action = "user_registered"
	ActionUserLoggedIn    Action = "user_logged_in"
)

// ActivityDetails is the per-action payload of an activity record. Each
// action kind has its own variant so the log stays heterogeneous without
// losing type safety.
type ActivityDetails interface {
	activityDetails()
}

// TaskCreatedDetails accompanies ActionTaskCreated.
type TaskCreatedDetails struct {
	Title string `json:"title"`
}

// TaskUpdatedDetails accompanies ActionTaskUpdated and lists the fields the
// accepted delta touched.
type TaskUpdatedDetails struct {
	Fields []string `json:"fields"`
	Forced bool     `json:"forced,omitempty"`
}

// TaskDeletedDetails accompanies ActionTaskDeleted.
type TaskDeletedDetails struct {
	Title string `json:"title"`
}

// SmartAssignDetails accompanies ActionTaskSmartAssign.
type SmartAssignDetails struct {
	AssignedTo string `json:"assignedTo"`
}

func (TaskCreatedDetails) activityDetails() {}
func (TaskUpdatedDetails) activityDetails() {}
func (TaskDeletedDetails) activityDetails() {}
func (SmartAssignDetails) activityDetails() {}

// Activity is one immutable entry of the bounded activity log.
type Activity struct {
	ID        string          `json:"id"`
	Action    Action          `json:"action"`
	UserID    string          `json:"userId"`
	TaskID    string          `json:"taskId,omitempty"`
	Details   ActivityDetails `json:"details,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// FieldsChanged lists the names of the fields a delta sets, in a fixed order.
func FieldsChanged(d TaskDelta) []string {
	fields := make([]string, 0, 5)
	if d.Title != nil {
		fields = append(fields, "title")
	}
	if d.Description != nil {
		fields = append(fields, "description")
	}
	if d.Priority != nil {
		fields = append(fields, "priority")
	}
	if d.Status != nil {
		fields = append(fields, "status")
	}
	if d.AssignedTo != nil {
		fields = append(fields, "assignedTo")
	}
	return fields
}
