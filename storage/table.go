package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"syncboard/domain"
)

// All task rows share one partition; the board is a single shared set.
const taskPartition = "tasks"

// TableMirror persists task records to an Azure table as a write-behind copy
// of the in-memory board. Callers must order saves for the same task id
// themselves (the board engine funnels them through one worker); the version
// check here only guards against stale writes from other processes sharing
// the table.
type TableMirror struct {
	table *aztables.Client
}

// NewTableMirror creates a TableMirror from the given connection string.
func NewTableMirror(connStr, tableName string) (*TableMirror, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableMirror{table: svc.NewClient(tableName)}, nil
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Priority    string `json:"Priority"`
	Status      string `json:"Status"`
	AssignedTo  string `json:"AssignedTo"`
	CreatedBy   string `json:"CreatedBy"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
	Version     int    `json:"Version"`
}

func (e taskEntity) task() domain.Task {
	createdAt, _ := time.Parse(time.RFC3339Nano, e.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, e.UpdatedAt)
	return domain.Task{
		ID:          e.RowKey,
		Title:       e.Title,
		Description: e.Description,
		Priority:    domain.Priority(e.Priority),
		Status:      domain.Status(e.Status),
		AssignedTo:  e.AssignedTo,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		Version:     e.Version,
	}
}

func newTaskEntity(t domain.Task) taskEntity {
	return taskEntity{
		Entity:      aztables.Entity{PartitionKey: taskPartition, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		AssignedTo:  t.AssignedTo,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   t.UpdatedAt.Format(time.RFC3339Nano),
		Version:     t.Version,
	}
}

// staleRow reports whether the stored row already carries the incoming
// version or a newer one.
func staleRow(raw []byte, incoming int) (bool, error) {
	var existing taskEntity
	if err := json.Unmarshal(raw, &existing); err != nil {
		return false, err
	}
	return existing.Version >= incoming, nil
}

// SaveTask upserts the task row unless the stored row is already at the same
// or a newer version.
func (m *TableMirror) SaveTask(ctx context.Context, t domain.Task) error {
	resp, err := m.table.GetEntity(ctx, taskPartition, t.ID, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if !errors.As(err, &respErr) || respErr.StatusCode != 404 {
			return err
		}
	} else {
		stale, err := staleRow(resp.Value, t.Version)
		if err != nil {
			return err
		}
		if stale {
			return nil
		}
	}

	data, err := json.Marshal(newTaskEntity(t))
	if err != nil {
		return err
	}
	_, err = m.table.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

// DeleteTask removes the task row. A missing row is not an error.
func (m *TableMirror) DeleteTask(ctx context.Context, id string) error {
	_, err := m.table.DeleteEntity(ctx, taskPartition, id, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil
		}
	}
	return err
}

// LoadTasks retrieves every persisted task, used to warm the board at boot.
func (m *TableMirror) LoadTasks(ctx context.Context) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + taskPartition + "'"
	pager := m.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, ent.task())
		}
	}
	return tasks, nil
}
