package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"syncboard/domain"
)

// ActivityQueue forwards activity records to an Azure queue so downstream
// consumers can process the audit trail beyond the in-process 20-entry cap.
type ActivityQueue struct {
	queue *azqueue.QueueClient
}

// NewActivityQueue creates an ActivityQueue from the given connection string.
func NewActivityQueue(connStr, queueName string) (*ActivityQueue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &ActivityQueue{queue: q}, nil
}

// EnqueueActivity sends one activity record to the queue.
func (q *ActivityQueue) EnqueueActivity(ctx context.Context, act domain.Activity) error {
	data, err := json.Marshal(act)
	if err != nil {
		return err
	}
	_, err = q.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}
