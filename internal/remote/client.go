// Package remote defines the contract the orchestrator requires from the
// transcription service and an adapter over its HTTP submit/poll protocol.
package remote

import (
	"context"
	"fmt"

	"batch-transcriber/internal/models"
)

// TaskStatus is the remote-reported state of a submitted task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskSucceeded TaskStatus = "SUCCEEDED"
	TaskFailed    TaskStatus = "FAILED"
	// TaskUnknown is a transient condition, not a terminal failure.
	TaskUnknown TaskStatus = "UNKNOWN"
)

// TaskState is one poll observation.
type TaskState struct {
	Status TaskStatus
	// Progress is a best-effort percentage, 0 when the service does not
	// report one.
	Progress int
	// Message carries the remote failure reason when Status is TaskFailed.
	Message string
}

// Client is the async protocol boundary: submit a job, poll its handle until
// a terminal status, then fetch the result artifact. Implementations hold no
// batch logic.
type Client interface {
	Submit(ctx context.Context, sourcePath string) (string, error)
	Poll(ctx context.Context, handle string) (TaskState, error)
	FetchResult(ctx context.Context, handle string) (models.Transcript, error)
}

// Canceller is implemented by clients whose service supports server-side
// abort. The orchestrator calls it opportunistically; failures are ignored.
type Canceller interface {
	Cancel(ctx context.Context, handle string) error
}

// TransportError is a network-level failure. Retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedError means the service declined the input (unsupported format,
// quota, remote processing failure). Not retryable.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "rejected: " + e.Reason
}
