package models

import "fmt"

// ErrorKind classifies why an item failed.
type ErrorKind string

const (
	// ErrKindTransport marks network-level failures after retries ran out.
	ErrKindTransport ErrorKind = "transport"
	// ErrKindRejected marks inputs the remote service declined, including
	// remote-reported processing failures. Not retryable.
	ErrKindRejected ErrorKind = "rejected"
	// ErrKindPollExhausted marks a run of consecutive poll errors that
	// exceeded the failure budget.
	ErrKindPollExhausted ErrorKind = "poll_exhausted"
	// ErrKindFetch marks a result that was unretrievable after the remote
	// service reported success.
	ErrKindFetch ErrorKind = "fetch"
)

// ItemError is the failure recorded on a JobItem. Per-item failures are data,
// not faults: they never propagate out of a run.
type ItemError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ItemError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
