package models

import (
	"time"
)

// JobStatus enumerates the lifecycle states of a batch item.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusSubmitting JobStatus = "submitting"
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusSucceeded  JobStatus = "succeeded"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further automatic transition occurs.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// JobItem is the in-memory record of one file's lifecycle within a batch.
// IDs are assigned at enqueue time and never reused. Exactly one of Result
// and Err is set once the item is terminal; neither is set before that.
type JobItem struct {
	ID         int64       `json:"id"`
	SourcePath string      `json:"source_path"`
	Selected   bool        `json:"selected"`
	Status     JobStatus   `json:"status"`
	TaskHandle string      `json:"task_handle,omitempty"`
	Progress   int         `json:"progress"`
	Attempts   int         `json:"attempts"`
	Result     *Transcript `json:"result,omitempty"`
	Err        *ItemError  `json:"error,omitempty"`
}

// Segment is a timed span of transcript text.
type Segment struct {
	Index    int           `json:"index"`
	Start    time.Duration `json:"start"`
	End      time.Duration `json:"end"`
	Text     string        `json:"text"`
	Language string        `json:"language,omitempty"`
	Emotion  string        `json:"emotion,omitempty"`
}

// Transcript is the structured result fetched for a succeeded item.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// BatchResult summarizes one completed (or cancelled) run.
// Items holds final per-item snapshots in queue order.
type BatchResult struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
	Duration  time.Duration `json:"duration"`
	Items     []JobItem     `json:"items"`
}
