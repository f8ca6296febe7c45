package queue

import (
	"errors"
	"fmt"
	"sync"

	"batch-transcriber/internal/models"
)

// ErrRunInProgress is returned for queue mutations while a run owns the queue.
var ErrRunInProgress = errors.New("queue is owned by an active run")

// ErrNotRunning is returned when EndRun is called without a matching BeginRun.
var ErrNotRunning = errors.New("no active run")

// Queue is an ordered in-memory collection of job items. The caller owns it
// between runs; BeginRun transfers ownership to the orchestrator until EndRun.
// Item ids are assigned at Add time and never reused, including after Remove
// or Clear.
type Queue struct {
	mu      sync.Mutex
	nextID  int64
	items   []*models.JobItem
	byID    map[int64]*models.JobItem
	running bool
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{byID: make(map[int64]*models.JobItem)}
}

// Add enqueues one pending, selected item per path and returns the new ids
// in argument order.
func (q *Queue) Add(paths ...string) ([]int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return nil, ErrRunInProgress
	}

	ids := make([]int64, 0, len(paths))
	for _, path := range paths {
		q.nextID++
		item := &models.JobItem{
			ID:         q.nextID,
			SourcePath: path,
			Selected:   true,
			Status:     models.StatusPending,
		}
		q.items = append(q.items, item)
		q.byID[item.ID] = item
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// Remove deletes the given items. Unknown ids are an error and leave the
// queue unchanged.
func (q *Queue) Remove(ids ...int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return ErrRunInProgress
	}
	for _, id := range ids {
		if _, ok := q.byID[id]; !ok {
			return fmt.Errorf("unknown item id %d", id)
		}
	}

	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
		delete(q.byID, id)
	}
	kept := q.items[:0]
	for _, item := range q.items {
		if !drop[item.ID] {
			kept = append(kept, item)
		}
	}
	q.items = kept
	return nil
}

// SetSelected marks the given items as included in (or skipped by) the next
// run. Unselected items stay visible in snapshots.
func (q *Queue) SetSelected(selected bool, ids ...int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return ErrRunInProgress
	}
	for _, id := range ids {
		if _, ok := q.byID[id]; !ok {
			return fmt.Errorf("unknown item id %d", id)
		}
	}
	for _, id := range ids {
		q.byID[id].Selected = selected
	}
	return nil
}

// Clear drops all items. The id counter is not reset.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return ErrRunInProgress
	}
	q.items = nil
	q.byID = make(map[int64]*models.JobItem)
	return nil
}

// Snapshot returns copies of all items in insertion order.
func (q *Queue) Snapshot() []models.JobItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.JobItem, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, *item)
	}
	return out
}

// Len reports the number of items in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// SelectedCount reports how many items the next run would process.
func (q *Queue) SelectedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, item := range q.items {
		if item.Selected {
			n++
		}
	}
	return n
}

// BeginRun transfers ownership to the orchestrator and returns the live
// items in iteration order. Callers must pair it with EndRun.
func (q *Queue) BeginRun() ([]*models.JobItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return nil, ErrRunInProgress
	}
	q.running = true
	items := make([]*models.JobItem, len(q.items))
	copy(items, q.items)
	return items, nil
}

// EndRun returns ownership to the caller.
func (q *Queue) EndRun() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return ErrNotRunning
	}
	q.running = false
	return nil
}
