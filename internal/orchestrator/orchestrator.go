// Package orchestrator drives a queue of media files through the remote
// transcription service one item at a time, emitting lifecycle events and
// collecting an aggregate result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"batch-transcriber/internal/models"
	"batch-transcriber/internal/preprocess"
	"batch-transcriber/internal/queue"
	"batch-transcriber/internal/remote"
	"batch-transcriber/internal/telemetry"
)

// Options are the retry and polling policy knobs. Zero values take defaults.
type Options struct {
	// PollInterval is the fixed wait between status polls.
	PollInterval time.Duration
	// SubmitMaxAttempts bounds submissions per item, first attempt included.
	SubmitMaxAttempts int
	// PollFailureBudget bounds consecutive transport-level poll failures
	// before the item fails with the poll-exhausted kind.
	PollFailureBudget int
	// BackoffInitial and BackoffMax shape the exponential submit backoff.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.SubmitMaxAttempts <= 0 {
		o.SubmitMaxAttempts = 3
	}
	if o.PollFailureBudget <= 0 {
		o.PollFailureBudget = 3
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 10 * time.Second
	}
	return o
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPreprocessor normalizes each file before submission. A preprocessing
// failure is a rejected-class failure for that item.
func WithPreprocessor(p preprocess.Preprocessor) Option {
	return func(o *Orchestrator) { o.pre = p }
}

// Orchestrator runs batches sequentially against a remote task client.
// Items are never processed concurrently; this bounds remote-side load and
// keeps at most one in-flight transcript in memory beyond completed results.
type Orchestrator struct {
	client remote.Client
	opts   Options
	pre    preprocess.Preprocessor
}

// New builds an orchestrator around the given client and policy.
func New(client remote.Client, opts Options, optFns ...Option) *Orchestrator {
	o := &Orchestrator{
		client: client,
		opts:   opts.withDefaults(),
	}
	for _, fn := range optFns {
		fn(o)
	}
	return o
}

// Run drives every selected item in the queue to a terminal state and
// returns the aggregate result. Per-item failures are recorded on the items
// and never abort the batch; the only error Run returns is queue misuse
// (a run already in progress). Cancellation is cooperative: it is honored
// before each item starts and at every poll wait.
func (o *Orchestrator) Run(ctx context.Context, q *queue.Queue, sink EventSink) (models.BatchResult, error) {
	start := time.Now()

	items, err := q.BeginRun()
	if err != nil {
		return models.BatchResult{}, err
	}
	defer func() { _ = q.EndRun() }()

	if sink == nil {
		sink = NopSink{}
	}

	total := 0
	for _, it := range items {
		if it.Selected {
			total++
		}
	}

	res := models.BatchResult{}
	done := 0
	finish := func(it *models.JobItem) {
		switch it.Status {
		case models.StatusSucceeded:
			res.Succeeded++
			telemetry.ItemsSucceeded.Inc()
			sink.ItemSucceeded(it.ID, *it.Result)
		case models.StatusFailed:
			res.Failed++
			telemetry.ItemsFailed.Inc()
			sink.ItemFailed(it.ID, *it.Err)
		case models.StatusCancelled:
			res.Cancelled++
			telemetry.ItemsCancelled.Inc()
			sink.ItemCancelled(it.ID)
		}
		done++
		sink.BatchProgress(done, total)
	}

	if ctx.Err() != nil {
		// Cancelled before anything could be submitted: every selected item
		// is cancelled without a started event or a Submit call.
		for _, it := range items {
			if !it.Selected {
				continue
			}
			reset(it)
			it.Status = models.StatusCancelled
			finish(it)
		}
	} else {
		for _, it := range items {
			if !it.Selected {
				// Skipped entirely; stays pending in the final snapshot.
				continue
			}
			if ctx.Err() != nil {
				// Item-boundary cancellation: this item is cancelled,
				// anything after it stays pending. Clear any outcome from
				// a previous run; a cancelled item carries neither a
				// result nor an error.
				reset(it)
				it.Status = models.StatusCancelled
				finish(it)
				break
			}

			reset(it)
			sink.ItemStarted(it.ID)
			o.runItem(ctx, it, sink)
			finish(it)

			if it.Status == models.StatusCancelled {
				break
			}
		}
	}

	res.Duration = time.Since(start)
	res.Items = make([]models.JobItem, 0, len(items))
	for _, it := range items {
		res.Items = append(res.Items, *it)
	}

	sink.BatchFinished(res)
	return res, nil
}

// runItem takes one item from submitting to a terminal state.
func (o *Orchestrator) runItem(ctx context.Context, it *models.JobItem, sink EventSink) {
	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	it.Status = models.StatusSubmitting
	sink.ItemProgress(it.ID, it.Progress)

	path := it.SourcePath
	if o.pre != nil {
		prepared, err := o.pre.Prepare(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				it.Status = models.StatusCancelled
				return
			}
			fail(it, models.ErrKindRejected, fmt.Sprintf("preprocess %s: %v", it.SourcePath, err))
			return
		}
		if prepared.Cleanup != nil {
			defer func() { _ = prepared.Cleanup() }()
		}
		path = prepared.Path
	}

	handle, err := o.submit(ctx, it, path)
	if err != nil {
		if ctx.Err() != nil {
			it.Status = models.StatusCancelled
			return
		}
		var rej *remote.RejectedError
		if errors.As(err, &rej) {
			fail(it, models.ErrKindRejected, rej.Reason)
		} else {
			fail(it, models.ErrKindTransport, fmt.Sprintf("submit attempts exhausted: %v", err))
		}
		return
	}

	it.TaskHandle = handle
	it.Status = models.StatusQueued
	sink.ItemProgress(it.ID, it.Progress)

	o.pollUntilTerminal(ctx, it, sink)
}

// submit calls Submit with bounded retries and exponential backoff between
// attempts. Rejections return immediately; cancellation interrupts the
// backoff wait.
func (o *Orchestrator) submit(ctx context.Context, it *models.JobItem, path string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= o.opts.SubmitMaxAttempts; attempt++ {
		it.Attempts = attempt
		if attempt > 1 {
			telemetry.SubmitRetries.Inc()
			if err := sleepCtx(ctx, backoffWithJitter(o.opts.BackoffInitial, o.opts.BackoffMax, attempt-1)); err != nil {
				return "", err
			}
		}

		handle, err := o.client.Submit(ctx, path)
		if err == nil {
			return handle, nil
		}
		var rej *remote.RejectedError
		if errors.As(err, &rej) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// pollUntilTerminal polls the handle at a fixed interval until the remote
// task reaches a terminal status, the poll failure budget runs out, or the
// run is cancelled.
func (o *Orchestrator) pollUntilTerminal(ctx context.Context, it *models.JobItem, sink EventSink) {
	failures := 0
	for {
		if err := sleepCtx(ctx, o.opts.PollInterval); err != nil {
			o.cancelRemote(it)
			it.Status = models.StatusCancelled
			return
		}

		telemetry.PollCounter.Inc()
		state, err := o.client.Poll(ctx, it.TaskHandle)
		if err != nil {
			if ctx.Err() != nil {
				o.cancelRemote(it)
				it.Status = models.StatusCancelled
				return
			}
			failures++
			if failures >= o.opts.PollFailureBudget {
				fail(it, models.ErrKindPollExhausted, fmt.Sprintf("%d consecutive poll failures, last: %v", failures, err))
				return
			}
			continue
		}
		failures = 0

		switch state.Status {
		case remote.TaskPending, remote.TaskUnknown:
			// Still waiting. Unknown is transient and does not count
			// against the failure budget.
		case remote.TaskRunning:
			changed := it.Status != models.StatusProcessing
			it.Status = models.StatusProcessing
			if p := clampProgress(state.Progress); p > it.Progress {
				it.Progress = p
				changed = true
			}
			if changed {
				sink.ItemProgress(it.ID, it.Progress)
			}
		case remote.TaskSucceeded:
			tr, err := o.client.FetchResult(ctx, it.TaskHandle)
			if err != nil {
				if ctx.Err() != nil {
					it.Status = models.StatusCancelled
					return
				}
				fail(it, models.ErrKindFetch, fmt.Sprintf("result unavailable after remote success: %v", err))
				return
			}
			it.Result = &tr
			if it.Progress < 100 {
				it.Progress = 100
				sink.ItemProgress(it.ID, it.Progress)
			}
			it.Status = models.StatusSucceeded
			return
		case remote.TaskFailed:
			msg := state.Message
			if msg == "" {
				msg = "remote transcription failed"
			}
			fail(it, models.ErrKindRejected, msg)
			return
		}
	}
}

// cancelRemote asks the service to abort a submitted task when the client
// supports it. Best effort: the local item is cancelled either way and the
// handle stays on the snapshot for diagnostics.
func (o *Orchestrator) cancelRemote(it *models.JobItem) {
	canceller, ok := o.client.(remote.Canceller)
	if !ok || it.TaskHandle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = canceller.Cancel(ctx, it.TaskHandle)
}

// reset clears per-run state so a completed queue can be re-run with every
// item processed independently.
func reset(it *models.JobItem) {
	it.Status = models.StatusPending
	it.TaskHandle = ""
	it.Progress = 0
	it.Attempts = 0
	it.Result = nil
	it.Err = nil
}

func fail(it *models.JobItem, kind models.ErrorKind, msg string) {
	it.Status = models.StatusFailed
	it.Err = &models.ItemError{Kind: kind, Message: msg}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// sleepCtx waits for d or until the context is cancelled, whichever comes
// first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	if wait < 2 {
		return wait
	}
	jitter := time.Duration(rand.Int63n(int64(wait / 2)))
	return wait/2 + jitter
}
