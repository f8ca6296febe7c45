package orchestrator

import (
	charmlog "github.com/charmbracelet/log"

	"batch-transcriber/internal/models"
)

// EventSink receives lifecycle events during a run. Events for item i are
// fully emitted (started, zero or more progress, exactly one terminal event)
// before any event for item i+1. Sink methods are called from the run's
// goroutine and must return quickly; a slow sink stalls the batch.
type EventSink interface {
	ItemStarted(id int64)
	ItemProgress(id int64, percent int)
	ItemSucceeded(id int64, result models.Transcript)
	ItemFailed(id int64, err models.ItemError)
	ItemCancelled(id int64)
	BatchProgress(done, total int)
	BatchFinished(result models.BatchResult)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) ItemStarted(int64)                      {}
func (NopSink) ItemProgress(int64, int)                {}
func (NopSink) ItemSucceeded(int64, models.Transcript) {}
func (NopSink) ItemFailed(int64, models.ItemError)     {}
func (NopSink) ItemCancelled(int64)                    {}
func (NopSink) BatchProgress(int, int)                 {}
func (NopSink) BatchFinished(models.BatchResult)       {}

// LogSink forwards events to a structured logger.
type LogSink struct {
	Logger *charmlog.Logger
}

func (s LogSink) ItemStarted(id int64) {
	s.Logger.Info("item started", "id", id)
}

func (s LogSink) ItemProgress(id int64, percent int) {
	s.Logger.Debug("item progress", "id", id, "percent", percent)
}

func (s LogSink) ItemSucceeded(id int64, result models.Transcript) {
	s.Logger.Info("item succeeded", "id", id, "language", result.Language, "segments", len(result.Segments))
}

func (s LogSink) ItemFailed(id int64, err models.ItemError) {
	s.Logger.Error("item failed", "id", id, "kind", err.Kind, "message", err.Message)
}

func (s LogSink) ItemCancelled(id int64) {
	s.Logger.Warn("item cancelled", "id", id)
}

func (s LogSink) BatchProgress(done, total int) {
	s.Logger.Info("batch progress", "done", done, "total", total)
}

func (s LogSink) BatchFinished(result models.BatchResult) {
	s.Logger.Info("batch finished",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"cancelled", result.Cancelled,
		"duration", result.Duration,
	)
}
