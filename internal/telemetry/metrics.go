package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	ItemsSucceeded = prometheus.NewCounter(prometheus.CounterOpts{Name: "transcribe_items_succeeded_total", Help: "Batch items that reached succeeded"})
	ItemsFailed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "transcribe_items_failed_total", Help: "Batch items that reached failed"})
	ItemsCancelled = prometheus.NewCounter(prometheus.CounterOpts{Name: "transcribe_items_cancelled_total", Help: "Batch items cancelled before a natural terminal state"})
	SubmitRetries  = prometheus.NewCounter(prometheus.CounterOpts{Name: "transcribe_submit_retries_total", Help: "Submit attempts beyond the first"})
	PollCounter    = prometheus.NewCounter(prometheus.CounterOpts{Name: "transcribe_polls_total", Help: "Status polls issued against the remote service"})
	InFlightGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "transcribe_items_inflight", Help: "Items currently between submission and terminal state"})

	StubSubmissions = prometheus.NewCounter(prometheus.CounterOpts{Name: "asrmock_submissions_total", Help: "Tasks accepted by the mock service"})
	StubRejects     = prometheus.NewCounter(prometheus.CounterOpts{Name: "asrmock_rejects_total", Help: "Submissions rejected by the mock service"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			ItemsSucceeded,
			ItemsFailed,
			ItemsCancelled,
			SubmitRetries,
			PollCounter,
			InFlightGauge,
			StubSubmissions,
			StubRejects,
		)
	})
	return promhttp.Handler()
}
