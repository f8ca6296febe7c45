// Package asrstub is an in-memory stand-in for the remote transcription
// service. It speaks the same submit/poll/fetch HTTP protocol as the real
// provider so the adapter and CLI can run against it locally.
package asrstub

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"batch-transcriber/internal/ratelimit"
	"batch-transcriber/internal/telemetry"
)

// Task statuses on the wire.
const (
	statusPending   = "PENDING"
	statusRunning   = "RUNNING"
	statusSucceeded = "SUCCEEDED"
	statusFailed    = "FAILED"
)

var supportedExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".flac": true, ".ogg": true,
	".aac": true, ".mp4": true, ".mov": true, ".mkv": true, ".webm": true,
}

// Options configure the simulated service.
type Options struct {
	// ProcessingTime is how long a task takes from submission to success.
	// Zero makes tasks succeed on the first poll.
	ProcessingTime time.Duration
	// Limiter, when set, enforces a per-API-key submission quota.
	Limiter *ratelimit.TokenBucket
}

type task struct {
	id          string
	filename    string
	context     string
	language    string
	submittedAt time.Time
	cancelled   bool
	// failed marks media the simulator deterministically rejects at
	// processing time (filenames containing "corrupt").
	failed bool
}

// Server simulates the transcription provider.
type Server struct {
	opts Options
	now  func() time.Time

	mu    sync.Mutex
	tasks map[string]*task
}

// New constructs a stub server.
func New(opts Options) *Server {
	return &Server{
		opts:  opts,
		now:   time.Now,
		tasks: make(map[string]*task),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/v1/transcriptions", s.handleSubmit)
	r.Get("/v1/transcriptions/{id}", s.handlePoll)
	r.Get("/v1/transcriptions/{id}/result", s.handleResult)
	r.Post("/v1/transcriptions/{id}/cancel", s.handleCancel)
	return r
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

type taskResponse struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.opts.Limiter != nil {
		decision, err := s.opts.Limiter.Allow(r.Context(), apiKeyFromRequest(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "rate limit error")
			return
		}
		if !decision.Allowed {
			telemetry.StubRejects.Inc()
			if decision.RetryAfter > 0 {
				secs := int(math.Ceil(decision.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
			writeError(w, http.StatusTooManyRequests, "submission quota exceeded")
			return
		}
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		telemetry.StubRejects.Inc()
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("media")
	if err != nil {
		telemetry.StubRejects.Inc()
		writeError(w, http.StatusBadRequest, "media file is required")
		return
	}
	_ = file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !supportedExtensions[ext] {
		telemetry.StubRejects.Inc()
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unsupported media format %q", ext))
		return
	}

	t := &task{
		id:          uuid.NewString(),
		filename:    header.Filename,
		context:     r.FormValue("context"),
		language:    r.FormValue("language"),
		submittedAt: s.now(),
		failed:      strings.Contains(header.Filename, "corrupt"),
	}

	s.mu.Lock()
	s.tasks[t.id] = t
	s.mu.Unlock()

	telemetry.StubSubmissions.Inc()
	writeJSON(w, http.StatusAccepted, submitResponse{TaskID: t.id})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown task")
		return
	}
	writeJSON(w, http.StatusOK, s.describe(t))
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown task")
		return
	}
	if s.describe(t).Status != statusSucceeded {
		writeError(w, http.StatusConflict, "task has no result")
		return
	}
	writeJSON(w, http.StatusOK, s.transcriptFor(t))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	t, ok := s.tasks[id]
	if ok {
		t.cancelled = true
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "unknown task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) lookup(id string) (*task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// describe derives the task's current state from wall-clock progress through
// the simulated processing window.
func (s *Server) describe(t *task) taskResponse {
	s.mu.Lock()
	cancelled := t.cancelled
	s.mu.Unlock()

	resp := taskResponse{TaskID: t.id}
	if cancelled {
		resp.Status = statusFailed
		resp.Error = "task cancelled by client"
		return resp
	}

	elapsed := s.now().Sub(t.submittedAt)
	window := s.opts.ProcessingTime
	switch {
	case window <= 0 || elapsed >= window:
		if t.failed {
			resp.Status = statusFailed
			resp.Error = fmt.Sprintf("could not decode audio in %s", t.filename)
		} else {
			resp.Status = statusSucceeded
			resp.Progress = 100
		}
	case elapsed < window/10:
		resp.Status = statusPending
	default:
		resp.Status = statusRunning
		resp.Progress = int(elapsed * 100 / window)
	}
	return resp
}

type segmentPayload struct {
	Index    int    `json:"index"`
	StartMs  int64  `json:"start_ms"`
	EndMs    int64  `json:"end_ms"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Emotion  string `json:"emotion,omitempty"`
}

type transcriptPayload struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []segmentPayload `json:"segments"`
}

// transcriptFor fabricates a deterministic transcript for the uploaded file.
func (s *Server) transcriptFor(t *task) transcriptPayload {
	lang := t.language
	if lang == "" {
		lang = "en"
	}
	name := strings.TrimSuffix(t.filename, filepath.Ext(t.filename))
	lines := []string{
		fmt.Sprintf("Transcript of %s.", name),
		"This recording was processed by the mock transcription service.",
	}
	segments := make([]segmentPayload, 0, len(lines))
	for i, line := range lines {
		segments = append(segments, segmentPayload{
			Index:    i,
			StartMs:  int64(i) * 2000,
			EndMs:    int64(i+1) * 2000,
			Text:     line,
			Language: lang,
		})
	}
	return transcriptPayload{
		Text:     strings.Join(lines, " "),
		Language: lang,
		Segments: segments,
	}
}

func apiKeyFromRequest(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if key, ok := strings.CutPrefix(auth, "Bearer "); ok && key != "" {
		return key
	}
	return "anonymous"
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
