package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"batch-transcriber/internal/models"
)

// HTTPClient adapts the service's HTTP protocol to the Client contract.
// Task handles are the service's opaque task ids.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	contextHint string
	language    string
	httpClient  *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithContextHint attaches a domain hint sent with every submission.
func WithContextHint(hint string) HTTPOption {
	return func(c *HTTPClient) { c.contextHint = hint }
}

// WithLanguage forces a transcription language instead of auto-detection.
func WithLanguage(lang string) HTTPOption {
	return func(c *HTTPClient) { c.language = lang }
}

// WithTimeout overrides the per-request HTTP timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) { c.httpClient.Timeout = d }
}

// NewHTTPClient builds an adapter for the service at baseURL.
func NewHTTPClient(baseURL, apiKey string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
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

type errorResponse struct {
	Error string `json:"error"`
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

// Submit uploads the media file and returns the task handle.
func (c *HTTPClient) Submit(ctx context.Context, sourcePath string) (string, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return "", &RejectedError{Reason: fmt.Sprintf("cannot open %s: %v", sourcePath, err)}
	}
	defer f.Close()

	// Media files can be large; stream the multipart body through a pipe
	// instead of buffering it.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("media", filepath.Base(sourcePath))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil && c.contextHint != "" {
			err = mw.WriteField("context", c.contextHint)
		}
		if err == nil && c.language != "" {
			err = mw.WriteField("language", c.language)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcriptions", pr)
	if err != nil {
		return "", &TransportError{Op: "submit", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Op: "submit", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", c.statusError("submit", resp)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &TransportError{Op: "submit: decode response", Err: err}
	}
	if out.TaskID == "" {
		return "", &TransportError{Op: "submit", Err: fmt.Errorf("empty task_id in response")}
	}
	return out.TaskID, nil
}

// Poll reads the current remote status for a handle.
func (c *HTTPClient) Poll(ctx context.Context, handle string) (TaskState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.taskURL(handle), nil)
	if err != nil {
		return TaskState{}, &TransportError{Op: "poll", Err: err}
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TaskState{}, &TransportError{Op: "poll", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TaskState{}, &TransportError{Op: "poll", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var out taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return TaskState{}, &TransportError{Op: "poll: decode response", Err: err}
	}

	state := TaskState{Progress: out.Progress, Message: out.Error}
	switch out.Status {
	case string(TaskPending):
		state.Status = TaskPending
	case string(TaskRunning):
		state.Status = TaskRunning
	case string(TaskSucceeded):
		state.Status = TaskSucceeded
	case string(TaskFailed):
		state.Status = TaskFailed
	default:
		state.Status = TaskUnknown
	}
	return state, nil
}

// FetchResult retrieves the transcript artifact for a succeeded task.
func (c *HTTPClient) FetchResult(ctx context.Context, handle string) (models.Transcript, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.taskURL(handle)+"/result", nil)
	if err != nil {
		return models.Transcript{}, &TransportError{Op: "fetch", Err: err}
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Transcript{}, &TransportError{Op: "fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Transcript{}, &TransportError{Op: "fetch", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var payload transcriptPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.Transcript{}, &TransportError{Op: "fetch: decode response", Err: err}
	}

	tr := models.Transcript{
		Text:     payload.Text,
		Language: payload.Language,
		Segments: make([]models.Segment, 0, len(payload.Segments)),
	}
	for _, seg := range payload.Segments {
		tr.Segments = append(tr.Segments, models.Segment{
			Index:    seg.Index,
			Start:    time.Duration(seg.StartMs) * time.Millisecond,
			End:      time.Duration(seg.EndMs) * time.Millisecond,
			Text:     seg.Text,
			Language: seg.Language,
			Emotion:  seg.Emotion,
		})
	}
	return tr, nil
}

// Cancel requests a server-side abort. Best effort; the service may have
// already finished the task.
func (c *HTTPClient) Cancel(ctx context.Context, handle string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.taskURL(handle)+"/cancel", nil)
	if err != nil {
		return &TransportError{Op: "cancel", Err: err}
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: "cancel", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return &TransportError{Op: "cancel", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

func (c *HTTPClient) taskURL(handle string) string {
	return c.baseURL + "/v1/transcriptions/" + handle
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// statusError maps a non-success submit response to the error taxonomy:
// 4xx responses are rejections (bad input, quota), everything else is
// transport-level and retryable.
func (c *HTTPClient) statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	reason := strings.TrimSpace(string(raw))
	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != "" {
		reason = parsed.Error
	}
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &RejectedError{Reason: reason}
	}
	return &TransportError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, reason)}
}
