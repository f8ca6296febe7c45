package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"batch-transcriber/internal/asrstub"
	"batch-transcriber/internal/ratelimit"
	"batch-transcriber/internal/remote"
)

func newStubServer(t *testing.T, opts asrstub.Options) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(asrstub.New(opts).Router())
	t.Cleanup(srv.Close)
	return srv
}

func writeTempMedia(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("not really audio"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	return path
}

func TestSubmitPollFetchRoundTrip(t *testing.T) {
	srv := newStubServer(t, asrstub.Options{ProcessingTime: 0})
	client := remote.NewHTTPClient(srv.URL, "test-key",
		remote.WithContextHint("weekly standup"),
		remote.WithLanguage("en"),
	)
	ctx := context.Background()

	handle, err := client.Submit(ctx, writeTempMedia(t, "standup.wav"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if handle == "" {
		t.Fatal("empty task handle")
	}

	state, err := client.Poll(ctx, handle)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state.Status != remote.TaskSucceeded || state.Progress != 100 {
		t.Fatalf("state = %+v", state)
	}

	tr, err := client.FetchResult(ctx, handle)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if tr.Language != "en" {
		t.Fatalf("language = %q", tr.Language)
	}
	if !strings.Contains(tr.Text, "standup") {
		t.Fatalf("text = %q", tr.Text)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("segments = %d", len(tr.Segments))
	}
	if tr.Segments[1].Start != 2*time.Second || tr.Segments[1].End != 4*time.Second {
		t.Fatalf("segment timing = %+v", tr.Segments[1])
	}

	if err := client.Cancel(ctx, handle); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

func TestSubmitUnsupportedFormatIsRejected(t *testing.T) {
	srv := newStubServer(t, asrstub.Options{})
	client := remote.NewHTTPClient(srv.URL, "")

	_, err := client.Submit(context.Background(), writeTempMedia(t, "notes.txt"))
	var rejected *remote.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %v, want RejectedError", err)
	}
	if !strings.Contains(rejected.Reason, "unsupported") {
		t.Fatalf("reason = %q", rejected.Reason)
	}
}

func TestSubmitMissingFileIsRejected(t *testing.T) {
	srv := newStubServer(t, asrstub.Options{})
	client := remote.NewHTTPClient(srv.URL, "")

	_, err := client.Submit(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	var rejected *remote.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %v, want RejectedError", err)
	}
}

func TestSubmitQuotaExceededIsRejected(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	srv := newStubServer(t, asrstub.Options{
		Limiter: ratelimit.NewTokenBucket(rdb, 1, 0, time.Hour),
	})
	client := remote.NewHTTPClient(srv.URL, "quota-key")
	ctx := context.Background()

	if _, err := client.Submit(ctx, writeTempMedia(t, "first.wav")); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err := client.Submit(ctx, writeTempMedia(t, "second.wav"))
	var rejected *remote.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %v, want RejectedError", err)
	}
	if !strings.Contains(rejected.Reason, "quota") {
		t.Fatalf("reason = %q", rejected.Reason)
	}
}

func TestServerErrorsAreTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	client := remote.NewHTTPClient(srv.URL, "")
	ctx := context.Background()

	_, err := client.Submit(ctx, writeTempMedia(t, "clip.wav"))
	var transport *remote.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("submit err = %v, want TransportError", err)
	}

	if _, err := client.Poll(ctx, "whatever"); !errors.As(err, &transport) {
		t.Fatalf("poll err = %v, want TransportError", err)
	}
	if _, err := client.FetchResult(ctx, "whatever"); !errors.As(err, &transport) {
		t.Fatalf("fetch err = %v, want TransportError", err)
	}
}

func TestPollUnknownTaskIsTransport(t *testing.T) {
	srv := newStubServer(t, asrstub.Options{})
	client := remote.NewHTTPClient(srv.URL, "")

	_, err := client.Poll(context.Background(), "no-such-task")
	var transport *remote.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}

func TestPollMapsUnrecognizedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task_id":"t1","status":"MIGRATING","progress":12}`))
	}))
	t.Cleanup(srv.Close)
	client := remote.NewHTTPClient(srv.URL, "")

	state, err := client.Poll(context.Background(), "t1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state.Status != remote.TaskUnknown {
		t.Fatalf("status = %q, want unknown", state.Status)
	}
}

func TestCancelledTaskPollsAsFailed(t *testing.T) {
	srv := newStubServer(t, asrstub.Options{ProcessingTime: time.Hour})
	client := remote.NewHTTPClient(srv.URL, "")
	ctx := context.Background()

	handle, err := client.Submit(ctx, writeTempMedia(t, "long.wav"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := client.Cancel(ctx, handle); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	state, err := client.Poll(ctx, handle)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state.Status != remote.TaskFailed || !strings.Contains(state.Message, "cancelled") {
		t.Fatalf("state = %+v", state)
	}
}
