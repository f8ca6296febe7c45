package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"batch-transcriber/internal/models"
)

func succeededItem(sourcePath string) models.JobItem {
	return models.JobItem{
		ID:         1,
		SourcePath: sourcePath,
		Status:     models.StatusSucceeded,
		Result: &models.Transcript{
			Text:     "Hello world. Goodbye world.",
			Language: "en",
			Segments: []models.Segment{
				{Index: 0, Start: 0, End: 2 * time.Second, Text: "Hello world."},
				{Index: 1, Start: 2 * time.Second, End: 4 * time.Second, Text: "Goodbye world."},
			},
		},
	}
}

func TestExportWritesLanguageLineAndTranscript(t *testing.T) {
	dir := t.TempDir()
	item := succeededItem(filepath.Join(dir, "meeting.mp3"))

	paths, err := Exporter{}.Export(item)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("paths = %v", paths)
	}
	if want := filepath.Join(dir, "meeting.txt"); paths[0] != want {
		t.Fatalf("txt path = %s, want %s", paths[0], want)
	}

	raw, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got, want := string(raw), "en\nHello world. Goodbye world.\n"; got != want {
		t.Fatalf("content = %q, want %q", got, want)
	}
}

func TestExportOmitsEmptyLanguageLine(t *testing.T) {
	dir := t.TempDir()
	item := succeededItem(filepath.Join(dir, "clip.wav"))
	item.Result.Language = ""

	paths, err := Exporter{}.Export(item)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	raw, _ := os.ReadFile(paths[0])
	if got := string(raw); got != "Hello world. Goodbye world.\n" {
		t.Fatalf("content = %q", got)
	}
}

func TestExportIntoOutputDir(t *testing.T) {
	out := filepath.Join(t.TempDir(), "transcripts")
	item := succeededItem("/media/session one.m4a")

	paths, err := Exporter{OutputDir: out}.Export(item)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if want := filepath.Join(out, "session one.txt"); paths[0] != want {
		t.Fatalf("txt path = %s, want %s", paths[0], want)
	}
	if _, err := os.Stat(paths[0]); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}

func TestExportWritesSRTFromSegments(t *testing.T) {
	dir := t.TempDir()
	item := succeededItem(filepath.Join(dir, "talk.mp3"))

	paths, err := Exporter{SaveSRT: true}.Export(item)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v, want txt and srt", paths)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "talk.srt"))
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	srt := string(raw)
	for _, want := range []string{
		"1\n",
		"00:00:00,000 --> 00:00:02,000",
		"Hello world.",
		"00:00:02,000 --> 00:00:04,000",
		"Goodbye world.",
	} {
		if !strings.Contains(srt, want) {
			t.Fatalf("srt missing %q:\n%s", want, srt)
		}
	}
}

func TestExportWritesStructuredJSON(t *testing.T) {
	dir := t.TempDir()
	item := succeededItem(filepath.Join(dir, "talk.mp3"))

	paths, err := Exporter{SaveJSON: true}.Export(item)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(paths) != 2 || paths[1] != filepath.Join(dir, "talk.json") {
		t.Fatalf("paths = %v", paths)
	}

	raw, err := os.ReadFile(paths[1])
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var out struct {
		Source   string `json:"source"`
		Language string `json:"language"`
		Text     string `json:"text"`
		Segments []struct {
			Index   int    `json:"index"`
			StartMs int64  `json:"start_ms"`
			EndMs   int64  `json:"end_ms"`
			Text    string `json:"text"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Source != item.SourcePath || out.Language != "en" || out.Text != "Hello world. Goodbye world." {
		t.Fatalf("json = %+v", out)
	}
	if len(out.Segments) != 2 {
		t.Fatalf("segments = %d", len(out.Segments))
	}
	if out.Segments[1].StartMs != 2000 || out.Segments[1].EndMs != 4000 || out.Segments[1].Text != "Goodbye world." {
		t.Fatalf("segment = %+v", out.Segments[1])
	}
}

func TestExportSkipsSRTWithoutSegments(t *testing.T) {
	dir := t.TempDir()
	item := succeededItem(filepath.Join(dir, "talk.mp3"))
	item.Result.Segments = nil

	paths, err := Exporter{SaveSRT: true}.Export(item)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("paths = %v, want only txt", paths)
	}
	if _, err := os.Stat(filepath.Join(dir, "talk.srt")); !os.IsNotExist(err) {
		t.Fatalf("unexpected srt file, stat err = %v", err)
	}
}

func TestExportWithoutResultFails(t *testing.T) {
	if _, err := (Exporter{}).Export(models.JobItem{ID: 7, SourcePath: "a.mp3"}); err == nil {
		t.Fatal("expected error for item without result")
	}
}
