// Package export writes transcription results to disk.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/asticode/go-astisub"

	"batch-transcriber/internal/models"
)

// Exporter writes one .txt per succeeded item (detected-language line
// followed by the transcript) and optionally an .srt built from the timed
// segments and a .json with the full structured result.
type Exporter struct {
	// OutputDir receives the files; empty means next to the source file.
	OutputDir string
	SaveSRT   bool
	SaveJSON  bool
}

// Export writes the outputs for a succeeded item and returns the paths
// written. Items without a result are an error.
func (e Exporter) Export(item models.JobItem) ([]string, error) {
	if item.Result == nil {
		return nil, fmt.Errorf("item %d has no result", item.ID)
	}

	base := e.basePath(item.SourcePath)
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	txtPath := base + ".txt"
	if err := writeText(txtPath, *item.Result); err != nil {
		return nil, err
	}
	paths := []string{txtPath}

	if e.SaveSRT && len(item.Result.Segments) > 0 {
		srtPath := base + ".srt"
		if err := writeSRT(srtPath, *item.Result); err != nil {
			return paths, err
		}
		paths = append(paths, srtPath)
	}

	if e.SaveJSON {
		jsonPath := base + ".json"
		if err := writeJSON(jsonPath, item); err != nil {
			return paths, err
		}
		paths = append(paths, jsonPath)
	}
	return paths, nil
}

// basePath strips the media extension and relocates into OutputDir when set.
func (e Exporter) basePath(sourcePath string) string {
	name := filepath.Base(sourcePath)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if name == "" || name == "." {
		name = "transcript"
	}
	if e.OutputDir != "" {
		return filepath.Join(e.OutputDir, name)
	}
	return filepath.Join(filepath.Dir(sourcePath), name)
}

func writeText(path string, tr models.Transcript) error {
	var b strings.Builder
	if tr.Language != "" {
		b.WriteString(tr.Language)
		b.WriteString("\n")
	}
	b.WriteString(tr.Text)
	b.WriteString("\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// jsonSegment mirrors models.Segment with millisecond timestamps, which are
// friendlier to downstream consumers than duration nanoseconds.
type jsonSegment struct {
	Index    int    `json:"index"`
	StartMs  int64  `json:"start_ms"`
	EndMs    int64  `json:"end_ms"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Emotion  string `json:"emotion,omitempty"`
}

type jsonTranscript struct {
	Source   string        `json:"source"`
	Language string        `json:"language"`
	Text     string        `json:"text"`
	Segments []jsonSegment `json:"segments"`
}

func writeJSON(path string, item models.JobItem) error {
	out := jsonTranscript{
		Source:   item.SourcePath,
		Language: item.Result.Language,
		Text:     item.Result.Text,
		Segments: make([]jsonSegment, 0, len(item.Result.Segments)),
	}
	for _, seg := range item.Result.Segments {
		out.Segments = append(out.Segments, jsonSegment{
			Index:    seg.Index,
			StartMs:  seg.Start.Milliseconds(),
			EndMs:    seg.End.Milliseconds(),
			Text:     seg.Text,
			Language: seg.Language,
			Emotion:  seg.Emotion,
		})
	}

	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write result json: %w", err)
	}
	return nil
}

func writeSRT(path string, tr models.Transcript) error {
	subs := astisub.NewSubtitles()
	for _, seg := range tr.Segments {
		subs.Items = append(subs.Items, &astisub.Item{
			StartAt: seg.Start,
			EndAt:   seg.End,
			Lines: []astisub.Line{
				{Items: []astisub.LineItem{{Text: seg.Text}}},
			},
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create subtitle file: %w", err)
	}
	defer f.Close()

	if err := subs.WriteToSRT(f); err != nil {
		return fmt.Errorf("write subtitles: %w", err)
	}
	return nil
}
