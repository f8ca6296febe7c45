// Package preprocess normalizes input media before submission.
package preprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Prepared is the outcome of preprocessing one file. Cleanup, when set,
// removes temporary artifacts and must be called after the file is no
// longer needed.
type Prepared struct {
	Path    string
	Cleanup func() error
}

// Preprocessor turns a source path into a path ready for submission.
type Preprocessor interface {
	Prepare(ctx context.Context, sourcePath string) (Prepared, error)
}

// Passthrough submits files as-is.
type Passthrough struct{}

func (Passthrough) Prepare(_ context.Context, sourcePath string) (Prepared, error) {
	return Prepared{Path: sourcePath}, nil
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// FFmpeg converts input media to 16 kHz mono PCM WAV in a temp directory,
// the format the transcription service expects.
type FFmpeg struct {
	ffmpegPath string
	runner     commandRunner
	mkdirTemp  func(dir, pattern string) (string, error)
	removeAll  func(path string) error
	stat       func(name string) (os.FileInfo, error)
}

// NewFFmpeg builds a preprocessor around the given ffmpeg binary.
func NewFFmpeg(ffmpegPath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpeg{
		ffmpegPath: ffmpegPath,
		runner:     execRunner{},
		mkdirTemp:  os.MkdirTemp,
		removeAll:  os.RemoveAll,
		stat:       os.Stat,
	}
}

// Prepare converts sourcePath and returns the converted file plus a cleanup
// for its temp directory.
func (f *FFmpeg) Prepare(ctx context.Context, sourcePath string) (Prepared, error) {
	if _, err := f.stat(sourcePath); err != nil {
		return Prepared{}, fmt.Errorf("cannot access input media %s: %w", sourcePath, err)
	}

	tempDir, err := f.mkdirTemp("", "batch-transcriber-*")
	if err != nil {
		return Prepared{}, fmt.Errorf("create temp workspace: %w", err)
	}
	cleanup := func() error { return f.removeAll(tempDir) }

	outPath := filepath.Join(tempDir, "normalized-16k-mono.wav")
	args := ffmpegArgs(sourcePath, outPath)
	result, err := f.runner.Run(ctx, f.ffmpegPath, args...)
	if err != nil {
		_ = cleanup()
		return Prepared{}, fmt.Errorf("ffmpeg conversion failed (exit=%d): %w", result.ExitCode, err)
	}
	if _, err := f.stat(outPath); err != nil {
		_ = cleanup()
		return Prepared{}, fmt.Errorf("ffmpeg completed but output is missing: %w", err)
	}

	return Prepared{Path: outPath, Cleanup: cleanup}, nil
}

// ffmpegArgs builds CLI args for mono 16k PCM WAV output.
func ffmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// newFFmpegForTests constructs a preprocessor with injectable dependencies.
func newFFmpegForTests(
	ffmpegPath string,
	runner commandRunner,
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
	stat func(name string) (os.FileInfo, error),
) *FFmpeg {
	return &FFmpeg{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		mkdirTemp:  mkdirTemp,
		removeAll:  removeAll,
		stat:       stat,
	}
}
