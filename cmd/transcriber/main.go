package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"batch-transcriber/internal/config"
	"batch-transcriber/internal/export"
	"batch-transcriber/internal/models"
	"batch-transcriber/internal/orchestrator"
	"batch-transcriber/internal/preprocess"
	"batch-transcriber/internal/queue"
	"batch-transcriber/internal/remote"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.Load()
	var verbose bool

	cmd := &cobra.Command{
		Use:   "transcriber [files...]",
		Short: "Transcribe a batch of media files against an async transcription service",
		Long: "Submits each file to the transcription service, polls its task until " +
			"a terminal status, fetches the transcript, and writes .txt (and " +
			"optionally .srt) outputs. One file failing never stops the batch.",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), cfg, args, verbose)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.ServiceBaseURL, "base-url", cfg.ServiceBaseURL, "transcription service base URL")
	flags.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "API key sent as a bearer token")
	flags.StringVar(&cfg.Language, "language", cfg.Language, "force a transcription language (default: auto-detect)")
	flags.StringVar(&cfg.ContextHint, "context", cfg.ContextHint, "domain hint sent with every submission")
	flags.StringVarP(&cfg.OutputDir, "output", "o", cfg.OutputDir, "output directory (default: next to each source file)")
	flags.BoolVar(&cfg.SaveSRT, "srt", cfg.SaveSRT, "also write .srt subtitles from the timed segments")
	flags.BoolVar(&cfg.SaveJSON, "json", cfg.SaveJSON, "also write the structured result as .json")
	flags.BoolVar(&cfg.Preprocess, "preprocess", cfg.Preprocess, "normalize media with ffmpeg before submission")
	flags.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "wait between status polls")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log per-item progress events")

	return cmd
}

func runBatch(parent context.Context, cfg config.Config, paths []string, verbose bool) error {
	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{ReportTimestamp: true})
	if verbose {
		logger.SetLevel(charmlog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	q := queue.New()
	if _, err := q.Add(paths...); err != nil {
		return err
	}

	client := remote.NewHTTPClient(cfg.ServiceBaseURL, cfg.APIKey,
		remote.WithContextHint(cfg.ContextHint),
		remote.WithLanguage(cfg.Language),
		remote.WithTimeout(cfg.HTTPTimeout),
	)

	opts := orchestrator.Options{
		PollInterval:      cfg.PollInterval,
		SubmitMaxAttempts: cfg.SubmitMaxAttempts,
		PollFailureBudget: cfg.PollFailureBudget,
		BackoffInitial:    cfg.BackoffInitial,
		BackoffMax:        cfg.BackoffMax,
	}
	var orchOpts []orchestrator.Option
	if cfg.Preprocess {
		orchOpts = append(orchOpts, orchestrator.WithPreprocessor(preprocess.NewFFmpeg(cfg.FFmpegPath)))
	}
	orch := orchestrator.New(client, opts, orchOpts...)

	logger.Info("starting batch", "files", len(paths), "service", cfg.ServiceBaseURL)
	result, err := orch.Run(ctx, q, orchestrator.LogSink{Logger: logger})
	if err != nil {
		return err
	}

	exporter := export.Exporter{OutputDir: cfg.OutputDir, SaveSRT: cfg.SaveSRT, SaveJSON: cfg.SaveJSON}
	for _, item := range result.Items {
		if item.Status != models.StatusSucceeded {
			continue
		}
		written, err := exporter.Export(item)
		if err != nil {
			logger.Error("export failed", "id", item.ID, "source", item.SourcePath, "err", err)
			continue
		}
		for _, p := range written {
			logger.Info("wrote", "path", p)
		}
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d selected items failed", result.Failed, result.Succeeded+result.Failed+result.Cancelled)
	}
	return nil
}
