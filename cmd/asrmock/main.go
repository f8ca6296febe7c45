package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"batch-transcriber/internal/asrstub"
	"batch-transcriber/internal/config"
	"batch-transcriber/internal/ratelimit"
)

func main() {
	cfg := config.Load()
	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Prefix:          "asrmock",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
		<-ch
		cancel()
	}()

	opts := asrstub.Options{ProcessingTime: cfg.StubProcessing}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		opts.Limiter = ratelimit.NewTokenBucket(client, cfg.QuotaCapacity, cfg.QuotaRefill, time.Hour)
		logger.Info("submission quota enabled", "capacity", cfg.QuotaCapacity, "refill_per_sec", cfg.QuotaRefill)
	}

	server := asrstub.New(opts)
	httpServer := &http.Server{
		Addr:    cfg.StubAddr,
		Handler: server.Router(),
	}

	logger.Info("mock transcription service listening", "addr", cfg.StubAddr, "processing_time", cfg.StubProcessing)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
