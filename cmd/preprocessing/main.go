package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Lllllllleong/documentrestoreflow/internal/config"
	"github.com/Lllllllleong/documentrestoreflow/internal/dispatch"
	"github.com/Lllllllleong/documentrestoreflow/internal/httpapi"
	"github.com/Lllllllleong/documentrestoreflow/internal/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("Preprocessing service stopped with error.", "error", err)
		os.Exit(1)
	}
}

// run serves /process_batch and, with the redis queue backend, consumes
// queued jobs in the same process. On shutdown the consumer finishes the job
// it holds before the process exits.
func run() error {
	cfgFile := flag.String("config", "", "config file (default is ./config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker, err := services.NewWorker(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := worker.Close(); err != nil {
			slog.Error("Failed to close clients.", "error", err)
		}
	}()

	var wg sync.WaitGroup
	if cfg.Queue.Backend == "redis" {
		queue, err := dispatch.NewRedisQueue(ctx, cfg.Queue.RedisURL, cfg.Queue.Key)
		if err != nil {
			return err
		}
		defer queue.Close()

		consumer := queue.Consumer(cfg.Queue.ConsumerID, cfg.Queue.BlockTimeout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx, worker.Processor.ProcessJob); err != nil {
				slog.Error("Queue consumer failed.", "error", err)
				stop()
			}
		}()
	}

	server := &http.Server{
		Addr:              cfg.Preprocessing.Addr,
		Handler:           httpapi.NewPreprocessingRouter(httpapi.NewPreprocessingHandler(worker.Processor)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Preprocessing service listening.", "addr", cfg.Preprocessing.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
		stop()
	case <-ctx.Done():
	}

	slog.Info("Shutting down preprocessing service.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed.", "error", err)
	}
	wg.Wait()
	return serveErr
}
