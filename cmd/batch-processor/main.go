package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/documentrestoreflow/internal/config"
	"github.com/Lllllllleong/documentrestoreflow/internal/dispatch"
	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/Lllllllleong/documentrestoreflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	workerInstance *services.Worker
	once           sync.Once
	initErr        error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("ProcessBatchJob", processBatchJob)
}

// main is required by the Go Functions Framework.
func main() {}

// processBatchJob runs one batch job delivered as a CloudEvent, the
// event-driven deployment of the preprocessing worker. Configuration comes
// from DOCFLOW_* environment variables.
func processBatchJob(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		var cfg *config.Config
		cfg, initErr = config.Load(os.Getenv("DOCFLOW_CONFIG"))
		if initErr != nil {
			return
		}
		workerInstance, initErr = services.NewWorker(context.Background(), cfg)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	job, err := dispatch.JobFromEvent(e)
	if err != nil {
		// A malformed event never succeeds; acknowledge it instead of retrying.
		slog.Error("Dropping undecodable job event.", "eventId", e.ID(), "error", err)
		return nil
	}
	return runJob(ctx, workerInstance.Processor.ProcessJob, job)
}

// runJob hands job to run. A job without items can never succeed, so like a
// malformed event it is acknowledged with a log line rather than redelivered.
func runJob(ctx context.Context, run func(context.Context, models.BatchJob) error, job models.BatchJob) error {
	err := run(ctx, job)
	if errors.Is(err, services.ErrNoItems) {
		slog.Warn("Dropping job without items.", "batchId", job.BatchID)
		return nil
	}
	return err
}
