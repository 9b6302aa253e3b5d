package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Lllllllleong/documentrestoreflow/internal/classify"
	"github.com/Lllllllleong/documentrestoreflow/internal/config"
	"github.com/Lllllllleong/documentrestoreflow/internal/dispatch"
	"github.com/Lllllllleong/documentrestoreflow/internal/imaging"
	"github.com/Lllllllleong/documentrestoreflow/internal/objectstore"
	"github.com/Lllllllleong/documentrestoreflow/internal/records"
)

// Constructors used by the wiring; tests swap them for fakes.
var (
	openGateway    = objectstore.Open
	openRecords    = records.Open
	openDispatcher = dispatch.Open
	openClassifier = classify.Open
)

// closers releases clients in reverse order of creation.
type closers []func() error

// addCloser registers v's Close when v holds a client.
func (c *closers) addCloser(v any) {
	if cl, ok := v.(io.Closer); ok {
		*c = append(*c, cl.Close)
	}
}

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ingestion is the ingestion service built from configuration.
type Ingestion struct {
	Ingestor   *Ingestor
	Reconciler *Reconciler
	closers    closers
}

func (i *Ingestion) Close() error { return i.closers.Close() }

// NewIngestion connects the object store, record store and dispatcher.
func NewIngestion(ctx context.Context, cfg *config.Config) (*Ingestion, error) {
	var cs closers
	fail := func(err error) (*Ingestion, error) {
		_ = cs.Close()
		return nil, err
	}

	gw, err := openGateway(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to open object store: %w", err))
	}
	cs.addCloser(gw)
	store, closeStore, err := openRecords(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to open record store: %w", err))
	}
	cs = append(cs, closeStore)
	d, err := openDispatcher(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to open dispatcher: %w", err))
	}
	cs.addCloser(d)

	ing := NewIngestor(gw, store, d, IngestorConfig{
		MaxFileBytes:      cfg.Ingestion.MaxFileBytes,
		UploadConcurrency: cfg.Ingestion.UploadConcurrency,
	})
	slog.Info("Ingestion initialized.",
		"storage", cfg.Storage.Backend, "database", cfg.Database.Backend, "queue", cfg.Queue.Backend)
	return &Ingestion{Ingestor: ing, Reconciler: NewReconciler(store), closers: cs}, nil
}

// Worker is the preprocessing side built from configuration. Results go to
// the ingestion service's callback endpoint.
type Worker struct {
	Processor *Processor
	closers   closers
}

func (w *Worker) Close() error { return w.closers.Close() }

// NewWorker loads the classifier once and connects the object store.
func NewWorker(ctx context.Context, cfg *config.Config) (*Worker, error) {
	var cs closers
	gw, err := openGateway(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open object store: %w", err)
	}
	cs.addCloser(gw)
	cls, closeCls, err := openClassifier(ctx, cfg)
	if err != nil {
		_ = cs.Close()
		return nil, fmt.Errorf("failed to load classifier: %w", err)
	}
	cs = append(cs, closeCls)
	sink := NewCallbackClient(cfg.Ingestion.BaseURL, cfg.Callback.Timeout, cfg.Callback.Attempts)
	proc := NewProcessor(gw, cls, sink, ProcessorConfig{
		Policy:          WorkerPolicy(cfg),
		PageConcurrency: cfg.Worker.PageConcurrency,
	})
	slog.Info("Worker initialized.",
		"storage", cfg.Storage.Backend, "classifier", cfg.Classifier.Backend, "pageConcurrency", cfg.Worker.PageConcurrency)
	return &Worker{Processor: proc, closers: cs}, nil
}

// WorkerPolicy applies the configured overrides to the default restoration
// constants.
func WorkerPolicy(cfg *config.Config) imaging.Policy {
	p := imaging.DefaultPolicy()
	if cfg.Worker.MaxWidth > 0 {
		p.MaxWidth = cfg.Worker.MaxWidth
	}
	return p
}
