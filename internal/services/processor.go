package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/Lllllllleong/documentrestoreflow/internal/classify"
	"github.com/Lllllllleong/documentrestoreflow/internal/imaging"
	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/Lllllllleong/documentrestoreflow/internal/objectstore"
	"golang.org/x/sync/errgroup"
)

// ErrNoItems rejects a batch request without items.
var ErrNoItems = errors.New("no items to process")

// ResultSink receives the results of a finished batch. The callback client
// posts them to ingestion; a Reconciler applies them in process.
type ResultSink interface {
	Send(ctx context.Context, req models.PreprocessCallbackRequest) (models.PreprocessCallbackResponse, error)
}

type ProcessorConfig struct {
	Policy          imaging.Policy
	PageConcurrency int
}

// Processor runs the restoration pipeline over every item of a batch.
type Processor struct {
	gateway    objectstore.Gateway
	classifier classify.Classifier
	sink       ResultSink

	extractor *imaging.Extractor
	restorer  *imaging.Restorer
	assembler *imaging.Assembler

	pageConcurrency int
}

// NewProcessor wires the pipeline. sink may be nil, in which case results are
// only returned.
func NewProcessor(gateway objectstore.Gateway, classifier classify.Classifier, sink ResultSink, cfg ProcessorConfig) *Processor {
	return &Processor{
		gateway:         gateway,
		classifier:      classifier,
		sink:            sink,
		extractor:       imaging.NewExtractor(cfg.Policy),
		restorer:        imaging.NewRestorer(cfg.Policy),
		assembler:       imaging.NewAssembler(cfg.Policy),
		pageConcurrency: max(cfg.PageConcurrency, 1),
	}
}

// ProcessJob runs a queued job. It is the queue consumer's handler.
func (p *Processor) ProcessJob(ctx context.Context, job models.BatchJob) error {
	_, err := p.ProcessBatch(ctx, job.Request())
	return err
}

// ProcessBatch processes the items one after the other. An item that fails
// yields a single error result and never stops the batch. When a sink is
// configured the results are delivered to it afterwards; a delivery failure
// is logged, not returned.
func (p *Processor) ProcessBatch(ctx context.Context, req models.ProcessBatchRequest) (models.ProcessBatchResponse, error) {
	if len(req.Items) == 0 {
		return models.ProcessBatchResponse{}, ErrNoItems
	}
	logCtx := slog.With("batchId", req.BatchID)
	logCtx.Info("Processing batch.", "items", len(req.Items))

	details := []models.PageResult{}
	for _, item := range req.Items {
		details = append(details, p.processItem(ctx, logCtx, req.BatchID, item.Ref())...)
	}
	resp := models.ProcessBatchResponse{
		BatchID:   req.BatchID,
		Processed: len(details),
		Details:   details,
	}
	logCtx.Info("Batch processed.", "results", len(details))

	if p.sink != nil {
		cb := models.PreprocessCallbackRequest{BatchID: req.BatchID, Results: details}
		if _, err := p.sink.Send(ctx, cb); err != nil {
			logCtx.Error("Failed to deliver batch results.", "error", err)
		}
	}
	return resp, nil
}

func (p *Processor) processItem(ctx context.Context, logCtx *slog.Logger, batchID, original string) []models.PageResult {
	logCtx = logCtx.With("objectRef", original)

	ref, err := models.ParseObjectRef(original)
	if err != nil {
		return p.itemFailure(logCtx, original, "invalid object ref", err)
	}
	data, err := p.gateway.Get(ctx, ref)
	if err != nil {
		return p.itemFailure(logCtx, original, "failed to download original", err)
	}
	format := detectStoredFormat(data, ref.Key)
	pages, err := p.extractor.Extract(data, format)
	if err != nil {
		return p.itemFailure(logCtx, original, "failed to extract pages", &models.ExtractionError{ObjectRef: original, Err: err})
	}
	logCtx.Info("Pages extracted.", "format", format.String(), "pageCount", len(pages))

	base := strings.TrimSuffix(ref.Basename(), path.Ext(ref.Basename()))
	results := make([]models.PageResult, len(pages))
	restored := make([]imaging.Page, len(pages))

	var eg errgroup.Group
	eg.SetLimit(p.pageConcurrency)
	for i, page := range pages {
		eg.Go(func() error {
			restored[i], results[i] = p.processPage(ctx, logCtx, batchID, original, base, page)
			return nil
		})
	}
	_ = eg.Wait()

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	if format != imaging.FormatPDF {
		return results
	}
	if failed > 0 {
		logCtx.Warn("Skipping reassembly, some pages failed.", "failedPages", failed)
		return results
	}
	assembled, err := p.reassemble(ctx, batchID, original, base, restored, len(pages))
	if err != nil {
		return append(results, p.itemFailure(logCtx, original, "failed to reassemble pages", err)...)
	}
	logCtx.Info("Pages reassembled.", "enhanced", assembled.Enhanced)
	return append(results, assembled)
}

// processPage restores, classifies and stores one page. Restoration always
// yields an image; classification or upload failures fail only this page.
func (p *Processor) processPage(ctx context.Context, logCtx *slog.Logger, batchID, original, base string, page imaging.Page) (imaging.Page, models.PageResult) {
	pageLog := logCtx.With("page", page.Index)
	res := models.PageResult{Original: original, Page: page.Index, Kind: models.ResultKindPage}

	img, skipped := p.restorer.Restore(pageLog, page.Image)
	out := imaging.Page{Index: page.Index, Image: img}
	if len(skipped) > 0 {
		pageLog.Info("Page restored with skipped stages.", "skipped", len(skipped))
	}

	pred, err := p.classifier.Classify(ctx, img)
	if err != nil {
		clsErr := &models.ClassificationError{Page: page.Index, Err: err}
		pageLog.Error("Failed to classify page.", "error", err)
		res.Error = clsErr.Error()
		return out, res
	}

	png, err := imaging.EncodePNG(img)
	if err != nil {
		pageLog.Error("Failed to encode restored page.", "error", err)
		res.Error = fmt.Sprintf("page %d: %v", page.Index, err)
		return out, res
	}
	key := fmt.Sprintf("enhanced/%s/%s_p%03d_enhanced.png", batchID, base, page.Index)
	ref, err := p.gateway.Put(ctx, key, png, "image/png")
	if err != nil {
		pageLog.Error("Failed to store restored page.", "error", err)
		res.Error = fmt.Sprintf("page %d: failed to store restored page: %v", page.Index, err)
		return out, res
	}

	res.Enhanced = ref.String()
	res.Label = string(pred.Label)
	res.Confidence = pred.Confidence
	res.SizeBytes = int64(len(png))
	return out, res
}

func (p *Processor) reassemble(ctx context.Context, batchID, original, base string, pages []imaging.Page, expected int) (models.PageResult, error) {
	pdf, err := p.assembler.Assemble(pages, expected)
	if err != nil {
		return models.PageResult{}, err
	}
	key := fmt.Sprintf("enhanced/%s/%s_enhanced.pdf", batchID, base)
	ref, err := p.gateway.Put(ctx, key, pdf, "application/pdf")
	if err != nil {
		return models.PageResult{}, fmt.Errorf("failed to store reassembled pdf: %w", err)
	}
	return models.PageResult{
		Original:  original,
		Enhanced:  ref.String(),
		Kind:      models.ResultKindAssembled,
		SizeBytes: int64(len(pdf)),
	}, nil
}

// itemFailure logs and converts an item-level error into its single result.
func (p *Processor) itemFailure(logCtx *slog.Logger, original, message string, err error) []models.PageResult {
	fullError := fmt.Sprintf("%s: %v", message, err)
	logCtx.Error(message, "error", err)
	return []models.PageResult{{Original: original, Error: fullError}}
}

// detectStoredFormat sniffs the stored bytes; the key suffix decides when the
// content is not recognisable.
func detectStoredFormat(data []byte, key string) imaging.Format {
	if http.DetectContentType(data) == "application/pdf" {
		return imaging.FormatPDF
	}
	return imaging.DetectFormat("", key)
}
