package services

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/Lllllllleong/documentrestoreflow/internal/dispatch"
	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/Lllllllleong/documentrestoreflow/internal/objectstore"
	"github.com/Lllllllleong/documentrestoreflow/internal/records"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// AllowedContentTypes is the upload allow-list.
var AllowedContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"application/pdf": true,
}

// Upload is one file of an upload request, already read into memory.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

type UploadRequest struct {
	BranchID   string
	UploaderID string
	Files      []Upload
}

type IngestorConfig struct {
	MaxFileBytes      int64
	UploadConcurrency int
}

// Ingestor accepts uploads, records them and hands the batch to the workers.
type Ingestor struct {
	gateway    objectstore.Gateway
	store      records.Store
	dispatcher dispatch.Dispatcher
	config     IngestorConfig
}

func NewIngestor(gateway objectstore.Gateway, store records.Store, dispatcher dispatch.Dispatcher, cfg IngestorConfig) *Ingestor {
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 10 << 20
	}
	cfg.UploadConcurrency = max(cfg.UploadConcurrency, 1)
	return &Ingestor{gateway: gateway, store: store, dispatcher: dispatcher, config: cfg}
}

// Submit validates every file before anything is written, so a rejected
// request leaves no records behind. The records exist before the job is
// dispatched and move to processing once the dispatcher has accepted it.
// A dispatch failure is returned as *models.DispatchError and leaves the
// records uploaded.
func (i *Ingestor) Submit(ctx context.Context, req UploadRequest) (models.UploadResponse, error) {
	var resp models.UploadResponse
	contentTypes, err := i.validate(req.Files)
	if err != nil {
		return resp, err
	}

	batch := models.Batch{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	logCtx := slog.With("batchId", batch.ID)
	resp.BatchID = batch.ID

	descs := make([]models.FileDescriptor, len(req.Files))
	for n, f := range req.Files {
		descs[n] = models.FileDescriptor{
			ID:           uuid.NewString(),
			OriginalName: f.FileName,
			ObjectRef: models.ObjectRef{
				Container: i.gateway.Container(),
				Key:       objectKey(batch.ID, f.FileName),
			},
			UploaderID:   req.UploaderID,
			BranchID:     req.BranchID,
			DeclaredType: DeclaredType(f.FileName),
			ContentType:  contentTypes[n],
			SizeBytes:    int64(len(f.Data)),
		}
		batch.FileIDs = append(batch.FileIDs, descs[n].ID)
	}

	if err := i.storeBlobs(ctx, logCtx, req.Files, descs); err != nil {
		return resp, err
	}

	recs, err := i.store.Create(ctx, batch, descs)
	if err != nil {
		logCtx.Error("Failed to create file records.", "error", err)
		return resp, fmt.Errorf("failed to create file records: %w", err)
	}
	logCtx.Info("File records created.", "files", len(recs))

	job := models.BatchJob{BatchID: batch.ID}
	for _, rec := range recs {
		job.Items = append(job.Items, rec.ObjectRef)
	}
	jobID, err := i.dispatcher.Submit(ctx, job)
	if err != nil {
		logCtx.Error("Failed to dispatch batch job.", "error", err)
		return resp, &models.DispatchError{BatchID: batch.ID, Err: err}
	}
	resp.JobID = jobID
	logCtx = logCtx.With("jobId", jobID)

	status := models.StatusProcessing
	if _, err := i.store.MarkProcessing(ctx, batch.ID); err != nil {
		// Results still apply to uploaded records, so the batch is not lost.
		logCtx.Error("Failed to mark batch processing.", "error", err)
		status = models.StatusUploaded
	}

	for _, rec := range recs {
		resp.Files = append(resp.Files, models.UploadedFile{
			ID:        rec.ID,
			FileName:  rec.OriginalName,
			FileType:  rec.DeclaredType,
			Status:    status,
			ObjectRef: rec.ObjectRef,
		})
	}
	logCtx.Info("Batch submitted.", "files", len(recs))
	return resp, nil
}

// BatchStatus returns the current records of a batch.
func (i *Ingestor) BatchStatus(ctx context.Context, batchID string) (models.BatchStatusResponse, error) {
	recs, err := i.store.GetBatch(ctx, batchID)
	if err != nil {
		return models.BatchStatusResponse{}, err
	}
	return models.NewBatchStatusResponse(batchID, recs), nil
}

// validate checks size first, then type, and returns the resolved content
// type of every file.
func (i *Ingestor) validate(files []Upload) ([]string, error) {
	if len(files) == 0 {
		return nil, &models.ValidationError{Reason: "no files uploaded"}
	}
	types := make([]string, len(files))
	for n, f := range files {
		if f.FileName == "" {
			return nil, &models.ValidationError{Reason: "file name is missing"}
		}
		if int64(len(f.Data)) > i.config.MaxFileBytes {
			return nil, &models.ValidationError{
				FileName: f.FileName,
				Reason:   fmt.Sprintf("exceeds size limit of %d bytes", i.config.MaxFileBytes),
			}
		}
		ct := ResolveContentType(f.ContentType, f.FileName)
		if !AllowedContentTypes[ct] {
			return nil, &models.ValidationError{
				FileName: f.FileName,
				Reason:   fmt.Sprintf("unsupported file type %q", ct),
			}
		}
		types[n] = ct
	}
	return types, nil
}

func (i *Ingestor) storeBlobs(ctx context.Context, logCtx *slog.Logger, files []Upload, descs []models.FileDescriptor) error {
	logCtx.Info("Starting concurrent upload of files.", "files", len(files))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(i.config.UploadConcurrency)

	for n := range files {
		eg.Go(func() error {
			d := descs[n]
			if _, err := i.gateway.Put(gctx, d.ObjectRef.Key, files[n].Data, d.ContentType); err != nil {
				return fmt.Errorf("%s: %w", d.OriginalName, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logCtx.Error("One or more files failed to upload.", "error", err)
		return fmt.Errorf("failed to store uploads: %w", err)
	}
	return nil
}

// ResolveContentType uses the declared type when there is one and guesses
// from the extension otherwise. Parameters are dropped.
func ResolveContentType(declared, fileName string) string {
	ct := declared
	if ct == "" || ct == "application/octet-stream" {
		ct = mime.TypeByExtension(strings.ToLower(path.Ext(fileName)))
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	return strings.ToLower(ct)
}

// DeclaredType guesses the caller-facing file type from the file name.
func DeclaredType(fileName string) string {
	name := strings.ToLower(fileName)
	switch {
	case strings.Contains(name, "aadhaar"), strings.Contains(name, "aadhar"):
		return "aadhaar"
	case strings.Contains(name, "pan"):
		return "pan"
	case strings.Contains(name, "selfie"), strings.Contains(name, "photo"):
		return "photo"
	}
	return "document"
}

func objectKey(batchID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	return fmt.Sprintf("%s/%s_%s", batchID, strings.ReplaceAll(uuid.NewString(), "-", ""), name)
}
