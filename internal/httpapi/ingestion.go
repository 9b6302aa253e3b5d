package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/Lllllllleong/documentrestoreflow/internal/services"
	"github.com/go-chi/chi/v5"
)

// multipartMemory is how much of an upload is kept in memory before parts
// spill to temporary files.
const multipartMemory = 32 << 20

type IngestionHandler struct {
	uploader     Uploader
	receiver     CallbackReceiver
	maxFileBytes int64
}

// NewIngestionHandler reads at most maxFileBytes+1 bytes of every part so
// the size check in the uploader still sees oversize files.
func NewIngestionHandler(uploader Uploader, receiver CallbackReceiver, maxFileBytes int64) *IngestionHandler {
	return &IngestionHandler{uploader: uploader, receiver: receiver, maxFileBytes: maxFileBytes}
}

// Upload handles a multipart form with one or more "files" parts and the
// optional branch_id and uploader_id fields.
func (h *IngestionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	logCtx := requestLogger(r)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		logCtx.Warn("Could not parse upload form.", "error", err)
		writeError(w, http.StatusBadRequest, "expected a multipart form with files", "")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := services.UploadRequest{
		BranchID:   r.FormValue("branch_id"),
		UploaderID: r.FormValue("uploader_id"),
	}
	for _, fh := range r.MultipartForm.File["files"] {
		up, err := h.readPart(fh)
		if err != nil {
			logCtx.Error("Failed to read uploaded file.", "fileName", fh.Filename, "error", err)
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		req.Files = append(req.Files, up)
	}

	resp, err := h.uploader.Submit(r.Context(), req)
	if err != nil {
		var verr *models.ValidationError
		var derr *models.DispatchError
		switch {
		case errors.As(err, &verr):
			logCtx.Warn("Upload rejected.", "error", err)
			writeError(w, http.StatusBadRequest, verr.Error(), "")
		case errors.As(err, &derr):
			writeError(w, http.StatusInternalServerError, "failed to queue batch for processing", derr.BatchID)
		default:
			logCtx.Error("Upload failed.", "error", err)
			writeError(w, http.StatusInternalServerError, "upload failed", "")
		}
		return
	}
	logCtx.Info("Upload accepted.", "batchId", resp.BatchID, "jobId", resp.JobID, "files", len(resp.Files))
	writeJSON(w, http.StatusOK, resp)
}

func (h *IngestionHandler) readPart(fh *multipart.FileHeader) (services.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return services.Upload{}, fmt.Errorf("failed to open %q: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxFileBytes+1))
	if err != nil {
		return services.Upload{}, fmt.Errorf("failed to read %q: %w", fh.Filename, err)
	}
	return services.Upload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// BatchStatus returns the current records of a batch, 404 when it has none.
func (h *IngestionHandler) BatchStatus(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	logCtx := requestLogger(r).With("batchId", batchID)

	resp, err := h.uploader.BatchStatus(r.Context(), batchID)
	if errors.Is(err, models.ErrBatchNotFound) {
		writeError(w, http.StatusNotFound, "batch not found", batchID)
		return
	}
	if err != nil {
		logCtx.Error("Failed to load batch status.", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load batch status", batchID)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// PreprocessCallback receives the results of one finished batch. A body
// without batch_id still gets a status body; the receiver works out the batch.
func (h *IngestionHandler) PreprocessCallback(w http.ResponseWriter, r *http.Request) {
	logCtx := requestLogger(r)

	var req models.PreprocessCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logCtx.Warn("Could not decode callback body.", "error", err)
		writeError(w, http.StatusBadRequest, "could not parse JSON", "")
		return
	}
	logCtx = logCtx.With("batchId", req.BatchID)
	logCtx.Info("Preprocess callback received.", "results", len(req.Results))

	resp, err := h.receiver.Send(r.Context(), req)
	if err != nil {
		logCtx.Error("Failed to reconcile callback.", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to apply results", req.BatchID)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
