// Package httpapi exposes the ingestion and preprocessing services over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/Lllllllleong/documentrestoreflow/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Uploader is the ingestion side of the pipeline.
type Uploader interface {
	Submit(ctx context.Context, req services.UploadRequest) (models.UploadResponse, error)
	BatchStatus(ctx context.Context, batchID string) (models.BatchStatusResponse, error)
}

// CallbackReceiver applies the results a worker posts back.
type CallbackReceiver interface {
	Send(ctx context.Context, req models.PreprocessCallbackRequest) (models.PreprocessCallbackResponse, error)
}

// BatchProcessor runs one batch synchronously.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, req models.ProcessBatchRequest) (models.ProcessBatchResponse, error)
}

// NewIngestionRouter serves /upload, /batch_status/{batch_id},
// /preprocess_callback and /health.
func NewIngestionRouter(h *IngestionHandler) *chi.Mux {
	r := newRouter()
	r.Post("/upload", h.Upload)
	r.Get("/batch_status/{batch_id}", h.BatchStatus)
	r.Post("/preprocess_callback", h.PreprocessCallback)
	return r
}

// NewPreprocessingRouter serves /process_batch and /health.
func NewPreprocessingRouter(h *PreprocessingHandler) *chi.Mux {
	r := newRouter()
	r.Post("/process_batch", h.ProcessBatch)
	return r
}

func newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/health", health)
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger returns the default logger tagged with the chi request id.
func requestLogger(r *http.Request) *slog.Logger {
	return slog.With("requestId", middleware.GetReqID(r.Context()), "path", r.URL.Path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg, batchID string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg, BatchID: batchID})
}
