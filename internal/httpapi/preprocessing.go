package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/Lllllllleong/documentrestoreflow/internal/services"
)

type PreprocessingHandler struct {
	processor BatchProcessor
}

func NewPreprocessingHandler(processor BatchProcessor) *PreprocessingHandler {
	return &PreprocessingHandler{processor: processor}
}

// ProcessBatch runs a batch to completion before answering. The callback to
// ingestion is a side effect of the processor.
func (h *PreprocessingHandler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	logCtx := requestLogger(r)

	var req models.ProcessBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logCtx.Warn("Could not decode request body.", "error", err)
		writeError(w, http.StatusBadRequest, "could not parse JSON", "")
		return
	}

	resp, err := h.processor.ProcessBatch(r.Context(), req)
	if errors.Is(err, services.ErrNoItems) {
		writeError(w, http.StatusBadRequest, "items empty", req.BatchID)
		return
	}
	if err != nil {
		logCtx.Error("Batch processing failed.", "batchId", req.BatchID, "error", err)
		writeError(w, http.StatusInternalServerError, "processing failed", req.BatchID)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
