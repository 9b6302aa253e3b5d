package models

import "time"

// These structs define the JSON payloads exchanged between the ingestion
// service, the job queue and the preprocessing workers.

// BatchJob is the unit handed to the job dispatcher.
type BatchJob struct {
	BatchID string   `json:"batch_id"`
	Items   []string `json:"items"`
}

// ProcessItem references one stored original. object_path is the legacy name
// of the same field and is still accepted.
type ProcessItem struct {
	ObjectRef  string `json:"object_ref,omitempty"`
	ObjectPath string `json:"object_path,omitempty"`
}

// Ref returns whichever of the two ref fields is set.
func (i ProcessItem) Ref() string {
	if i.ObjectRef != "" {
		return i.ObjectRef
	}
	return i.ObjectPath
}

// ProcessBatchRequest is the input for /process_batch.
type ProcessBatchRequest struct {
	BatchID string        `json:"batch_id"`
	Items   []ProcessItem `json:"items"`
}

// Result kinds carried by PageResult.
const (
	ResultKindPage      = "page"
	ResultKindAssembled = "assembled"
)

// PageResult is one per-page (or per-item error) outcome of processing.
type PageResult struct {
	Original   string  `json:"original"`
	Enhanced   string  `json:"enhanced,omitempty"`
	Page       int     `json:"page,omitempty"`
	Kind       string  `json:"kind,omitempty"`
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	SizeBytes  int64   `json:"size_bytes,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Failed reports whether the result carries an error instead of output.
func (r PageResult) Failed() bool {
	return r.Error != ""
}

// ProcessBatchResponse is the output of /process_batch.
type ProcessBatchResponse struct {
	BatchID   string       `json:"batch_id"`
	Processed int          `json:"processed"`
	Details   []PageResult `json:"details"`
}

// PreprocessCallbackRequest is the body the workers post back to ingestion.
type PreprocessCallbackRequest struct {
	BatchID string       `json:"batch_id"`
	Results []PageResult `json:"results"`
}

// PreprocessCallbackResponse acknowledges a callback.
type PreprocessCallbackResponse struct {
	Status           string `json:"status"`
	BatchID          string `json:"batch_id"`
	UpdatedRecords   int    `json:"updated_records"`
	FailedRecords    int    `json:"failed_records"`
	UnmatchedResults int    `json:"unmatched_results"`
}

// UploadedFile describes one accepted file in the upload response.
type UploadedFile struct {
	ID        string     `json:"id"`
	FileName  string     `json:"file_name"`
	FileType  string     `json:"file_type"`
	Status    FileStatus `json:"status"`
	ObjectRef string     `json:"object_ref"`
}

// UploadResponse is the output of /upload.
type UploadResponse struct {
	BatchID string         `json:"batch_id"`
	JobID   string         `json:"job_id"`
	Files   []UploadedFile `json:"files"`
}

// ErrorResponse is the JSON error body. BatchID is set when the failure
// happened after the batch was created.
type ErrorResponse struct {
	Error   string `json:"error"`
	BatchID string `json:"batch_id,omitempty"`
}

// BatchStatusFile is one file entry of /batch_status.
type BatchStatusFile struct {
	ID             string          `json:"id"`
	FileName       string          `json:"file_name"`
	FileType       string          `json:"file_type"`
	Status         FileStatus      `json:"status"`
	ObjectRef      string          `json:"object_ref"`
	EnhancedRefs   []string        `json:"enhanced_refs"`
	Classification *Classification `json:"classification,omitempty"`
	Error          string          `json:"error,omitempty"`
	UploadedAt     time.Time       `json:"uploaded_at"`
}

// BatchStatusResponse is the output of /batch_status/{batch_id}.
type BatchStatusResponse struct {
	BatchID string            `json:"batch_id"`
	Files   []BatchStatusFile `json:"files"`
}

// NewBatchStatusResponse projects records onto the status payload.
func NewBatchStatusResponse(batchID string, records []FileRecord) BatchStatusResponse {
	files := make([]BatchStatusFile, 0, len(records))
	for _, rec := range records {
		refs := rec.EnhancedRefs
		if refs == nil {
			refs = []string{}
		}
		files = append(files, BatchStatusFile{
			ID:             rec.ID,
			FileName:       rec.OriginalName,
			FileType:       rec.DeclaredType,
			Status:         rec.Status,
			ObjectRef:      rec.ObjectRef,
			EnhancedRefs:   refs,
			Classification: rec.Classification,
			Error:          rec.ErrorDetails,
			UploadedAt:     rec.CreatedAt,
		})
	}
	return BatchStatusResponse{BatchID: batchID, Files: files}
}

// Request converts a queued job into the /process_batch input.
func (j BatchJob) Request() ProcessBatchRequest {
	items := make([]ProcessItem, len(j.Items))
	for i, ref := range j.Items {
		items[i] = ProcessItem{ObjectRef: ref}
	}
	return ProcessBatchRequest{BatchID: j.BatchID, Items: items}
}
