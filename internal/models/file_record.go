package models

import "time"

// FileStatus is the lifecycle state of a single uploaded file.
type FileStatus string

const (
	StatusUploaded   FileStatus = "uploaded"
	StatusProcessing FileStatus = "processing"
	StatusEnhanced   FileStatus = "enhanced"
	StatusFailed     FileStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s FileStatus) IsTerminal() bool {
	return s == StatusEnhanced || s == StatusFailed
}

// CanTransition reports whether the state machine allows s -> to.
// A result that arrives before dispatch acceptance was committed is allowed to
// move an uploaded record straight to a terminal state.
func (s FileStatus) CanTransition(to FileStatus) bool {
	switch s {
	case StatusUploaded:
		return to == StatusProcessing || to == StatusEnhanced || to == StatusFailed
	case StatusProcessing:
		return to == StatusEnhanced || to == StatusFailed
	}
	return false
}

// Classification is the document-type label assigned to a file.
type Classification struct {
	Label      string  `firestore:"label" json:"label"`
	Confidence float64 `firestore:"confidence" json:"confidence"`
}

// Batch is a set of files submitted together.
type Batch struct {
	ID        string    `firestore:"id" json:"batch_id"`
	CreatedAt time.Time `firestore:"createdAt" json:"created_at"`
	FileIDs   []string  `firestore:"fileIds" json:"file_ids"`
}

// FileRecord is the durable per-file status record.
// It is also the document shape stored in Firestore.
type FileRecord struct {
	ID             string          `firestore:"id"`
	BatchID        string          `firestore:"batchId"`
	Position       int             `firestore:"position"`
	OriginalName   string          `firestore:"originalName"`
	ObjectRef      string          `firestore:"objectRef"`
	ObjectBasename string          `firestore:"objectBasename"`
	UploaderID     string          `firestore:"uploaderId,omitempty"`
	BranchID       string          `firestore:"branchId,omitempty"`
	DeclaredType   string          `firestore:"declaredType"`
	ContentType    string          `firestore:"contentType,omitempty"`
	SizeBytes      int64           `firestore:"sizeBytes"`
	Status         FileStatus      `firestore:"status"`
	EnhancedRefs   []string        `firestore:"enhancedRefs"`
	Classification *Classification `firestore:"classification,omitempty"`
	ErrorDetails   string          `firestore:"errorDetails,omitempty"`
	CreatedAt      time.Time       `firestore:"createdAt"`
	UpdatedAt      time.Time       `firestore:"updatedAt"`
}

// FileDescriptor is what the ingestion boundary knows about a file before a
// record exists for it.
type FileDescriptor struct {
	ID           string
	OriginalName string
	ObjectRef    ObjectRef
	UploaderID   string
	BranchID     string
	DeclaredType string
	ContentType  string
	SizeBytes    int64
}

// ResultUpdate carries a successful processing outcome for one file.
type ResultUpdate struct {
	BatchID      string
	ObjectRef    string
	EnhancedRefs []string
	Label        string
	Confidence   float64
}

// FailureUpdate carries an unrecoverable processing outcome for one file.
type FailureUpdate struct {
	BatchID   string
	ObjectRef string
	Error     string
}
