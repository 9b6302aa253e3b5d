package models

import (
	"errors"
	"fmt"
)

var (
	ErrBatchNotFound    = errors.New("batch not found")
	ErrObjectNotFound   = errors.New("object not found")
	ErrInvalidObjectRef = errors.New("invalid object ref")
)

// ValidationError rejects an upload before anything is persisted.
type ValidationError struct {
	FileName string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid file %q: %s", e.FileName, e.Reason)
}

// ExtractionError fails a whole item: the input could not be turned into pages.
type ExtractionError struct {
	ObjectRef string
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract pages from %s: %v", e.ObjectRef, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StageError is a skipped restoration stage. It never fails the page.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ClassificationError is attributed to one page of an item.
type ClassificationError struct {
	Page int
	Err  error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify page %d: %v", e.Page, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// DispatchError means the batch job never reached the work queue.
type DispatchError struct {
	BatchID string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch batch %s: %v", e.BatchID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// ReconciliationMismatch is a result that matched no record, even by basename.
type ReconciliationMismatch struct {
	BatchID   string
	ObjectRef string
	Ambiguous bool
}

func (e *ReconciliationMismatch) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("result for %s in batch %s matches more than one record", e.ObjectRef, e.BatchID)
	}
	return fmt.Sprintf("result for %s in batch %s matches no record", e.ObjectRef, e.BatchID)
}
