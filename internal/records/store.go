// Package records is the durable per-file status store of a batch.
package records

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/Lllllllleong/documentrestoreflow/internal/models"
)

// Store persists batches and file records.
//
// ApplyResult and MarkFailed locate the record by exact object ref first and
// fall back to the ref's basename within the batch. A result that matches
// nothing, or whose basename matches more than one record, is reported as a
// *models.ReconciliationMismatch and changes nothing. The bool reports
// whether the record was written; a repeated or ignored update returns false.
type Store interface {
	Create(ctx context.Context, batch models.Batch, files []models.FileDescriptor) ([]models.FileRecord, error)
	GetBatch(ctx context.Context, batchID string) ([]models.FileRecord, error)
	MarkProcessing(ctx context.Context, batchID string) (int, error)
	ApplyResult(ctx context.Context, u models.ResultUpdate) (bool, error)
	MarkFailed(ctx context.Context, u models.FailureUpdate) (bool, error)
}

func newRecord(batch models.Batch, position int, d models.FileDescriptor) models.FileRecord {
	return models.FileRecord{
		ID:             d.ID,
		BatchID:        batch.ID,
		Position:       position,
		OriginalName:   d.OriginalName,
		ObjectRef:      d.ObjectRef.String(),
		ObjectBasename: d.ObjectRef.Basename(),
		UploaderID:     d.UploaderID,
		BranchID:       d.BranchID,
		DeclaredType:   d.DeclaredType,
		ContentType:    d.ContentType,
		SizeBytes:      d.SizeBytes,
		Status:         models.StatusUploaded,
		EnhancedRefs:   []string{},
		CreatedAt:      batch.CreatedAt,
		UpdatedAt:      batch.CreatedAt,
	}
}

func validateCreate(batch models.Batch, files []models.FileDescriptor) error {
	if batch.ID == "" {
		return fmt.Errorf("batch id must be set")
	}
	if len(files) == 0 {
		return fmt.Errorf("batch %s has no files", batch.ID)
	}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		ref := f.ObjectRef.String()
		if seen[ref] {
			return fmt.Errorf("object ref %s appears twice in batch %s", ref, batch.ID)
		}
		seen[ref] = true
	}
	return nil
}

// applyResult moves rec to enhanced. It reports whether rec changed.
// A failed record is terminal and ignores results; an enhanced record only
// takes the newest refs and classification.
func applyResult(rec *models.FileRecord, u models.ResultUpdate, now time.Time) bool {
	if rec.Status == models.StatusFailed {
		slog.Warn("Ignoring result for failed record.", "recordId", rec.ID, "objectRef", rec.ObjectRef)
		return false
	}
	refs := dedupe(u.EnhancedRefs)
	cls := &models.Classification{Label: u.Label, Confidence: u.Confidence}
	if u.Label == "" {
		cls = nil
	}

	if rec.Status == models.StatusEnhanced && slices.Equal(rec.EnhancedRefs, refs) && sameClassification(rec.Classification, cls) {
		return false
	}
	rec.Status = models.StatusEnhanced
	rec.EnhancedRefs = refs
	rec.Classification = cls
	rec.ErrorDetails = ""
	rec.UpdatedAt = now
	return true
}

// applyFailure moves rec to failed unless it is already terminal.
func applyFailure(rec *models.FileRecord, u models.FailureUpdate, now time.Time) bool {
	if rec.Status.IsTerminal() {
		slog.Warn("Ignoring failure for terminal record.", "recordId", rec.ID, "status", rec.Status, "objectRef", rec.ObjectRef)
		return false
	}
	rec.Status = models.StatusFailed
	rec.ErrorDetails = u.Error
	rec.UpdatedAt = now
	return true
}

// pickCandidate resolves a basename lookup that returned up to two rows.
func pickCandidate[T any](rows []T, batchID, ref string) (T, error) {
	var zero T
	switch len(rows) {
	case 0:
		return zero, &models.ReconciliationMismatch{BatchID: batchID, ObjectRef: ref}
	case 1:
		return rows[0], nil
	}
	slog.Warn("Refusing ambiguous basename match.", "batchId", batchID, "objectRef", ref, "candidates", len(rows))
	return zero, &models.ReconciliationMismatch{BatchID: batchID, ObjectRef: ref, Ambiguous: true}
}

func dedupe(refs []string) []string {
	out := make([]string, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

func sameClassification(a, b *models.Classification) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sortRecords(recs []models.FileRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Position != recs[j].Position {
			return recs[i].Position < recs[j].Position
		}
		return recs[i].ID < recs[j].ID
	})
}
