package records

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// transactionAttempts bounds retries when several results race on one record.
const transactionAttempts = 10

// FirestoreStore keeps one document per file record, keyed by record id,
// plus one document per batch.
type FirestoreStore struct {
	client  *firestore.Client
	records *firestore.CollectionRef
	batches *firestore.CollectionRef
}

func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	return &FirestoreStore{
		client:  client,
		records: client.Collection(collection),
		batches: client.Collection(collection + "_batches"),
	}
}

func (s *FirestoreStore) Create(ctx context.Context, batch models.Batch, files []models.FileDescriptor) ([]models.FileRecord, error) {
	if err := validateCreate(batch, files); err != nil {
		return nil, err
	}
	recs := make([]models.FileRecord, len(files))
	for i, f := range files {
		recs[i] = newRecord(batch, i, f)
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Object refs are unique across the collection.
		for _, rec := range recs {
			docs, err := tx.Documents(s.records.Where("objectRef", "==", rec.ObjectRef).Limit(1)).GetAll()
			if err != nil {
				return fmt.Errorf("failed to check object ref %s: %w", rec.ObjectRef, err)
			}
			if len(docs) > 0 {
				return fmt.Errorf("object ref %s already recorded", rec.ObjectRef)
			}
		}
		if err := tx.Create(s.batches.Doc(batch.ID), batch); err != nil {
			return fmt.Errorf("failed to create batch: %w", err)
		}
		for _, rec := range recs {
			if err := tx.Create(s.records.Doc(rec.ID), rec); err != nil {
				return fmt.Errorf("failed to create record %s: %w", rec.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, fmt.Errorf("batch %s already exists: %w", batch.ID, err)
		}
		return nil, err
	}
	return recs, nil
}

func (s *FirestoreStore) GetBatch(ctx context.Context, batchID string) ([]models.FileRecord, error) {
	docs, err := s.records.Where("batchId", "==", batchID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query batch %s: %w", batchID, err)
	}
	if len(docs) == 0 {
		return nil, models.ErrBatchNotFound
	}
	recs := make([]models.FileRecord, 0, len(docs))
	for _, doc := range docs {
		var rec models.FileRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", doc.Ref.ID, err)
		}
		if rec.EnhancedRefs == nil {
			rec.EnhancedRefs = []string{}
		}
		recs = append(recs, rec)
	}
	sortRecords(recs)
	return recs, nil
}

func (s *FirestoreStore) MarkProcessing(ctx context.Context, batchID string) (int, error) {
	var updated int
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		updated = 0
		q := s.records.Where("batchId", "==", batchID).Where("status", "==", string(models.StatusUploaded))
		docs, err := tx.Documents(q).GetAll()
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, doc := range docs {
			err := tx.Update(doc.Ref, []firestore.Update{
				{Path: "status", Value: string(models.StatusProcessing)},
				{Path: "updatedAt", Value: now},
			})
			if err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mark batch %s processing: %w", batchID, err)
	}
	return updated, nil
}

func (s *FirestoreStore) ApplyResult(ctx context.Context, u models.ResultUpdate) (bool, error) {
	return s.update(ctx, u.BatchID, u.ObjectRef, func(rec *models.FileRecord) bool {
		return applyResult(rec, u, time.Now().UTC())
	})
}

func (s *FirestoreStore) MarkFailed(ctx context.Context, u models.FailureUpdate) (bool, error) {
	return s.update(ctx, u.BatchID, u.ObjectRef, func(rec *models.FileRecord) bool {
		return applyFailure(rec, u, time.Now().UTC())
	})
}

// update reads and writes the matched document in one transaction. Firestore
// retries the function on contention, so mutate must be repeatable.
func (s *FirestoreStore) update(ctx context.Context, batchID, ref string, mutate func(*models.FileRecord) bool) (bool, error) {
	changed := false
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		changed = false
		doc, err := s.match(tx, batchID, ref)
		if err != nil {
			return err
		}
		var rec models.FileRecord
		if err := doc.DataTo(&rec); err != nil {
			return fmt.Errorf("failed to decode record %s: %w", doc.Ref.ID, err)
		}
		if !mutate(&rec) {
			return nil
		}
		updates := []firestore.Update{
			{Path: "status", Value: string(rec.Status)},
			{Path: "enhancedRefs", Value: rec.EnhancedRefs},
			{Path: "errorDetails", Value: rec.ErrorDetails},
			{Path: "updatedAt", Value: rec.UpdatedAt},
		}
		if rec.Classification != nil {
			updates = append(updates, firestore.Update{Path: "classification", Value: rec.Classification})
		} else {
			updates = append(updates, firestore.Update{Path: "classification", Value: firestore.Delete})
		}
		if err := tx.Update(doc.Ref, updates); err != nil {
			return err
		}
		changed = true
		return nil
	}, firestore.MaxAttempts(transactionAttempts))
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (s *FirestoreStore) match(tx *firestore.Transaction, batchID, ref string) (*firestore.DocumentSnapshot, error) {
	docs, err := tx.Documents(s.records.Where("objectRef", "==", ref).Limit(1)).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", ref, err)
	}
	if len(docs) == 1 {
		return docs[0], nil
	}

	q := s.records.Where("objectBasename", "==", models.Basename(ref))
	if batchID != "" {
		q = q.Where("batchId", "==", batchID)
	}
	docs, err = tx.Documents(q.Limit(2)).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to look up basename of %s: %w", ref, err)
	}
	doc, err := pickCandidate(docs, batchID, ref)
	if err != nil {
		slog.Debug("No record matched result.", "objectRef", ref, "error", err)
		return nil, err
	}
	return doc, nil
}
