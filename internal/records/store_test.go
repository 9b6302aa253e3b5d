package records

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/documentrestoreflow/internal/gcp"
	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func setupGormStore(t *testing.T) Store {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	store, err := OpenGorm(context.Background(), "sqlite", dsn, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func descriptor(batchID, key string) models.FileDescriptor {
	return models.FileDescriptor{
		ID:           uuid.NewString(),
		OriginalName: models.Basename(key),
		ObjectRef:    models.ObjectRef{Container: "documents", Key: batchID + "/" + key},
		UploaderID:   "u-1",
		BranchID:     "br-9",
		DeclaredType: "document",
		ContentType:  "image/png",
		SizeBytes:    1024,
	}
}

func mustCreate(t *testing.T, s Store, keys ...string) (string, []models.FileRecord) {
	t.Helper()
	batch := models.Batch{ID: uuid.NewString(), CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	files := make([]models.FileDescriptor, len(keys))
	for i, k := range keys {
		files[i] = descriptor(batch.ID, k)
		batch.FileIDs = append(batch.FileIDs, files[i].ID)
	}
	recs, err := s.Create(context.Background(), batch, files)
	require.NoError(t, err)
	return batch.ID, recs
}

func mustGet(t *testing.T, s Store, batchID string) []models.FileRecord {
	t.Helper()
	recs, err := s.GetBatch(context.Background(), batchID)
	require.NoError(t, err)
	return recs
}

func mustApply(t *testing.T, s Store, u models.ResultUpdate) bool {
	t.Helper()
	updated, err := s.ApplyResult(context.Background(), u)
	require.NoError(t, err)
	return updated
}

func mustFail(t *testing.T, s Store, u models.FailureUpdate) bool {
	t.Helper()
	updated, err := s.MarkFailed(context.Background(), u)
	require.NoError(t, err)
	return updated
}

func isMismatch(err error) (*models.ReconciliationMismatch, bool) {
	var m *models.ReconciliationMismatch
	ok := errors.As(err, &m)
	return m, ok
}

// -----------------------------------------------------------------------------
// Contract
// -----------------------------------------------------------------------------

func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and read back in submission order", func(t *testing.T) {
		s := newStore(t)
		batchID, created := mustCreate(t, s, "a1_id_card.pdf", "b2_selfie.png", "c3_pan.jpg")
		require.Len(t, created, 3)

		recs := mustGet(t, s, batchID)
		require.Len(t, recs, 3)
		for i, r := range recs {
			assert.Equal(t, created[i].ID, r.ID)
			assert.Equal(t, models.StatusUploaded, r.Status)
			assert.Empty(t, r.EnhancedRefs)
			assert.Nil(t, r.Classification)
		}
		assert.Equal(t, "documents/"+batchID+"/a1_id_card.pdf", recs[0].ObjectRef)
		assert.Equal(t, "a1_id_card.pdf", recs[0].ObjectBasename)
	})

	t.Run("unknown batch", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetBatch(ctx, "nope")
		assert.ErrorIs(t, err, models.ErrBatchNotFound)
	})

	t.Run("mark processing moves only uploaded records", func(t *testing.T) {
		s := newStore(t)
		batchID, recs := mustCreate(t, s, "x_a.png", "y_b.png")
		mustFail(t, s, models.FailureUpdate{BatchID: batchID, ObjectRef: recs[1].ObjectRef, Error: "early"})

		n, err := s.MarkProcessing(ctx, batchID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.MarkProcessing(ctx, batchID)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		got := mustGet(t, s, batchID)
		assert.Equal(t, models.StatusProcessing, got[0].Status)
		assert.Equal(t, models.StatusFailed, got[1].Status)
	})

	t.Run("exact match result is idempotent", func(t *testing.T) {
		s := newStore(t)
		batchID, recs := mustCreate(t, s, "f00d_id_card.pdf")
		_, err := s.MarkProcessing(ctx, batchID)
		require.NoError(t, err)

		u := models.ResultUpdate{
			BatchID:      batchID,
			ObjectRef:    recs[0].ObjectRef,
			EnhancedRefs: []string{"documents/enhanced/p1.png", "documents/enhanced/p2.png", "documents/enhanced/p1.png", "documents/enhanced/doc.pdf"},
			Label:        "aadhaar",
			Confidence:   0.912,
		}
		assert.True(t, mustApply(t, s, u))
		first := mustGet(t, s, batchID)[0]
		assert.Equal(t, models.StatusEnhanced, first.Status)
		assert.Equal(t, []string{"documents/enhanced/p1.png", "documents/enhanced/p2.png", "documents/enhanced/doc.pdf"}, first.EnhancedRefs)
		require.NotNil(t, first.Classification)
		assert.Equal(t, "aadhaar", first.Classification.Label)
		assert.InDelta(t, 0.912, first.Classification.Confidence, 1e-9)

		assert.False(t, mustApply(t, s, u), "re-applying the same result is not an update")
		second := mustGet(t, s, batchID)[0]
		assert.Equal(t, first.EnhancedRefs, second.EnhancedRefs)
		assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt), "re-applying the same result must not write")
	})

	t.Run("enhanced record takes newest refs but keeps status", func(t *testing.T) {
		s := newStore(t)
		batchID, recs := mustCreate(t, s, "aa_scan.png")
		ref := recs[0].ObjectRef
		mustApply(t, s, models.ResultUpdate{BatchID: batchID, ObjectRef: ref, EnhancedRefs: []string{"documents/old.png"}, Label: "pan", Confidence: 0.5})
		mustApply(t, s, models.ResultUpdate{BatchID: batchID, ObjectRef: ref, EnhancedRefs: []string{"documents/new.png"}, Label: "photo", Confidence: 0.7})

		got := mustGet(t, s, batchID)[0]
		assert.Equal(t, models.StatusEnhanced, got.Status)
		assert.Equal(t, []string{"documents/new.png"}, got.EnhancedRefs)
		assert.Equal(t, "photo", got.Classification.Label)
	})

	t.Run("result before processing is committed", func(t *testing.T) {
		s := newStore(t)
		batchID, recs := mustCreate(t, s, "bb_scan.png")
		mustApply(t, s, models.ResultUpdate{BatchID: batchID, ObjectRef: recs[0].ObjectRef, EnhancedRefs: []string{"documents/e.png"}})

		got := mustGet(t, s, batchID)[0]
		assert.Equal(t, models.StatusEnhanced, got.Status)
		assert.Nil(t, got.Classification)
	})

	t.Run("basename fallback within batch", func(t *testing.T) {
		s := newStore(t)
		batchID, _ := mustCreate(t, s, "c0ffee_id_card.pdf", "beef_other.png")

		_, err := s.ApplyResult(ctx, models.ResultUpdate{
			BatchID:      batchID,
			ObjectRef:    "/tmp/worker/c0ffee_id_card.pdf",
			EnhancedRefs: []string{"documents/enhanced/x.png"},
		})
		require.NoError(t, err)

		got := mustGet(t, s, batchID)
		assert.Equal(t, models.StatusEnhanced, got[0].Status)
		assert.Equal(t, models.StatusUploaded, got[1].Status)
	})

	t.Run("basename fallback does not cross batches", func(t *testing.T) {
		s := newStore(t)
		otherBatch, _ := mustCreate(t, s, "dd_same.png")
		batchID, _ := mustCreate(t, s, "ee_different.png")

		_, err := s.ApplyResult(ctx, models.ResultUpdate{BatchID: batchID, ObjectRef: "elsewhere/dd_same.png"})
		m, ok := isMismatch(err)
		require.True(t, ok, "expected mismatch, got %v", err)
		assert.False(t, m.Ambiguous)
		assert.Equal(t, models.StatusUploaded, mustGet(t, s, otherBatch)[0].Status)
	})

	t.Run("ambiguous basename is refused", func(t *testing.T) {
		s := newStore(t)
		batchID, _ := mustCreate(t, s, "front/scan.png", "back/scan.png")

		_, err := s.ApplyResult(ctx, models.ResultUpdate{BatchID: batchID, ObjectRef: "somewhere/scan.png", EnhancedRefs: []string{"documents/e.png"}})
		m, ok := isMismatch(err)
		require.True(t, ok, "expected mismatch, got %v", err)
		assert.True(t, m.Ambiguous)
		for _, r := range mustGet(t, s, batchID) {
			assert.Equal(t, models.StatusUploaded, r.Status)
		}
	})

	t.Run("no match at all", func(t *testing.T) {
		s := newStore(t)
		batchID, _ := mustCreate(t, s, "ff_real.png")
		_, err := s.MarkFailed(ctx, models.FailureUpdate{BatchID: batchID, ObjectRef: "documents/ghost.png", Error: "x"})
		_, ok := isMismatch(err)
		assert.True(t, ok)
	})

	t.Run("terminal states hold", func(t *testing.T) {
		s := newStore(t)
		batchID, recs := mustCreate(t, s, "g1_a.png", "g2_b.png")
		failedRef, enhancedRef := recs[0].ObjectRef, recs[1].ObjectRef

		mustFail(t, s, models.FailureUpdate{BatchID: batchID, ObjectRef: failedRef, Error: "corrupt"})
		assert.False(t, mustApply(t, s, models.ResultUpdate{BatchID: batchID, ObjectRef: failedRef, EnhancedRefs: []string{"documents/late.png"}}))

		mustApply(t, s, models.ResultUpdate{BatchID: batchID, ObjectRef: enhancedRef, EnhancedRefs: []string{"documents/ok.png"}})
		assert.False(t, mustFail(t, s, models.FailureUpdate{BatchID: batchID, ObjectRef: enhancedRef, Error: "late failure"}))

		got := mustGet(t, s, batchID)
		assert.Equal(t, models.StatusFailed, got[0].Status)
		assert.Equal(t, "corrupt", got[0].ErrorDetails)
		assert.Empty(t, got[0].EnhancedRefs)
		assert.Equal(t, models.StatusEnhanced, got[1].Status)
		assert.Empty(t, got[1].ErrorDetails)
	})

	t.Run("duplicate object ref persists nothing", func(t *testing.T) {
		s := newStore(t)
		batch := models.Batch{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
		d := descriptor(batch.ID, "dup.png")
		d2 := d
		d2.ID = uuid.NewString()

		_, err := s.Create(ctx, batch, []models.FileDescriptor{d, d2})
		require.Error(t, err)
		_, err = s.GetBatch(ctx, batch.ID)
		assert.ErrorIs(t, err, models.ErrBatchNotFound)
	})

	t.Run("concurrent results for different files", func(t *testing.T) {
		s := newStore(t)
		keys := make([]string, 8)
		for i := range keys {
			keys[i] = fmt.Sprintf("%02d_page.png", i)
		}
		batchID, recs := mustCreate(t, s, keys...)

		var wg sync.WaitGroup
		errs := make(chan error, len(recs))
		for _, r := range recs {
			wg.Add(1)
			go func(ref string) {
				defer wg.Done()
				_, err := s.ApplyResult(ctx, models.ResultUpdate{BatchID: batchID, ObjectRef: ref, EnhancedRefs: []string{ref + ".enhanced"}})
				errs <- err
			}(r.ObjectRef)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
		for _, r := range mustGet(t, s, batchID) {
			assert.Equal(t, models.StatusEnhanced, r.Status)
			assert.Equal(t, []string{r.ObjectRef + ".enhanced"}, r.EnhancedRefs)
		}
	})

	t.Run("concurrent results for one file", func(t *testing.T) {
		s := newStore(t)
		batchID, recs := mustCreate(t, s, "77_contended.pdf")
		ref := recs[0].ObjectRef
		_, err := s.MarkProcessing(ctx, batchID)
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				var err error
				if i%2 == 0 {
					_, err = s.ApplyResult(ctx, models.ResultUpdate{
						BatchID:      batchID,
						ObjectRef:    ref,
						EnhancedRefs: []string{fmt.Sprintf("documents/w%d_p001.png", i), fmt.Sprintf("documents/w%d.pdf", i)},
						Label:        "pan",
						Confidence:   float64(i) / 10,
					})
				} else {
					_, err = s.MarkFailed(ctx, models.FailureUpdate{BatchID: batchID, ObjectRef: ref, Error: fmt.Sprintf("writer %d", i)})
				}
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}

		got := mustGet(t, s, batchID)
		require.Len(t, got, 1)
		rec := got[0]
		require.True(t, rec.Status.IsTerminal(), "status %s", rec.Status)
		if rec.Status == models.StatusFailed {
			assert.Empty(t, rec.EnhancedRefs)
			assert.Nil(t, rec.Classification)
			assert.Regexp(t, `^writer \d$`, rec.ErrorDetails)
			return
		}
		// Every ref must come from the same write.
		require.Len(t, rec.EnhancedRefs, 2)
		var w int
		_, err = fmt.Sscanf(rec.EnhancedRefs[0], "documents/w%d_p001.png", &w)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("documents/w%d.pdf", w), rec.EnhancedRefs[1])
		require.NotNil(t, rec.Classification)
		assert.InDelta(t, float64(w)/10, rec.Classification.Confidence, 1e-9)
		assert.Empty(t, rec.ErrorDetails)
	})
}

func TestGormStore(t *testing.T) {
	runStoreContract(t, setupGormStore)
}

func TestFirestoreStore_Emulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set. Skipping integration test.")
	}
	client, err := gcp.NewFirestoreClient(context.Background(), "docflow-test", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	runStoreContract(t, func(t *testing.T) Store {
		return NewFirestoreStore(client, "records_"+strings.ReplaceAll(uuid.NewString(), "-", ""))
	})
}

func TestApplyResult_Pure(t *testing.T) {
	now := time.Now()
	rec := models.FileRecord{Status: models.StatusProcessing, EnhancedRefs: []string{}}

	changed := applyResult(&rec, models.ResultUpdate{EnhancedRefs: []string{"a", "", "a", "b"}, Label: "pan", Confidence: 0.4}, now)
	assert.True(t, changed)
	assert.Equal(t, []string{"a", "b"}, rec.EnhancedRefs)

	changed = applyResult(&rec, models.ResultUpdate{EnhancedRefs: []string{"a", "b"}, Label: "pan", Confidence: 0.4}, now.Add(time.Second))
	assert.False(t, changed)
	assert.Equal(t, now, rec.UpdatedAt)
}
