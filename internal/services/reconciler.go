package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/Lllllllleong/documentrestoreflow/internal/records"
)

// Summary counts what a callback changed.
type Summary struct {
	Updated   int `json:"updated_records"`
	Failed    int `json:"failed_records"`
	Unmatched int `json:"unmatched_results"`
}

// Reconciler folds a batch's results back into the record store.
type Reconciler struct {
	store records.Store
}

func NewReconciler(store records.Store) *Reconciler {
	return &Reconciler{store: store}
}

// outcome collects every result that points at one original.
type outcome struct {
	original  string
	pages     []models.PageResult
	assembled []models.PageResult
	errs      []string
}

// Reconcile applies results for batchID. Results may arrive in any order;
// they are grouped per original, and a group that contains any error marks
// its record failed. Results that match no record are logged and counted.
// The returned error is only set for store failures.
func (r *Reconciler) Reconcile(ctx context.Context, batchID string, results []models.PageResult) (Summary, error) {
	logCtx := slog.With("batchId", batchID)
	var sum Summary

	groups := groupResults(results)
	logCtx.Info("Reconciling batch results.", "results", len(results), "files", len(groups))

	var storeErrs []error
	for _, g := range groups {
		fileLog := logCtx.With("objectRef", g.original)

		var (
			changed bool
			err     error
		)
		failed := len(g.errs) > 0
		if failed {
			changed, err = r.store.MarkFailed(ctx, models.FailureUpdate{
				BatchID:   batchID,
				ObjectRef: g.original,
				Error:     strings.Join(g.errs, "; "),
			})
		} else {
			changed, err = r.store.ApplyResult(ctx, g.update(batchID))
		}

		var mismatch *models.ReconciliationMismatch
		switch {
		case err == nil && !changed:
			fileLog.Debug("Result already applied.")
		case err == nil && failed:
			sum.Failed++
		case err == nil:
			sum.Updated++
		case errors.As(err, &mismatch):
			sum.Unmatched++
			fileLog.Warn("Result matches no file record.", "ambiguous", mismatch.Ambiguous, "error", err)
		default:
			fileLog.Error("Failed to apply result.", "error", err)
			storeErrs = append(storeErrs, fmt.Errorf("%s: %w", g.original, err))
		}
	}

	logCtx.Info("Batch reconciled.", "updated", sum.Updated, "failed", sum.Failed, "unmatched", sum.Unmatched)
	if len(storeErrs) > 0 {
		return sum, fmt.Errorf("failed to reconcile batch %s: %w", batchID, errors.Join(storeErrs...))
	}
	return sum, nil
}

func groupResults(results []models.PageResult) []*outcome {
	var order []*outcome
	byOriginal := make(map[string]*outcome)
	for _, res := range results {
		g, ok := byOriginal[res.Original]
		if !ok {
			g = &outcome{original: res.Original}
			byOriginal[res.Original] = g
			order = append(order, g)
		}
		switch {
		case res.Failed():
			g.errs = append(g.errs, res.Error)
		case res.Kind == models.ResultKindAssembled:
			g.assembled = append(g.assembled, res)
		default:
			g.pages = append(g.pages, res)
		}
	}
	return order
}

// update orders page refs by page index, appends assembled documents and
// picks the most confident page label. Ties go to the lower page.
func (g *outcome) update(batchID string) models.ResultUpdate {
	sort.SliceStable(g.pages, func(i, j int) bool { return g.pages[i].Page < g.pages[j].Page })

	u := models.ResultUpdate{BatchID: batchID, ObjectRef: g.original}
	best := -1
	for i, p := range g.pages {
		u.EnhancedRefs = append(u.EnhancedRefs, p.Enhanced)
		if p.Label == "" {
			continue
		}
		if best < 0 || p.Confidence > g.pages[best].Confidence {
			best = i
		}
	}
	for _, a := range g.assembled {
		u.EnhancedRefs = append(u.EnhancedRefs, a.Enhanced)
	}
	if best >= 0 {
		u.Label = g.pages[best].Label
		u.Confidence = g.pages[best].Confidence
	}
	return u
}

// Send lets the reconciler stand in for the callback when the worker and the
// record store share a process. A request without batch_id is attributed to
// the batch its originals were uploaded under; when that is not a single
// batch nothing is applied and every result counts as unmatched.
func (r *Reconciler) Send(ctx context.Context, req models.PreprocessCallbackRequest) (models.PreprocessCallbackResponse, error) {
	batchID := req.BatchID
	if batchID == "" {
		batchID = batchFromResults(req.Results)
	}
	resp := models.PreprocessCallbackResponse{Status: "received", BatchID: batchID}
	if batchID == "" {
		if len(req.Results) > 0 {
			slog.Warn("Callback names no batch and its results span none or several.", "results", len(req.Results))
		}
		resp.UnmatchedResults = len(groupResults(req.Results))
		return resp, nil
	}

	sum, err := r.Reconcile(ctx, batchID, req.Results)
	resp.UpdatedRecords = sum.Updated
	resp.FailedRecords = sum.Failed
	resp.UnmatchedResults = sum.Unmatched
	return resp, err
}

// batchFromResults reads the batch id from the originals' object keys, which
// are laid out as <batch>/<prefix>_<name>. It returns "" unless every result
// agrees on one batch.
func batchFromResults(results []models.PageResult) string {
	batchID := ""
	for _, res := range results {
		ref, err := models.ParseObjectRef(res.Original)
		if err != nil {
			return ""
		}
		id, _, ok := strings.Cut(ref.Key, "/")
		if !ok || id == "" || (batchID != "" && id != batchID) {
			return ""
		}
		batchID = id
	}
	return batchID
}
