package services

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/Lllllllleong/documentrestoreflow/internal/classify"
	"github.com/Lllllllleong/documentrestoreflow/internal/imaging"
	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/Lllllllleong/documentrestoreflow/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(gw objectstore.Gateway, cls classify.Classifier, sink ResultSink) *Processor {
	return NewProcessor(gw, cls, sink, ProcessorConfig{Policy: imaging.DefaultPolicy(), PageConcurrency: 2})
}

func TestProcessBatch_NoItems(t *testing.T) {
	p := newTestProcessor(objectstore.NewMemoryGateway("documents"), &stubClassifier{}, nil)
	_, err := p.ProcessBatch(context.Background(), models.ProcessBatchRequest{BatchID: "b"})
	assert.ErrorIs(t, err, ErrNoItems)
}

func TestProcessBatch_PDFPagesAndAssembly(t *testing.T) {
	gw := objectstore.NewMemoryGateway("documents")
	original := putOriginal(t, gw, "b1", "id_card.pdf", twoPagePDF(t))
	cls := &stubClassifier{pred: classify.Prediction{Label: classify.LabelPAN, Confidence: 0.8}}

	resp, err := newTestProcessor(gw, cls, nil).ProcessBatch(context.Background(), models.ProcessBatchRequest{
		BatchID: "b1",
		Items:   []models.ProcessItem{{ObjectRef: original}},
	})
	require.NoError(t, err)

	require.Len(t, resp.Details, 3)
	assert.Equal(t, 3, resp.Processed)
	for i, page := range resp.Details[:2] {
		assert.False(t, page.Failed())
		assert.Equal(t, original, page.Original)
		assert.Equal(t, i+1, page.Page)
		assert.Equal(t, models.ResultKindPage, page.Kind)
		assert.Equal(t, "pan", page.Label)
		assert.Positive(t, page.SizeBytes)
		assert.True(t, strings.HasPrefix(page.Enhanced, "documents/enhanced/b1/"))
	}
	assert.True(t, strings.HasSuffix(resp.Details[0].Enhanced, "_id_card_p001_enhanced.png"))
	assert.True(t, strings.HasSuffix(resp.Details[1].Enhanced, "_id_card_p002_enhanced.png"))

	assembled := resp.Details[2]
	assert.Equal(t, models.ResultKindAssembled, assembled.Kind)
	assert.True(t, strings.HasSuffix(assembled.Enhanced, "_id_card_enhanced.pdf"))

	// The reassembled PDF keeps both pages in order.
	ref, err := models.ParseObjectRef(assembled.Enhanced)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", gw.ContentType(ref))
	data, err := gw.Get(context.Background(), ref)
	require.NoError(t, err)
	pages, err := imaging.NewExtractor(imaging.DefaultPolicy()).Extract(data, imaging.FormatPDF)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Less(t, pages[0].Image.Rect.Dx(), pages[1].Image.Rect.Dx())
}

func TestProcessBatch_SingleImageHasNoAssembly(t *testing.T) {
	gw := objectstore.NewMemoryGateway("documents")
	original := putOriginal(t, gw, "b1", "selfie.png", pngBytes(t, scanPage(200, 150, colorInk)))
	cls := &stubClassifier{pred: classify.Prediction{Label: classify.LabelPhoto, Confidence: 0.9}}

	resp, err := newTestProcessor(gw, cls, nil).ProcessBatch(context.Background(), models.ProcessBatchRequest{
		BatchID: "b1",
		Items:   []models.ProcessItem{{ObjectPath: original}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Details, 1)
	assert.Equal(t, 1, resp.Details[0].Page)
	assert.Equal(t, "photo", resp.Details[0].Label)
	assert.True(t, strings.HasSuffix(resp.Details[0].Enhanced, "_selfie_p001_enhanced.png"))
}

func TestProcessBatch_ItemFailuresAreIsolated(t *testing.T) {
	gw := objectstore.NewMemoryGateway("documents")
	good := putOriginal(t, gw, "b1", "pan.png", pngBytes(t, scanPage(200, 150, colorInk)))
	corrupt := putOriginal(t, gw, "b1", "broken.pdf", []byte("%PDF-1.4 this is not a pdf"))
	missing := "documents/b1/deadbeef_missing.png"
	cls := &stubClassifier{pred: classify.Prediction{Label: classify.LabelPAN, Confidence: 0.7}}

	resp, err := newTestProcessor(gw, cls, nil).ProcessBatch(context.Background(), models.ProcessBatchRequest{
		BatchID: "b1",
		Items: []models.ProcessItem{
			{ObjectRef: corrupt},
			{ObjectRef: good},
			{ObjectRef: missing},
			{ObjectRef: "no-slash"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Details, 4)

	assert.Equal(t, corrupt, resp.Details[0].Original)
	assert.Contains(t, resp.Details[0].Error, "failed to extract pages")

	assert.Equal(t, good, resp.Details[1].Original)
	assert.False(t, resp.Details[1].Failed())

	assert.Equal(t, missing, resp.Details[2].Original)
	assert.Contains(t, resp.Details[2].Error, "failed to download original")

	assert.Contains(t, resp.Details[3].Error, "invalid object ref")
}

func TestProcessBatch_ClassificationFailureFailsOnlyThatPage(t *testing.T) {
	gw := objectstore.NewMemoryGateway("documents")
	original := putOriginal(t, gw, "b1", "scan.pdf", twoPagePDF(t))
	cls := &stubClassifier{
		pred:   classify.Prediction{Label: classify.LabelVoterID, Confidence: 0.6},
		failOn: func(img image.Image) bool { return img.Bounds().Dx() > 260 },
	}

	resp, err := newTestProcessor(gw, cls, nil).ProcessBatch(context.Background(), models.ProcessBatchRequest{
		BatchID: "b1",
		Items:   []models.ProcessItem{{ObjectRef: original}},
	})
	require.NoError(t, err)

	// No assembled result: reassembly is skipped when a page failed.
	require.Len(t, resp.Details, 2)
	assert.False(t, resp.Details[0].Failed())
	assert.Equal(t, "voter_id", resp.Details[0].Label)
	assert.Equal(t, 2, resp.Details[1].Page)
	assert.Contains(t, resp.Details[1].Error, "classify page 2")
}

func TestProcessBatch_PageUploadFailure(t *testing.T) {
	mem := objectstore.NewMemoryGateway("documents")
	gw := &failingGateway{MemoryGateway: mem, substr: "_p002_"}
	original := putOriginal(t, mem, "b1", "scan.pdf", twoPagePDF(t))
	cls := &stubClassifier{pred: classify.Prediction{Label: classify.LabelPAN, Confidence: 0.6}}

	resp, err := newTestProcessor(gw, cls, nil).ProcessBatch(context.Background(), models.ProcessBatchRequest{
		BatchID: "b1",
		Items:   []models.ProcessItem{{ObjectRef: original}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Details, 2)
	assert.False(t, resp.Details[0].Failed())
	assert.Contains(t, resp.Details[1].Error, "failed to store restored page")
}

func TestProcessBatch_DeliversResultsToSink(t *testing.T) {
	gw := objectstore.NewMemoryGateway("documents")
	original := putOriginal(t, gw, "b7", "aadhaar.png", pngBytes(t, scanPage(200, 150, colorInk)))
	cls := &stubClassifier{pred: classify.Prediction{Label: classify.LabelAadhaar, Confidence: 0.95}}

	sink := new(mockSink)
	sink.On("Send", mock.Anything, mock.MatchedBy(func(req models.PreprocessCallbackRequest) bool {
		return req.BatchID == "b7" && len(req.Results) == 1 && req.Results[0].Original == original
	})).Return(models.PreprocessCallbackResponse{Status: "received"}, nil).Once()

	_, err := newTestProcessor(gw, cls, sink).ProcessBatch(context.Background(), models.ProcessBatchRequest{
		BatchID: "b7",
		Items:   []models.ProcessItem{{ObjectRef: original}},
	})
	require.NoError(t, err)
	sink.AssertExpectations(t)
}

func TestProcessBatch_SinkFailureIsNotReturned(t *testing.T) {
	gw := objectstore.NewMemoryGateway("documents")
	original := putOriginal(t, gw, "b8", "doc.png", pngBytes(t, scanPage(200, 150, colorInk)))
	cls := &stubClassifier{pred: classify.Prediction{Label: classify.LabelPAN, Confidence: 0.5}}

	sink := new(mockSink)
	sink.On("Send", mock.Anything, mock.Anything).
		Return(models.PreprocessCallbackResponse{}, errors.New("ingestion down")).Once()

	resp, err := newTestProcessor(gw, cls, sink).ProcessBatch(context.Background(), models.ProcessBatchRequest{
		BatchID: "b8",
		Items:   []models.ProcessItem{{ObjectRef: original}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Processed)
	sink.AssertExpectations(t)
}

func TestDetectStoredFormat(t *testing.T) {
	assert.Equal(t, imaging.FormatPDF, detectStoredFormat([]byte("%PDF-1.7\n..."), "b/x_scan.bin"))
	assert.Equal(t, imaging.FormatPDF, detectStoredFormat([]byte("garbage"), "b/x_scan.pdf"))
	assert.Equal(t, imaging.FormatImage, detectStoredFormat([]byte("\x89PNG\r\n\x1a\n"), "b/x_scan.png"))
}
