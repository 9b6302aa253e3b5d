package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/Lllllllleong/documentrestoreflow/internal/classify"
	"github.com/Lllllllleong/documentrestoreflow/internal/imaging"
	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/Lllllllleong/documentrestoreflow/internal/objectstore"
	"github.com/Lllllllleong/documentrestoreflow/internal/records"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Fixtures
// -----------------------------------------------------------------------------

func setupStore(t *testing.T) *records.GormStore {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	store, err := records.OpenGorm(context.Background(), "sqlite", dsn, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

var colorInk = color.RGBA{30, 30, 30, 255}

// scanPage is a white page with a dark block, the shape of a scanned card.
func scanPage(w, h int, ink color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	box := image.Rect(w/5, h/5, w*4/5, h*3/5)
	draw.Draw(img, box, image.NewUniform(ink), image.Point{}, draw.Src)
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// twoPagePDF builds a scan whose second page is wider than the first, so
// tests can tell the pages apart after restoration (rendered at 2x: 240 and
// 280 pixels wide).
func twoPagePDF(t *testing.T) []byte {
	t.Helper()
	pages := []imaging.Page{
		{Index: 1, Image: scanPage(120, 160, color.RGBA{30, 30, 30, 255})},
		{Index: 2, Image: scanPage(140, 160, color.RGBA{60, 60, 60, 255})},
	}
	pdf, err := imaging.NewAssembler(imaging.DefaultPolicy()).Assemble(pages, 2)
	require.NoError(t, err)
	return pdf
}

// putOriginal stores data the way ingestion does and returns the ref string.
func putOriginal(t *testing.T, gw objectstore.Gateway, batchID, name string, data []byte) string {
	t.Helper()
	key := fmt.Sprintf("%s/%s_%s", batchID, strings.ReplaceAll(uuid.NewString(), "-", ""), name)
	ref, err := gw.Put(context.Background(), key, data, "")
	require.NoError(t, err)
	return ref.String()
}

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

// stubClassifier labels every page the same and fails the pages failOn
// selects.
type stubClassifier struct {
	pred   classify.Prediction
	failOn func(img image.Image) bool
}

func (s *stubClassifier) Classify(ctx context.Context, page image.Image) (classify.Prediction, error) {
	if s.failOn != nil && s.failOn(page) {
		return classify.Prediction{}, errors.New("model rejected page")
	}
	return s.pred, nil
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Send(ctx context.Context, req models.PreprocessCallbackRequest) (models.PreprocessCallbackResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.PreprocessCallbackResponse), args.Error(1)
}

// fakeDispatcher captures submitted jobs. onSubmit runs before the job is
// accepted.
type fakeDispatcher struct {
	mu       sync.Mutex
	jobs     []models.BatchJob
	err      error
	onSubmit func(job models.BatchJob)
}

func (d *fakeDispatcher) Submit(ctx context.Context, job models.BatchJob) (string, error) {
	if d.onSubmit != nil {
		d.onSubmit(job)
	}
	if d.err != nil {
		return "", d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return fmt.Sprintf("job-%d", len(d.jobs)), nil
}

func (d *fakeDispatcher) lastJob(t *testing.T) models.BatchJob {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.jobs)
	return d.jobs[len(d.jobs)-1]
}

// failingGateway fails every Put whose key contains substr.
type failingGateway struct {
	*objectstore.MemoryGateway
	substr string
}

func (g *failingGateway) Put(ctx context.Context, key string, data []byte, contentType string) (models.ObjectRef, error) {
	if strings.Contains(key, g.substr) {
		return models.ObjectRef{}, errors.New("bucket unavailable")
	}
	return g.MemoryGateway.Put(ctx, key, data, contentType)
}
