package imaging

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/Lllllllleong/documentrestoreflow/internal/models"
)

// Stage is one restoration transform. Apply must not modify img; it returns a
// new buffer or an error.
type Stage interface {
	Name() string
	Apply(img *image.RGBA) (*image.RGBA, error)
}

// Restorer applies a fixed sequence of stages to one page.
type Restorer struct {
	stages []Stage
}

// NewRestorer builds the production pipeline: deskew, local contrast,
// deblur, resize.
func NewRestorer(p Policy) *Restorer {
	p = p.withDefaults()
	return NewRestorerWithStages(
		&DeskewStage{BackgroundLevel: p.BackgroundLevel, MinAngle: p.MinDeskewAngle},
		&ContrastStage{ClipLimit: p.ClipLimit, TileGrid: p.TileGrid},
		&DeblurStage{Balance: p.DeblurBalance},
		&ResizeStage{MaxWidth: p.MaxWidth},
	)
}

// NewRestorerWithStages builds a restorer with an explicit stage list.
func NewRestorerWithStages(stages ...Stage) *Restorer {
	return &Restorer{stages: stages}
}

// Restore runs every stage in order. A failing stage is skipped and the page
// continues with the pre-stage image, so Restore always returns an image.
// The skipped stages are returned for reporting.
func (r *Restorer) Restore(logCtx *slog.Logger, img image.Image) (*image.RGBA, []*models.StageError) {
	if logCtx == nil {
		logCtx = slog.Default()
	}
	cur, ok := img.(*image.RGBA)
	if !ok || cur.Rect.Min != (image.Point{}) {
		cur = toRGBA(img)
	}

	var skipped []*models.StageError
	for _, s := range r.stages {
		out, err := runStage(s, cur)
		if err != nil {
			stageErr := &models.StageError{Stage: s.Name(), Err: err}
			logCtx.Warn("Restoration stage failed, skipping.", "stage", s.Name(), "error", err)
			skipped = append(skipped, stageErr)
			continue
		}
		cur = out
	}
	return cur, skipped
}

func runStage(s Stage, img *image.RGBA) (out *image.RGBA, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("panic: %v", rec)
		}
	}()
	out, err = s.Apply(img)
	if err == nil && out == nil {
		err = errors.New("stage returned no image")
	}
	return out, err
}
