package imaging

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// ResizeStage downscales pages wider than MaxWidth, keeping the aspect ratio.
// It never upscales.
type ResizeStage struct {
	MaxWidth int
}

func (s *ResizeStage) Name() string { return "resize" }

func (s *ResizeStage) Apply(img *image.RGBA) (*image.RGBA, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if s.MaxWidth <= 0 || w <= s.MaxWidth {
		return img, nil
	}
	nh := max(int(float64(h)*float64(s.MaxWidth)/float64(w)), 1)
	dst := image.NewRGBA(image.Rect(0, 0, s.MaxWidth, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst, nil
}
