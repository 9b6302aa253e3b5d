package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

// blankPage returns a white w x h page.
func blankPage(w, h int) *image.RGBA {
	return newCanvas(w, h)
}

// pageWithBox returns a white page with a dark axis-aligned box.
func pageWithBox(w, h int, box image.Rectangle) *image.RGBA {
	img := blankPage(w, h)
	draw.Draw(img, box, image.NewUniform(color.RGBA{20, 20, 20, 255}), image.Point{}, draw.Src)
	return img
}

func filled(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func mustPNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func meanLuma(img *image.RGBA) float64 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	total := 0.0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			total += float64(luma(img.Pix, y*img.Stride+x*4))
		}
	}
	return total / float64(w*h)
}

func lumaRange(img *image.RGBA) (lo, hi uint8) {
	lo, hi = 255, 0
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := luma(img.Pix, y*img.Stride+x*4)
			lo, hi = min(lo, v), max(hi, v)
		}
	}
	return lo, hi
}
