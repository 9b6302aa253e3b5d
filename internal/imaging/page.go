package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"path"
	"strings"
)

// Format is the hint telling the extractor how to read an input.
type Format int

const (
	FormatImage Format = iota
	FormatPDF
)

func (f Format) String() string {
	if f == FormatPDF {
		return "pdf"
	}
	return "image"
}

// DetectFormat picks the format from the content type, falling back to the
// file extension.
func DetectFormat(contentType, name string) Format {
	if strings.EqualFold(contentType, "application/pdf") {
		return FormatPDF
	}
	if contentType == "" && strings.EqualFold(path.Ext(name), ".pdf") {
		return FormatPDF
	}
	return FormatImage
}

// Page is one raster page. Index is 1-based and survives restoration so pages
// can be reassembled in order.
type Page struct {
	Index int
	Image *image.RGBA
}

// toRGBA copies any image into a zero-origin RGBA buffer.
func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}

func newCanvas(w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return dst
}

// luma returns the BT.601 luma of an RGBA pixel at byte offset i.
func luma(pix []uint8, i int) uint8 {
	r, g, b := uint32(pix[i]), uint32(pix[i+1]), uint32(pix[i+2])
	return uint8((19595*r + 38470*g + 7471*b + 1<<15) >> 16)
}

// EncodePNG encodes a restored page.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
