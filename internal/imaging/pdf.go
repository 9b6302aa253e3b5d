package imaging

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	xdraw "golang.org/x/image/draw"
)

func init() {
	// pdfcpu would otherwise create a config dir under the user's home.
	api.DisableConfigDir()
}

func pdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// renderPDF renders every page at RenderScale. A scanned page is a single
// full-page raster, so a page is rendered by drawing its largest embedded
// image over a white canvas the size of the scaled media box.
func (e *Extractor) renderPDF(data []byte) ([]Page, error) {
	conf := pdfConfig()

	dims, err := api.PageDims(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf page dimensions: %w", err)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	rasters := make(map[int]image.Image, len(dims))
	digest := func(img model.Image, _ bool, _ int) error {
		decoded, _, err := image.Decode(img)
		if err != nil {
			slog.Warn("Skipping undecodable embedded image.", "page", img.PageNr, "fileType", img.FileType, "error", err)
			return nil
		}
		if prev, ok := rasters[img.PageNr]; !ok || area(decoded.Bounds()) > area(prev.Bounds()) {
			rasters[img.PageNr] = decoded
		}
		return nil
	}
	if err := api.ExtractImages(bytes.NewReader(data), nil, digest, conf); err != nil {
		return nil, fmt.Errorf("failed to extract pdf page images: %w", err)
	}

	pages := make([]Page, 0, len(dims))
	for i, d := range dims {
		w := int(math.Round(d.Width * e.policy.RenderScale))
		h := int(math.Round(d.Height * e.policy.RenderScale))
		if w <= 0 || h <= 0 {
			return nil, fmt.Errorf("page %d has invalid dimensions %.1fx%.1f", i+1, d.Width, d.Height)
		}
		pages = append(pages, composePage(i+1, w, h, rasters[i+1]))
	}
	return pages, nil
}

// composePage scales raster onto a white w x h canvas. A page without an
// embedded raster, such as a vector or text-only page, stays blank.
func composePage(index, w, h int, raster image.Image) Page {
	canvas := newCanvas(w, h)
	if raster == nil {
		slog.Warn("PDF page has no embedded image, rendering it blank.", "page", index, "width", w, "height", h)
		return Page{Index: index, Image: canvas}
	}
	xdraw.CatmullRom.Scale(canvas, canvas.Bounds(), raster, raster.Bounds(), xdraw.Over, nil)
	return Page{Index: index, Image: canvas}
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
