package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ErrPageGap means the restored pages do not cover every extracted page.
var ErrPageGap = errors.New("restored pages have gaps")

// Assembler merges restored pages back into one PDF.
type Assembler struct {
	quality int
}

// NewAssembler creates an assembler embedding pages as JPEG.
func NewAssembler(p Policy) *Assembler {
	return &Assembler{quality: p.withDefaults().JPEGQuality}
}

// Assemble writes pages in ascending index order, one PDF page per image with
// the page sized to the image. expected is the number of extracted pages;
// every index in 1..expected must be present.
func (a *Assembler) Assemble(pages []Page, expected int) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrPageGap)
	}
	sorted := make([]Page, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	if len(sorted) != expected {
		return nil, fmt.Errorf("%w: have %d of %d pages", ErrPageGap, len(sorted), expected)
	}
	for i, p := range sorted {
		if p.Index != i+1 {
			return nil, fmt.Errorf("%w: page %d missing", ErrPageGap, i+1)
		}
	}

	readers := make([]io.Reader, 0, len(sorted))
	for _, p := range sorted {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, p.Image, &jpeg.Options{Quality: a.quality}); err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", p.Index, err)
		}
		readers = append(readers, &buf)
	}

	imp, err := pdfcpu.ParseImportDetails("pos:full", types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("failed to build import config: %w", err)
	}
	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, imp, pdfConfig()); err != nil {
		return nil, fmt.Errorf("failed to assemble pdf: %w", err)
	}
	return out.Bytes(), nil
}
