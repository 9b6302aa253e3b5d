package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // decoder registration
	_ "image/jpeg" // decoder registration
	_ "image/png"  // decoder registration

	_ "golang.org/x/image/bmp"  // decoder registration
	_ "golang.org/x/image/tiff" // decoder registration
	_ "golang.org/x/image/webp" // decoder registration
)

// ErrEmptyInput is returned for inputs with no bytes at all.
var ErrEmptyInput = errors.New("input is empty")

// Extractor turns one stored document into an ordered list of pages.
type Extractor struct {
	policy Policy
}

// NewExtractor creates an extractor using the given policy constants.
func NewExtractor(p Policy) *Extractor {
	return &Extractor{policy: p.withDefaults()}
}

// Extract decodes data into 1-indexed pages. Any failure fails the whole
// input; no partial page list is ever returned.
func (e *Extractor) Extract(data []byte, format Format) ([]Page, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	if format == FormatPDF {
		return e.renderPDF(data)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decoded image has no pixels")
	}
	return []Page{{Index: 1, Image: toRGBA(img)}}, nil
}
