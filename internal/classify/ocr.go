//go:build tesseract

package classify

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"
)

// OCRClassifier reads the page with Tesseract and scores label keywords.
// gosseract clients are not goroutine safe, so each call opens its own.
type OCRClassifier struct {
	languages []string
}

// NewOCRClassifier checks that Tesseract has the requested languages.
func NewOCRClassifier(languages ...string) (Classifier, error) {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(languages...); err != nil {
		return nil, fmt.Errorf("failed to configure tesseract: %w", err)
	}
	return &OCRClassifier{languages: languages}, nil
}

func (c *OCRClassifier) Classify(ctx context.Context, page image.Image) (Prediction, error) {
	if err := checkPage(page); err != nil {
		return Prediction{}, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, page); err != nil {
		return Prediction{}, fmt.Errorf("failed to encode page: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(c.languages...); err != nil {
		return Prediction{}, fmt.Errorf("failed to configure tesseract: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return Prediction{}, fmt.Errorf("failed to load page into tesseract: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return Prediction{}, fmt.Errorf("tesseract failed: %w", err)
	}
	return ScoreText(text), nil
}
