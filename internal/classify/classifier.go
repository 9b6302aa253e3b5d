// Package classify assigns one of a closed set of identity-document labels to
// a restored page.
package classify

import (
	"context"
	"errors"
	"image"
	"math"
)

type Label string

const (
	LabelAadhaar        Label = "aadhaar"
	LabelPAN            Label = "pan"
	LabelVoterID        Label = "voter_id"
	LabelDrivingLicense Label = "driving_license"
	LabelPhoto          Label = "photo"
)

// Labels is the closed label set, in model output order.
var Labels = []Label{LabelAadhaar, LabelPAN, LabelVoterID, LabelDrivingLicense, LabelPhoto}

// ErrEmptyPage is returned for nil or zero-sized pages.
var ErrEmptyPage = errors.New("page has no pixels")

// ParseLabel reports whether s names a known label.
func ParseLabel(s string) (Label, bool) {
	for _, l := range Labels {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

type Prediction struct {
	Label      Label
	Confidence float64
}

// Classifier is constructed once per process and shared by all workers, so
// implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, page image.Image) (Prediction, error)
}

func roundConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	c = math.Min(math.Max(c, 0), 1)
	return math.Round(c*1000) / 1000
}

func checkPage(page image.Image) error {
	if page == nil || page.Bounds().Empty() {
		return ErrEmptyPage
	}
	return nil
}
