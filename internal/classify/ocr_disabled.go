//go:build !tesseract

package classify

// NewOCRClassifier is unavailable unless built with the tesseract tag.
func NewOCRClassifier(...string) (Classifier, error) {
	return nil, ErrOCRUnavailable
}
