package classify

import (
	"errors"
	"strings"
)

// ErrOCRUnavailable is returned when the binary was built without Tesseract.
var ErrOCRUnavailable = errors.New("ocr classifier requires the tesseract build tag")

var labelKeywords = map[Label][]string{
	LabelAadhaar:        {"aadhaar", "aadhar", "uidai", "unique identification", "enrolment", "vid"},
	LabelPAN:            {"income tax department", "permanent account number", "pan"},
	LabelVoterID:        {"election commission", "elector", "epic", "voter"},
	LabelDrivingLicense: {"driving licence", "driving license", "transport", "dl no", "licensing authority"},
}

// minDocumentWords is the amount of recognised text below which a page with
// no keyword hit is taken to be a photograph.
const minDocumentWords = 8

// ScoreText labels OCR text by keyword hits. Confidence is the share of hits
// belonging to the winning label.
func ScoreText(text string) Prediction {
	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	tokens := make(map[string]bool, len(words))
	for _, w := range words {
		tokens[strings.Trim(w, ".,:;()[]/-")] = true
	}

	var total int
	best, bestHits := LabelPhoto, 0
	for _, label := range Labels {
		hits := 0
		for _, kw := range labelKeywords[label] {
			if strings.Contains(kw, " ") {
				hits += strings.Count(lower, kw)
			} else if tokens[kw] {
				hits++
			}
		}
		total += hits
		if hits > bestHits {
			best, bestHits = label, hits
		}
	}

	if total == 0 {
		if len(words) < minDocumentWords {
			return Prediction{Label: LabelPhoto, Confidence: roundConfidence(1 - float64(len(words))/minDocumentWords)}
		}
		return Prediction{Label: LabelPhoto, Confidence: 0}
	}
	return Prediction{Label: best, Confidence: roundConfidence(float64(bestHits) / float64(total))}
}
