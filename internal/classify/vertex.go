package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/documentrestoreflow/internal/gcp"
)

// contentGenerator is the part of *genai.GenerativeModel the classifier uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexClassifier asks a Gemini model to label the page.
type VertexClassifier struct {
	model contentGenerator
}

// NewVertexClassifier uses the classifier model configured on client.
func NewVertexClassifier(client *gcp.VertexClient) *VertexClassifier {
	return &VertexClassifier{model: client.ClassifierModel}
}

type vertexAnswer struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func (c *VertexClassifier) Classify(ctx context.Context, page image.Image) (Prediction, error) {
	if err := checkPage(page); err != nil {
		return Prediction{}, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, page); err != nil {
		return Prediction{}, fmt.Errorf("failed to encode page: %w", err)
	}

	resp, err := c.model.GenerateContent(ctx, genai.ImageData("png", buf.Bytes()), genai.Text(gcp.ClassifierUserPrompt))
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	return parseAnswer(resp)
}

func parseAnswer(resp *genai.GenerateContentResponse) (Prediction, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Prediction{}, fmt.Errorf("gemini returned no candidates")
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	raw := strings.TrimSpace(text.String())
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")

	var ans vertexAnswer
	if err := json.Unmarshal([]byte(raw), &ans); err != nil {
		return Prediction{}, fmt.Errorf("failed to parse gemini answer %q: %w", raw, err)
	}
	label, ok := ParseLabel(strings.ToLower(strings.TrimSpace(ans.Label)))
	if !ok {
		return Prediction{}, fmt.Errorf("gemini answered unknown label %q", ans.Label)
	}
	return Prediction{Label: label, Confidence: roundConfidence(ans.Confidence)}, nil
}
