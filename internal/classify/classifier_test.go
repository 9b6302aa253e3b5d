package classify

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func TestDefaultModelLoads(t *testing.T) {
	m, err := LoadModel("")
	require.NoError(t, err)
	seen := map[Label]bool{}
	for _, p := range m.Prototypes {
		seen[p.Label] = true
	}
	for _, l := range Labels {
		assert.True(t, seen[l], "default model missing %s", l)
	}
}

func TestReadModel_Validation(t *testing.T) {
	_, err := ReadModel(strings.NewReader(`{"version":1,"prototypes":[]}`))
	assert.Error(t, err)

	_, err = ReadModel(strings.NewReader(`{"version":1,"prototypes":[{"label":"passport","vector":[]}]}`))
	assert.ErrorContains(t, err, "unknown label")

	_, err = ReadModel(strings.NewReader(`{"version":1,"prototypes":[{"label":"pan","vector":[0.1,0.2]}]}`))
	assert.ErrorContains(t, err, "vector has 2 values")
}

func TestPrototypeClassifier_NearestPrototypeWins(t *testing.T) {
	a := make([]float64, FeatureCount)
	b := make([]float64, FeatureCount)
	for i := range b {
		b[i] = 1
	}
	c := NewPrototypeClassifier(&Model{Temperature: 0.1, Prototypes: []Prototype{
		{Label: LabelPhoto, Vector: a},
		{Label: LabelPAN, Vector: b},
	}})

	dark, err := c.Classify(context.Background(), solid(20, 20, color.Black))
	require.NoError(t, err)
	assert.Equal(t, LabelPhoto, dark.Label)
	assert.Greater(t, dark.Confidence, 0.5)

	light, err := c.Classify(context.Background(), solid(20, 20, color.White))
	require.NoError(t, err)
	assert.Equal(t, LabelPAN, light.Label)
}

func TestPrototypeClassifier_ConfidenceInRangeAndRounded(t *testing.T) {
	m, err := LoadModel("")
	require.NoError(t, err)
	c := NewPrototypeClassifier(m)

	pages := []image.Image{
		solid(300, 190, color.RGBA{230, 228, 220, 255}),
		solid(190, 300, color.RGBA{120, 100, 90, 255}),
		solid(1, 1, color.White),
	}
	for _, p := range pages {
		pred, err := c.Classify(context.Background(), p)
		require.NoError(t, err)
		_, ok := ParseLabel(string(pred.Label))
		assert.True(t, ok)
		assert.GreaterOrEqual(t, pred.Confidence, 0.0)
		assert.LessOrEqual(t, pred.Confidence, 1.0)
		assert.Equal(t, roundConfidence(pred.Confidence), pred.Confidence)
	}
}

func TestPrototypeClassifier_EmptyPage(t *testing.T) {
	m, err := LoadModel("")
	require.NoError(t, err)
	_, err = NewPrototypeClassifier(m).Classify(context.Background(), image.NewRGBA(image.Rectangle{}))
	assert.ErrorIs(t, err, ErrEmptyPage)
}

func TestFeatures_Shape(t *testing.T) {
	f := Features(solid(640, 480, color.RGBA{255, 0, 0, 255}))
	require.Len(t, f, FeatureCount)
	assert.InDelta(t, 1.0, f[0], 1e-9)
	assert.InDelta(t, 0.0, f[1], 1e-9)
	assert.InDelta(t, 1.0, f[3], 1e-9, "pure red is fully saturated")
	assert.InDelta(t, 640.0/1120.0, f[6], 1e-9)
	for _, v := range f {
		assert.True(t, v >= 0 && v <= 1)
	}
}

func TestRoundConfidence(t *testing.T) {
	assert.Equal(t, 0.123, roundConfidence(0.12345))
	assert.Equal(t, 1.0, roundConfidence(1.7))
	assert.Equal(t, 0.0, roundConfidence(-0.2))
}

func TestScoreText(t *testing.T) {
	pred := ScoreText("INCOME TAX DEPARTMENT  GOVT. OF INDIA  Permanent Account Number Card ABCDE1234F")
	assert.Equal(t, LabelPAN, pred.Label)
	assert.Equal(t, 1.0, pred.Confidence)

	pred = ScoreText("Government of India  Aadhaar - Aam Aadmi ka Adhikar  UIDAI")
	assert.Equal(t, LabelAadhaar, pred.Label)

	pred = ScoreText("ELECTION COMMISSION OF INDIA  ELECTOR PHOTO IDENTITY CARD")
	assert.Equal(t, LabelVoterID, pred.Label)

	pred = ScoreText("")
	assert.Equal(t, LabelPhoto, pred.Label)
	assert.Equal(t, 1.0, pred.Confidence)
}

type fakeGenerator struct {
	resp *genai.GenerateContentResponse
	err  error
	got  []genai.Part
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.got = parts
	return f.resp, f.err
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []genai.Part{genai.Text(s)}}},
	}}
}

func TestVertexClassifier(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("```json\n{\"label\": \"Driving_License\", \"confidence\": 0.87654}\n```")}
	c := &VertexClassifier{model: gen}

	pred, err := c.Classify(context.Background(), solid(10, 10, color.White))
	require.NoError(t, err)
	assert.Equal(t, LabelDrivingLicense, pred.Label)
	assert.Equal(t, 0.877, pred.Confidence)

	require.Len(t, gen.got, 2)
	blob, ok := gen.got[0].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/png", blob.MIMEType)
}

func TestVertexClassifier_Failures(t *testing.T) {
	page := solid(4, 4, color.White)

	_, err := (&VertexClassifier{model: &fakeGenerator{err: errors.New("quota")}}).Classify(context.Background(), page)
	assert.ErrorContains(t, err, "quota")

	_, err = (&VertexClassifier{model: &fakeGenerator{resp: textResponse(`{"label":"passport","confidence":0.9}`)}}).Classify(context.Background(), page)
	assert.ErrorContains(t, err, "unknown label")

	_, err = (&VertexClassifier{model: &fakeGenerator{resp: &genai.GenerateContentResponse{}}}).Classify(context.Background(), page)
	assert.Error(t, err)
}
