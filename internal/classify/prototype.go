package classify

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"
	"os"
)

//go:embed model/default.json
var defaultModel []byte

// Prototype is the reference feature vector of one label.
type Prototype struct {
	Label  Label     `json:"label"`
	Vector []float64 `json:"vector"`
}

// Model is the on-disk nearest-prototype model.
type Model struct {
	Version     int         `json:"version"`
	Temperature float64     `json:"temperature"`
	Prototypes  []Prototype `json:"prototypes"`
}

// ReadModel decodes and validates a model.
func ReadModel(r io.Reader) (*Model, error) {
	var m Model
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode classifier model: %w", err)
	}
	if len(m.Prototypes) == 0 {
		return nil, fmt.Errorf("classifier model has no prototypes")
	}
	for i, p := range m.Prototypes {
		if _, ok := ParseLabel(string(p.Label)); !ok {
			return nil, fmt.Errorf("prototype %d: unknown label %q", i, p.Label)
		}
		if len(p.Vector) != FeatureCount {
			return nil, fmt.Errorf("prototype %d (%s): vector has %d values, want %d", i, p.Label, len(p.Vector), FeatureCount)
		}
	}
	if m.Temperature <= 0 {
		m.Temperature = 0.1
	}
	return &m, nil
}

// LoadModel reads the model at path, or the built-in model when path is empty.
func LoadModel(path string) (*Model, error) {
	if path == "" {
		return ReadModel(bytes.NewReader(defaultModel))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open classifier model: %w", err)
	}
	defer f.Close()
	return ReadModel(f)
}

// PrototypeClassifier labels a page by its distance to each label prototype.
// Confidence is the softmax weight of the winning prototype.
type PrototypeClassifier struct {
	model *Model
}

func NewPrototypeClassifier(m *Model) *PrototypeClassifier {
	return &PrototypeClassifier{model: m}
}

func (c *PrototypeClassifier) Classify(ctx context.Context, page image.Image) (Prediction, error) {
	if err := checkPage(page); err != nil {
		return Prediction{}, err
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	return c.predict(Features(page)), nil
}

func (c *PrototypeClassifier) predict(f []float64) Prediction {
	dists := make([]float64, len(c.model.Prototypes))
	best := 0
	for i, p := range c.model.Prototypes {
		var d float64
		for j, v := range p.Vector {
			diff := f[j] - v
			d += diff * diff
		}
		dists[i] = math.Sqrt(d)
		if dists[i] < dists[best] {
			best = i
		}
	}

	// softmax over -distance/T, shifted by the minimum for stability
	var total float64
	for _, d := range dists {
		total += math.Exp(-(d - dists[best]) / c.model.Temperature)
	}
	return Prediction{
		Label:      c.model.Prototypes[best].Label,
		Confidence: roundConfidence(1 / total),
	}
}
