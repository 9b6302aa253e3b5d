package classify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/documentrestoreflow/internal/config"
	"github.com/Lllllllleong/documentrestoreflow/internal/gcp"
)

// Open builds the configured classifier. The returned close func releases
// any client the classifier holds.
func Open(ctx context.Context, cfg *config.Config) (Classifier, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Classifier.Backend {
	case "prototype":
		m, err := LoadModel(cfg.Classifier.ModelPath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Prototype classifier loaded.", "prototypes", len(m.Prototypes), "modelPath", cfg.Classifier.ModelPath)
		return NewPrototypeClassifier(m), noop, nil
	case "vertex":
		client, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.Classifier.Region, cfg.Classifier.Model)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		return NewVertexClassifier(client), client.Close, nil
	case "ocr":
		c, err := NewOCRClassifier(cfg.Classifier.Languages...)
		if err != nil {
			return nil, nil, err
		}
		return c, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown classifier backend %q", cfg.Classifier.Backend)
}
