package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentrestoreflow/internal/gcp"
	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/Lllllllleong/documentrestoreflow/internal/retry"
)

// GCSGateway stores objects in a Cloud Storage bucket. Writes never replace
// an existing object.
type GCSGateway struct {
	client *storage.Client
	bucket string
	retry  retry.Policy
}

func NewGCSGateway(ctx context.Context, bucket string) (*GCSGateway, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	slog.Info("GCS gateway initialized.", "bucket", bucket)
	return &GCSGateway{client: client, bucket: bucket, retry: retry.Default}, nil
}

func (g *GCSGateway) Container() string { return g.bucket }

func (g *GCSGateway) Put(ctx context.Context, key string, data []byte, contentType string) (models.ObjectRef, error) {
	ref := models.ObjectRef{Container: g.bucket, Key: key}
	logCtx := slog.With("gcsObject", ref.String())
	err := retry.Do(ctx, logCtx, "gcs upload", g.retry, func(ctx context.Context) error {
		writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
		defer cancel()
		_, err := gcp.SaveToGCSAtomically(writeCtx, g.client.Bucket(g.bucket), key, contentType, bytes.NewReader(data))
		return err
	})
	if err != nil {
		return models.ObjectRef{}, err
	}
	return ref, nil
}

func (g *GCSGateway) Get(ctx context.Context, ref models.ObjectRef) ([]byte, error) {
	reader, err := g.client.Bucket(ref.Container).Object(ref.Key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, models.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s: %w", ref, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object gs://%s: %w", ref, err)
	}
	return data, nil
}

func (g *GCSGateway) Close() error {
	return g.client.Close()
}
