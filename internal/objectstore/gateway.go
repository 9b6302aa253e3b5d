// Package objectstore reads and writes blobs in a bucket-style object store.
package objectstore

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/documentrestoreflow/internal/config"
	"github.com/Lllllllleong/documentrestoreflow/internal/models"
)

// Gateway stores blobs under a key in its configured container. Get accepts
// references into any container the credentials can read.
type Gateway interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (models.ObjectRef, error)
	Get(ctx context.Context, ref models.ObjectRef) ([]byte, error)
	Container() string
}

// Open builds the configured gateway.
func Open(ctx context.Context, cfg *config.Config) (Gateway, error) {
	sc := cfg.Storage
	var (
		g   Gateway
		err error
	)
	switch sc.Backend {
	case "gcs":
		g, err = NewGCSGateway(ctx, sc.Bucket)
	case "minio":
		g, err = NewMinioGateway(ctx, MinioConfig{
			Endpoint:        sc.Endpoint,
			AccessKeyID:     sc.AccessKey,
			SecretAccessKey: sc.SecretKey,
			UseSSL:          sc.UseSSL,
			BucketName:      sc.Bucket,
			Region:          sc.Region,
		})
	case "s3":
		g, err = NewS3Gateway(ctx, S3Config{
			Endpoint:        sc.Endpoint,
			Region:          sc.Region,
			Bucket:          sc.Bucket,
			AccessKeyID:     sc.AccessKey,
			SecretAccessKey: sc.SecretKey,
			PathStyle:       sc.PathStyle,
		})
	case "memory":
		g = NewMemoryGateway(sc.Bucket)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}
