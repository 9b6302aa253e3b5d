package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds the connection parameters for MinIO.
type MinioConfig struct {
	Endpoint        string // host:port, e.g. "localhost:9000"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
}

// MinioGateway stores objects in a MinIO bucket.
type MinioGateway struct {
	client     *minio.Client
	bucketName string
}

// NewMinioGateway connects and creates the bucket when it does not exist.
func NewMinioGateway(ctx context.Context, cfg MinioConfig) (*MinioGateway, error) {
	slog.Info("Initializing MinIO client.", "endpoint", cfg.Endpoint)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.BucketName, err)
	}
	if !exists {
		slog.Info("Bucket not found, creating.", "bucket", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			// Another replica may have created it in between.
			if exists, errExists := client.BucketExists(ctx, cfg.BucketName); errExists != nil || !exists {
				return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.BucketName, err)
			}
		}
	}

	return &MinioGateway{client: client, bucketName: cfg.BucketName}, nil
}

func (g *MinioGateway) Container() string { return g.bucketName }

func (g *MinioGateway) Put(ctx context.Context, key string, data []byte, contentType string) (models.ObjectRef, error) {
	info, err := g.client.PutObject(ctx, g.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return models.ObjectRef{}, fmt.Errorf("failed to upload %s to minio: %w", key, err)
	}
	slog.Debug("Object uploaded.", "bucket", g.bucketName, "key", key, "size", info.Size, "etag", info.ETag)
	return models.ObjectRef{Container: g.bucketName, Key: key}, nil
}

func (g *MinioGateway) Get(ctx context.Context, ref models.ObjectRef) ([]byte, error) {
	object, err := g.client.GetObject(ctx, ref.Container, ref.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioError(ref, err)
	}
	defer object.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(object)
	if err != nil {
		return nil, mapMinioError(ref, err)
	}
	return data, nil
}

func mapMinioError(ref models.ObjectRef, err error) error {
	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) && (minioErr.Code == "NoSuchKey" || minioErr.Code == "NoSuchBucket") {
		return models.ErrObjectNotFound
	}
	return fmt.Errorf("failed to get %s from minio: %w", ref, err)
}
