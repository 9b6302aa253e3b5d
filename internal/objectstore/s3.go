package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3Config struct {
	Endpoint        string // full URL; empty for AWS
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// S3Gateway stores objects in any S3-compatible service.
type S3Gateway struct {
	client *s3.Client
	bucket string
}

func NewS3Gateway(ctx context.Context, cfg S3Config) (*S3Gateway, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
			slog.Warn("Failed to ensure bucket exists.", "bucket", cfg.Bucket, "error", err)
		}
	}
	return &S3Gateway{client: client, bucket: cfg.Bucket}, nil
}

func (g *S3Gateway) Container() string { return g.bucket }

func (g *S3Gateway) Put(ctx context.Context, key string, data []byte, contentType string) (models.ObjectRef, error) {
	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return models.ObjectRef{}, fmt.Errorf("s3 put failed: %w", err)
	}
	return models.ObjectRef{Container: g.bucket, Key: key}, nil
}

func (g *S3Gateway) Get(ctx context.Context, ref models.ObjectRef) ([]byte, error) {
	resp, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, models.ErrObjectNotFound
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read failed: %w", err)
	}
	return data, nil
}
