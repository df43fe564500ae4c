package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Storage keeps filing artifacts in an S3-compatible bucket.
type Storage struct {
	client *minio.Client
	bucket string
	region string

	initMu  sync.Mutex
	initted bool
}

func New(cfg Config) (*Storage, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, errors.New("minio access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("minio bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &Storage{client: client, bucket: bucket, region: region}, nil
}

// ensureBucket creates the bucket on first use. A failed attempt is
// retried on the next call.
func (s *Storage) ensureBucket(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initted {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "minio bucket exists", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			code := minio.ToErrorResponse(err).Code
			if code != "BucketAlreadyOwnedByYou" && code != "BucketAlreadyExists" {
				return fmt.Errorf("minio make bucket: %w", err)
			}
		}
	}
	s.initted = true
	return nil
}

func (s *Storage) Save(ctx context.Context, key string, data io.Reader) error {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return domain.WrapError(domain.ErrInvalidInput, "minio save", errors.New("key is required"))
	}
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, data, -1, minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return fmt.Errorf("minio put object: %w", err)
	}
	return nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get object: %w", err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		code := minio.ToErrorResponse(err).Code
		if code == "NoSuchKey" || code == "NoSuchBucket" {
			return nil, domain.WrapError(domain.ErrFilingNotFound, "minio open", err)
		}
		return nil, fmt.Errorf("minio stat object: %w", err)
	}
	return obj, nil
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(strings.ToLower(key), ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
