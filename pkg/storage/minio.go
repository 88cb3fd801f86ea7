package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-merge/pkg/retry"
)

// MinioConfig holds S3-compatible connection settings.
type MinioConfig struct {
	Endpoint        string // e.g. "minio:9000" or "localhost:9000"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	MaxObjectBytes  int64
}

// MinioStore keeps uploaded files in one S3-compatible bucket, keyed per tenant.
type MinioStore struct {
	mc       *minio.Client
	bucket   string
	maxBytes int64
	retryCfg *retry.Config
	logger   *zap.Logger
}

var _ BlobStore = (*MinioStore)(nil)

// NewMinioStore creates a store for cfg.Bucket. The bucket is not created here; see EnsureBucket.
func NewMinioStore(cfg MinioConfig, logger *zap.Logger) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioStore{
		mc:       mc,
		bucket:   cfg.Bucket,
		maxBytes: cfg.MaxObjectBytes,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.Named("minio"),
	}, nil
}

// EnsureBucket creates the bucket if it does not exist (idempotent).
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

// Get downloads an object, retrying transient failures.
func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		var err error
		data, err = s.get(ctx, key)
		if err != nil && retry.IsRetryable(err) {
			s.logger.Warn("Transient object read failure",
				zap.String("key", key),
				zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *MinioStore) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.mc.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(key, err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return nil, s.translate(key, err)
	}

	data, err := readLimited(obj, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	return data, nil
}

// Put uploads an object.
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.mc.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

func (s *MinioStore) translate(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("object %q: %w", key, apperrors.ErrNotFound)
	}
	return fmt.Errorf("get object %q: %w", key, err)
}
