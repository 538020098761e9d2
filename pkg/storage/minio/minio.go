package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	cfg "github.com/feichai0017/filing-pipeline/config"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/storage/object"
)

type MinioStorage struct {
	client     *minio.Client
	bucketName string
	logger     logger.Logger
}

// List drains the object channel for prefix into a single page. MinIO's
// listing channel paginates internally, so continuation tokens are never set.
func (m *MinioStorage) List(ctx context.Context, prefix string, opts object.ListOptions) (*object.ListPage, error) {
	page := &object.ListPage{}
	objectCh := m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: opts.Delimiter == "",
	})

	for obj := range objectCh {
		if obj.Err != nil {
			m.logger.Error("Error listing objects",
				logger.String("bucket", m.bucketName),
				logger.String("prefix", prefix),
				logger.Error(obj.Err),
			)
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, obj.Err)
		}
		// Non-recursive listings report folders as keys ending in "/".
		if opts.Delimiter != "" && strings.HasSuffix(obj.Key, opts.Delimiter) {
			page.CommonPrefixes = append(page.CommonPrefixes, obj.Key)
			continue
		}
		page.Keys = append(page.Keys, obj.Key)
	}

	return page, nil
}

func (m *MinioStorage) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.mapError("Failed to get file from MinIO", key, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.mapError("Failed to read file from MinIO", key, err)
	}
	return data, nil
}

func (m *MinioStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		m.logger.Error("Failed to store file to MinIO",
			logger.String("bucket", m.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (m *MinioStorage) Head(ctx context.Context, key string) error {
	if _, err := m.client.StatObject(ctx, m.bucketName, key, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return object.ErrNotFound
		}
		return fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return nil
}

func (m *MinioStorage) mapError(msg, key string, err error) error {
	if isNotFound(err) {
		return object.ErrNotFound
	}
	m.logger.Error(msg,
		logger.String("bucket", m.bucketName),
		logger.String("key", key),
		logger.Error(err),
	)
	return fmt.Errorf("minio %s: %w", key, err)
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.StatusCode == 404
	}
	resp = minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey"
}

func NewMinioStorage(ctx context.Context, bucket string, log logger.Logger) (*MinioStorage, error) {
	minioConfig := cfg.GetMinioConfig()
	if bucket == "" {
		bucket = minioConfig.BucketName
	}
	if minioConfig.Endpoint == "" || bucket == "" {
		return nil, fmt.Errorf("%w: MINIO_ENDPOINT and bucket name", cfg.ErrMissingCredential)
	}

	client, err := minio.New(minioConfig.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(minioConfig.AccessKey, minioConfig.SecretKey, ""),
		Secure: minioConfig.UseSSL,
		Region: minioConfig.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{
			Region: minioConfig.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Info("Created MinIO bucket", logger.String("bucket", bucket))
	}

	return &MinioStorage{
		client:     client,
		bucketName: bucket,
		logger:     log,
	}, nil
}
