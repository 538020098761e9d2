// Package gcs is the Google Cloud Storage gateway backend.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	cfg "github.com/feichai0017/filing-pipeline/config"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/storage/object"
)

const defaultPageSize = 1000

type GCSStorage struct {
	bucket     *storage.BucketHandle
	bucketName string
	logger     logger.Logger
}

func New(client *storage.Client, bucket string, log logger.Logger) *GCSStorage {
	return &GCSStorage{bucket: client.Bucket(bucket), bucketName: bucket, logger: log}
}

// NewGCSStorage uses application default credentials unless
// GOOGLE_APPLICATION_CREDENTIALS names a key file.
func NewGCSStorage(ctx context.Context, bucket string, log logger.Logger) (*GCSStorage, error) {
	gcsConfig := cfg.GetGCSConfig()
	if bucket == "" {
		bucket = gcsConfig.BucketName
	}
	if bucket == "" {
		return nil, fmt.Errorf("%w: GCS_BUCKET_NAME", cfg.ErrMissingCredential)
	}

	var opts []option.ClientOption
	if gcsConfig.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(gcsConfig.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	log.Info("GCS Configuration",
		logger.String("bucket", bucket),
		logger.String("project", gcsConfig.ProjectID),
	)
	return New(client, bucket, log), nil
}

func (g *GCSStorage) List(ctx context.Context, prefix string, opts object.ListOptions) (*object.ListPage, error) {
	query := &storage.Query{Prefix: prefix, Delimiter: opts.Delimiter}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, err
	}

	pageSize := int(opts.MaxKeys)
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var attrs []*storage.ObjectAttrs
	pager := iterator.NewPager(g.bucket.Objects(ctx, query), pageSize, opts.ContinuationToken)
	next, err := pager.NextPage(&attrs)
	if err != nil {
		g.logger.Error("Failed to list objects",
			logger.String("bucket", g.bucketName),
			logger.String("prefix", prefix),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
	}

	page := &object.ListPage{NextContinuationToken: next, IsTruncated: next != ""}
	for _, a := range attrs {
		// Synthetic directory entries carry only Prefix.
		if a.Prefix != "" {
			page.CommonPrefixes = append(page.CommonPrefixes, a.Prefix)
			continue
		}
		page.Keys = append(page.Keys, a.Name)
	}
	return page, nil
}

func (g *GCSStorage) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, object.ErrNotFound
		}
		g.logger.Error("Failed to get file from GCS",
			logger.String("bucket", g.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (g *GCSStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return g.write(ctx, g.bucket.Object(key), key, data, contentType)
}

// PutIfAbsent writes with a DoesNotExist precondition. A 412 from GCS means
// another writer got there first.
func (g *GCSStorage) PutIfAbsent(ctx context.Context, key string, data []byte, contentType string) error {
	obj := g.bucket.Object(key).If(storage.Conditions{DoesNotExist: true})
	err := g.write(ctx, obj, key, data, contentType)
	if isPreconditionFailed(err) {
		return object.ErrPreconditionFailed
	}
	return err
}

func (g *GCSStorage) write(ctx context.Context, obj *storage.ObjectHandle, key string, data []byte, contentType string) error {
	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		if !isPreconditionFailed(err) {
			g.logger.Error("Failed to finalize GCS write",
				logger.String("bucket", g.bucketName),
				logger.String("key", key),
				logger.Error(err),
			)
		}
		return fmt.Errorf("failed to finalize %s: %w", key, err)
	}
	return nil
}

func (g *GCSStorage) Head(ctx context.Context, key string) error {
	if _, err := g.bucket.Object(key).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return object.ErrNotFound
		}
		return fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}
