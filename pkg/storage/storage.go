package storage

import (
	"context"
	"fmt"

	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/storage/gcs"
	"github.com/feichai0017/filing-pipeline/pkg/storage/memory"
	"github.com/feichai0017/filing-pipeline/pkg/storage/minio"
	"github.com/feichai0017/filing-pipeline/pkg/storage/object"
	"github.com/feichai0017/filing-pipeline/pkg/storage/s3"
)

// StorageType selects a backend
type StorageType string

const (
	StorageTypeS3     StorageType = "s3"
	StorageTypeMinio  StorageType = "minio"
	StorageTypeGCS    StorageType = "gcs"
	StorageTypeMemory StorageType = "memory"
)

type (
	ListOptions = object.ListOptions
	ListPage    = object.ListPage
)

var (
	ErrNotFound           = object.ErrNotFound
	ErrPreconditionFailed = object.ErrPreconditionFailed
)

// Storage is the object store gateway. Keys are full object paths inside one bucket.
type Storage interface {
	// List returns one page of keys under prefix.
	List(ctx context.Context, prefix string, opts ListOptions) (*ListPage, error)
	// Get returns the object body, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put creates or overwrites the object.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Head returns nil when the object exists and ErrNotFound when it does not.
	Head(ctx context.Context, key string) error
}

// ConditionalPutter is implemented by backends that can create an object only
// when the key is absent.
type ConditionalPutter interface {
	PutIfAbsent(ctx context.Context, key string, data []byte, contentType string) error
}

// NewStorage builds the backend named by storageType for bucket.
func NewStorage(ctx context.Context, storageType StorageType, bucket string, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, bucket, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, bucket, log)
	case StorageTypeGCS:
		return gcs.NewGCSStorage(ctx, bucket, log)
	case StorageTypeMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// ListAll drains every page under prefix.
func ListAll(ctx context.Context, s Storage, prefix, delimiter string) (keys, prefixes []string, err error) {
	var token string
	for {
		page, err := s.List(ctx, prefix, ListOptions{Delimiter: delimiter, ContinuationToken: token})
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, page.Keys...)
		prefixes = append(prefixes, page.CommonPrefixes...)
		if !page.IsTruncated || page.NextContinuationToken == "" {
			return keys, prefixes, nil
		}
		token = page.NextContinuationToken
	}
}
