// Package memory is an in-process object store used for tests and dry runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/feichai0017/filing-pipeline/pkg/storage/object"
)

const defaultMaxKeys = 1000

type entry struct {
	data        []byte
	contentType string
}

// Storage keeps objects in a map guarded by a mutex.
type Storage struct {
	mu       sync.RWMutex
	objects  map[string]entry
	pageSize int32
}

// Option configures a memory Storage.
type Option func(*Storage)

// WithPageSize caps every List page, regardless of the caller's MaxKeys.
func WithPageSize(n int32) Option {
	return func(s *Storage) {
		s.pageSize = n
	}
}

func New(opts ...Option) *Storage {
	s := &Storage{objects: make(map[string]entry)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) List(ctx context.Context, prefix string, opts object.ListOptions) (*object.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)

	limit := opts.MaxKeys
	if limit <= 0 {
		limit = defaultMaxKeys
	}
	if s.pageSize > 0 && s.pageSize < limit {
		limit = s.pageSize
	}

	page := &object.ListPage{}
	var last string
	var count int32
	seen := make(map[string]bool)
	for _, k := range keys {
		item, isPrefix := k, false
		if opts.Delimiter != "" {
			rest := k[len(prefix):]
			if i := strings.Index(rest, opts.Delimiter); i >= 0 {
				item, isPrefix = prefix+rest[:i+len(opts.Delimiter)], true
			}
		}
		if item <= opts.ContinuationToken || seen[item] {
			continue
		}
		if count == limit {
			page.IsTruncated = true
			page.NextContinuationToken = last
			return page, nil
		}
		seen[item] = true
		if isPrefix {
			page.CommonPrefixes = append(page.CommonPrefixes, item)
		} else {
			page.Keys = append(page.Keys, item)
		}
		last = item
		count++
	}
	return page, nil
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.objects[key]
	if !ok {
		return nil, object.ErrNotFound
	}
	return append([]byte(nil), e.data...), nil
}

func (s *Storage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = entry{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (s *Storage) PutIfAbsent(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok {
		return object.ErrPreconditionFailed
	}
	s.objects[key] = entry{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (s *Storage) Head(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[key]; !ok {
		return object.ErrNotFound
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error.
func (s *Storage) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
}

// Keys returns every stored key under prefix, sorted.
func (s *Storage) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// ContentType reports the content type an object was stored with.
func (s *Storage) ContentType(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects[key].contentType
}
