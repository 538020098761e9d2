// Package object holds the types shared by every object store backend.
package object

import "errors"

var (
	// ErrNotFound is returned by Get and Head when the key does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrPreconditionFailed is returned by PutIfAbsent when the key already exists.
	ErrPreconditionFailed = errors.New("object already exists")
)

// ListOptions controls a single List call.
type ListOptions struct {
	// Delimiter groups keys sharing a prefix up to the delimiter into
	// CommonPrefixes. Empty lists recursively.
	Delimiter         string
	ContinuationToken string
	MaxKeys           int32
}

// ListPage is one page of a listing. Callers drain pages until IsTruncated is false.
type ListPage struct {
	Keys                  []string
	CommonPrefixes        []string
	NextContinuationToken string
	IsTruncated           bool
}
