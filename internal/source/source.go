// Package source discovers candidate documents under the input root of the
// object store and fetches their bytes.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/storage"
)

// Options selects which keys count as documents.
type Options struct {
	DocumentSuffix string
	ArchiveSuffix  string
	ExpandArchives bool
}

// Candidate is one discovered document. Err is set for an archive that could
// not be opened; such candidates are recorded as failures, never processed.
type Candidate struct {
	Ref models.SourceRef
	Err error
}

// ArchiveError reports an archive, or an entry inside one, that could not be read.
type ArchiveError struct {
	Archive string
	Err     error
}

func (e *ArchiveError) Error() string {
	return e.Archive + ": " + e.Err.Error()
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// Discovery is the result of one discovery pass.
type Discovery struct {
	Partitions []string
	Candidates []Candidate
}

type Enumerator struct {
	storage storage.Storage
	opts    Options
	logger  logger.Logger
}

func NewEnumerator(st storage.Storage, opts Options, log logger.Logger) *Enumerator {
	return &Enumerator{storage: st, opts: opts, logger: log}
}

// ListPartitions returns the immediate sub-prefixes of root.
func (e *Enumerator) ListPartitions(ctx context.Context, root string) ([]string, error) {
	_, prefixes, err := storage.ListAll(ctx, e.storage, root, "/")
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions under %s: %w", root, err)
	}
	return prefixes, nil
}

// ListDocuments recursively returns every key under partition ending with
// suffix, compared case-insensitively.
func (e *Enumerator) ListDocuments(ctx context.Context, partition, suffix string) ([]string, error) {
	keys, _, err := storage.ListAll(ctx, e.storage, partition, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list documents under %s: %w", partition, err)
	}
	suffix = strings.ToLower(suffix)
	var out []string
	for _, k := range keys {
		if strings.HasSuffix(strings.ToLower(k), suffix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// MatchPartitions keeps the partitions whose folder name, relative to root,
// starts with any of tokens.
func MatchPartitions(root string, partitions, tokens []string) []string {
	var matched []string
	for _, p := range partitions {
		folder := strings.Trim(strings.TrimPrefix(p, root), "/")
		for _, t := range tokens {
			if strings.HasPrefix(folder, t) {
				matched = append(matched, p)
				break
			}
		}
	}
	return matched
}

// Discover lists the partitions of root matching tokens and every candidate
// document under them. Listing errors abort discovery.
func (e *Enumerator) Discover(ctx context.Context, root string, tokens []string) (*Discovery, error) {
	all, err := e.ListPartitions(ctx, root)
	if err != nil {
		return nil, err
	}
	d := &Discovery{Partitions: MatchPartitions(root, all, tokens)}

	e.logger.Info("Matched partitions",
		logger.String("root", root),
		logger.Strings("tokens", tokens),
		logger.Int("available", len(all)),
		logger.Int("matched", len(d.Partitions)),
	)

	for _, p := range d.Partitions {
		folder := strings.Trim(strings.TrimPrefix(p, root), "/")

		docs, err := e.ListDocuments(ctx, p, e.opts.DocumentSuffix)
		if err != nil {
			return nil, err
		}
		for _, k := range docs {
			d.Candidates = append(d.Candidates, Candidate{Ref: models.SourceRef{Key: k, Partition: folder}})
		}

		var archives int
		if e.opts.ExpandArchives && e.opts.ArchiveSuffix != "" {
			zips, err := e.ListDocuments(ctx, p, e.opts.ArchiveSuffix)
			if err != nil {
				return nil, err
			}
			for _, z := range zips {
				d.Candidates = append(d.Candidates, e.expand(ctx, z, folder)...)
			}
			archives = len(zips)
		}

		e.logger.Info("Listed partition",
			logger.String("partition", p),
			logger.Int("documents", len(docs)),
			logger.Int("archives", archives),
		)
	}
	return d, nil
}

func (e *Enumerator) expand(ctx context.Context, archiveKey, folder string) []Candidate {
	data, err := e.storage.Get(ctx, archiveKey)
	if err != nil {
		return []Candidate{{Ref: models.SourceRef{Key: archiveKey, Partition: folder}, Err: &ArchiveError{Archive: archiveKey, Err: err}}}
	}
	entries, err := archiveEntries(data, e.opts.DocumentSuffix)
	if err != nil {
		e.logger.Warn("Unreadable archive",
			logger.String("archive", archiveKey),
			logger.Error(err),
		)
		return []Candidate{{Ref: models.SourceRef{Key: archiveKey, Partition: folder}, Err: &ArchiveError{Archive: archiveKey, Err: err}}}
	}

	out := make([]Candidate, 0, len(entries))
	for _, name := range entries {
		out = append(out, Candidate{Ref: models.SourceRef{Key: name, Archive: archiveKey, Partition: folder}})
	}
	return out
}

// archiveEntries lists the document entries of a zip, skipping directories
// and macOS resource forks.
func archiveEntries(data []byte, suffix string) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("malformed archive: %w", err)
	}
	suffix = strings.ToLower(suffix)
	var names []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") || strings.HasPrefix(path.Base(f.Name), "._") {
			continue
		}
		if strings.HasSuffix(strings.ToLower(f.Name), suffix) {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Fetcher reads document bytes for a SourceRef.
type Fetcher struct {
	storage storage.Storage
}

func NewFetcher(st storage.Storage) *Fetcher {
	return &Fetcher{storage: st}
}

func (f *Fetcher) Fetch(ctx context.Context, ref models.SourceRef) (*models.SourceDocument, error) {
	if ref.Archive == "" {
		data, err := f.storage.Get(ctx, ref.Key)
		if err != nil {
			return nil, err
		}
		return &models.SourceDocument{Ref: ref, Data: data}, nil
	}

	archive, err := f.storage.Get(ctx, ref.Archive)
	if err != nil {
		return nil, err
	}
	data, err := readEntry(archive, ref.Key)
	if err != nil {
		return nil, &ArchiveError{Archive: ref.Archive, Err: err}
	}
	return &models.SourceDocument{Ref: ref, Data: data}, nil
}

func readEntry(archive []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("malformed archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open entry %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("entry %s not found", name)
}
