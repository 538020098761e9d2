package source

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/storage"
	"github.com/feichai0017/filing-pipeline/pkg/storage/memory"
)

const root = "Unziped_Documents/"

func put(t *testing.T, st *memory.Storage, key string, data []byte) {
	t.Helper()
	require.NoError(t, st.Put(context.Background(), key, data, "application/octet-stream"))
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func seed(t *testing.T) *memory.Storage {
	st := memory.New(memory.WithPageSize(2))
	put(t, st, root+"2001/a.pdf", []byte("%PDF a"))
	put(t, st, root+"2001/sub/b.PDF", []byte("%PDF b"))
	put(t, st, root+"2001/notes.txt", []byte("x"))
	put(t, st, root+"2001_Q4/c.pdf", []byte("%PDF c"))
	put(t, st, root+"2011/d.pdf", []byte("%PDF d"))
	put(t, st, root+"2022/e.pdf", []byte("%PDF e"))
	put(t, st, root+"readme.pdf", []byte("%PDF top"))
	return st
}

func TestListPartitionsDrainsPages(t *testing.T) {
	e := NewEnumerator(seed(t), Options{DocumentSuffix: ".pdf"}, logger.NewTestLogger())

	parts, err := e.ListPartitions(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{root + "2001/", root + "2001_Q4/", root + "2011/", root + "2022/"}, parts)
}

func TestListDocumentsCaseInsensitiveSuffix(t *testing.T) {
	e := NewEnumerator(seed(t), Options{DocumentSuffix: ".pdf"}, logger.NewTestLogger())

	docs, err := e.ListDocuments(context.Background(), root+"2001/", ".pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{root + "2001/a.pdf", root + "2001/sub/b.PDF"}, docs)
}

func TestMatchPartitions(t *testing.T) {
	parts := []string{root + "2001/", root + "2001_Q4/", root + "2011/", root + "2022/"}

	assert.Equal(t, []string{root + "2001/", root + "2001_Q4/"}, MatchPartitions(root, parts, []string{"2001"}))
	assert.Equal(t, []string{root + "2001_Q4/", root + "2022/"}, MatchPartitions(root, parts, []string{"2022", "2001_Q"}))
	assert.Empty(t, MatchPartitions(root, parts, nil))
	assert.Empty(t, MatchPartitions(root, parts, []string{"1999"}))
}

func TestDiscover(t *testing.T) {
	e := NewEnumerator(seed(t), Options{DocumentSuffix: ".pdf"}, logger.NewTestLogger())

	d, err := e.Discover(context.Background(), root, []string{"2001"})
	require.NoError(t, err)
	assert.Equal(t, []string{root + "2001/", root + "2001_Q4/"}, d.Partitions)
	require.Len(t, d.Candidates, 3)
	assert.Equal(t, models.SourceRef{Key: root + "2001/a.pdf", Partition: "2001"}, d.Candidates[0].Ref)
	assert.Equal(t, "2001_Q4", d.Candidates[2].Ref.Partition)
}

func TestDiscoverExpandsArchives(t *testing.T) {
	st := memory.New()
	put(t, st, root+"2005/bundle.zip", buildZip(t, map[string]string{
		"filings/x.pdf":          "%PDF x",
		"filings/y.PDF":          "%PDF y",
		"filings/cover.txt":      "skip",
		"__MACOSX/filings/x.pdf": "fork",
	}))
	put(t, st, root+"2005/broken.zip", []byte("not a zip"))
	e := NewEnumerator(st, Options{DocumentSuffix: ".pdf", ArchiveSuffix: ".zip", ExpandArchives: true}, logger.NewTestLogger())

	d, err := e.Discover(context.Background(), root, []string{"2005"})
	require.NoError(t, err)
	require.Len(t, d.Candidates, 3)

	broken := d.Candidates[0]
	assert.Equal(t, root+"2005/broken.zip", broken.Ref.Key)
	require.Error(t, broken.Err)
	assert.Contains(t, broken.Err.Error(), "malformed archive")
	var archiveErr *ArchiveError
	require.ErrorAs(t, broken.Err, &archiveErr)
	assert.Equal(t, root+"2005/broken.zip", archiveErr.Archive)

	assert.Equal(t, models.SourceRef{Key: "filings/x.pdf", Archive: root + "2005/bundle.zip", Partition: "2005"}, d.Candidates[1].Ref)
	assert.NoError(t, d.Candidates[1].Err)
	assert.Equal(t, "filings/y.PDF", d.Candidates[2].Ref.Key)

	doc, err := NewFetcher(st).Fetch(context.Background(), d.Candidates[1].Ref)
	require.NoError(t, err)
	assert.Equal(t, "%PDF x", string(doc.Data))
}

type failingList struct {
	storage.Storage
}

func (failingList) List(context.Context, string, storage.ListOptions) (*storage.ListPage, error) {
	return nil, errors.New("access denied")
}

func TestDiscoverListingErrorIsFatal(t *testing.T) {
	e := NewEnumerator(failingList{memory.New()}, Options{DocumentSuffix: ".pdf"}, logger.NewTestLogger())

	_, err := e.Discover(context.Background(), root, []string{"2001"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestFetch(t *testing.T) {
	st := seed(t)
	f := NewFetcher(st)

	doc, err := f.Fetch(context.Background(), models.SourceRef{Key: root + "2011/d.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "%PDF d", string(doc.Data))

	_, err = f.Fetch(context.Background(), models.SourceRef{Key: root + "missing.pdf"})
	require.ErrorIs(t, err, storage.ErrNotFound)

	put(t, st, root+"2011/z.zip", buildZip(t, map[string]string{"a.pdf": "%PDF"}))
	_, err = f.Fetch(context.Background(), models.SourceRef{Key: "b.pdf", Archive: root + "2011/z.zip"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry b.pdf not found")
}
