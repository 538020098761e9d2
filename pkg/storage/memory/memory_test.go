package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feichai0017/filing-pipeline/pkg/storage/object"
)

func seed(t *testing.T, s *Storage, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, s.Put(context.Background(), k, []byte(k), "text/plain"))
	}
}

func TestListPaginatesRecursively(t *testing.T) {
	ctx := context.Background()
	s := New(WithPageSize(2))
	seed(t, s, "in/2001/a.pdf", "in/2001/b.pdf", "in/2002/c.pdf", "other/x.pdf")

	var keys []string
	var token string
	pages := 0
	for {
		page, err := s.List(ctx, "in/", object.ListOptions{ContinuationToken: token})
		require.NoError(t, err)
		pages++
		keys = append(keys, page.Keys...)
		if !page.IsTruncated {
			break
		}
		token = page.NextContinuationToken
	}

	require.Equal(t, []string{"in/2001/a.pdf", "in/2001/b.pdf", "in/2002/c.pdf"}, keys)
	require.Equal(t, 2, pages)
}

func TestListGroupsByDelimiter(t *testing.T) {
	s := New()
	seed(t, s, "in/2001/a.pdf", "in/2001/b.pdf", "in/2002_Q4/c.pdf", "in/readme.txt")

	page, err := s.List(context.Background(), "in/", object.ListOptions{Delimiter: "/"})
	require.NoError(t, err)
	require.Equal(t, []string{"in/2001/", "in/2002_Q4/"}, page.CommonPrefixes)
	require.Equal(t, []string{"in/readme.txt"}, page.Keys)
	require.False(t, page.IsTruncated)
}

func TestListDelimiterPagination(t *testing.T) {
	ctx := context.Background()
	s := New(WithPageSize(1))
	seed(t, s, "in/2001/a.pdf", "in/2001/b.pdf", "in/2002/c.pdf")

	first, err := s.List(ctx, "in/", object.ListOptions{Delimiter: "/"})
	require.NoError(t, err)
	require.Equal(t, []string{"in/2001/"}, first.CommonPrefixes)
	require.True(t, first.IsTruncated)

	second, err := s.List(ctx, "in/", object.ListOptions{Delimiter: "/", ContinuationToken: first.NextContinuationToken})
	require.NoError(t, err)
	require.Equal(t, []string{"in/2002/"}, second.CommonPrefixes)
	require.False(t, second.IsTruncated)
}

func TestGetHeadAndConditionalPut(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, object.ErrNotFound)
	require.ErrorIs(t, s.Head(ctx, "missing"), object.ErrNotFound)

	require.NoError(t, s.PutIfAbsent(ctx, "k", []byte("1"), "text/plain"))
	require.ErrorIs(t, s.PutIfAbsent(ctx, "k", []byte("2"), "text/plain"), object.ErrPreconditionFailed)

	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "1", string(data))
	require.NoError(t, s.Head(ctx, "k"))
	require.Equal(t, "text/plain", s.ContentType("k"))

	s.Delete("k")
	require.Empty(t, s.Keys(""))
}
