package mistral

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/filing-pipeline/internal/agent/ocr"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
)

func newServer(t *testing.T, ocrStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "ocr", r.FormValue("purpose"))
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "Acme_2019.pdf", header.Filename)
		assert.Equal(t, "%PDF-1.4", string(data))
		_, _ = w.Write([]byte(`{"id":"file-123","purpose":"ocr"}`))
	})
	mux.HandleFunc("/v1/files/file-123/url", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "24", r.URL.Query().Get("expiry"))
		_, _ = w.Write([]byte(`{"url":"https://signed.example/file-123"}`))
	})
	mux.HandleFunc("/v1/ocr", func(w http.ResponseWriter, r *http.Request) {
		if ocrStatus != http.StatusOK {
			w.WriteHeader(ocrStatus)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
			return
		}
		var req ocrRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral-ocr-latest", req.Model)
		assert.Equal(t, "document_url", req.Document.Type)
		assert.Equal(t, "https://signed.example/file-123", req.Document.DocumentURL)
		assert.True(t, req.IncludeImageBase64)
		_, _ = w.Write([]byte(`{
			"pages":[{"index":0,"markdown":"# Annual report\n![img-0.jpeg](img-0.jpeg)","images":[{"id":"img-0.jpeg","image_base64":"data:image/jpeg;base64,AAA"}],"dimensions":{"dpi":200,"height":2200,"width":1700},"header":"Annual report 2019","tables":[]}],
			"model":"mistral-ocr-2505",
			"document_annotation":null,
			"usage_info":{"pages_processed":1,"doc_size_bytes":8}
		}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProcess(t *testing.T) {
	srv := newServer(t, http.StatusOK)
	c := NewClient(Config{APIKey: "secret", Endpoint: srv.URL, IncludeImages: true}, logger.NewTestLogger())

	result, err := c.Process(context.Background(), []byte("%PDF-1.4"), "Acme_2019")
	require.NoError(t, err)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, "# Annual report\n![img-0.jpeg](img-0.jpeg)", result.Pages[0].Markdown)
	assert.Equal(t, "img-0.jpeg", result.Pages[0].Images[0].ID)
	assert.Equal(t, 200, result.Pages[0].Dimensions.DPI)
	assert.Equal(t, "mistral-ocr-2505", result.Model)
	assert.Equal(t, 1, result.UsageInfo.PagesProcessed)

	// Fields the result does not model are kept in Raw.
	assert.Contains(t, string(result.Raw), `"header":"Annual report 2019"`)
	assert.Contains(t, string(result.Raw), `"document_annotation":null`)
}

func TestProcessStatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		temporary bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := newServer(t, tt.status)
			c := NewClient(Config{APIKey: "secret", Endpoint: srv.URL, IncludeImages: true}, logger.NewTestLogger())

			_, err := c.Process(context.Background(), []byte("%PDF-1.4"), "Acme_2019")
			var remote *ocr.RemoteServiceError
			require.True(t, errors.As(err, &remote))
			assert.Equal(t, tt.status, remote.StatusCode)
			assert.Equal(t, "ocr", remote.Operation)
			assert.Equal(t, `{"message":"nope"}`, remote.Message)
			assert.Equal(t, tt.temporary, ocr.IsRetryable(err))
		})
	}
}

func TestProcessUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewClient(Config{APIKey: "secret", Endpoint: srv.URL}, logger.NewTestLogger())

	_, err := c.Process(context.Background(), []byte("%PDF"), "x")
	var remote *ocr.RemoteServiceError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "upload", remote.Operation)
	assert.True(t, remote.Temporary)
}
