package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/filing-pipeline/api/handlers"
	"github.com/feichai0017/filing-pipeline/internal/ledger"
	"github.com/feichai0017/filing-pipeline/internal/marker"
	"github.com/feichai0017/filing-pipeline/internal/metrics"
	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/internal/partition"
	"github.com/feichai0017/filing-pipeline/internal/service/ingest"
	"github.com/feichai0017/filing-pipeline/internal/source"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/queue"
	"github.com/feichai0017/filing-pipeline/pkg/storage/memory"
)

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type stubPipeline struct {
	success   *ledger.Ledger
	failure   *ledger.Ledger
	markers   *marker.Store
	inferer   *partition.Inferer
	metrics   *metrics.Metrics
	discovery *source.Discovery
	err       error
}

func (p *stubPipeline) Ledger(name string) (*ledger.Ledger, bool) {
	switch name {
	case "success":
		return p.success, true
	case "failure":
		return p.failure, true
	}
	return nil, false
}

func (p *stubPipeline) Markers() *marker.Store      { return p.markers }
func (p *stubPipeline) Inferer() *partition.Inferer { return p.inferer }
func (p *stubPipeline) InputRoot() string           { return "in/" }
func (p *stubPipeline) Metrics() *metrics.Metrics   { return p.metrics }

func (p *stubPipeline) Discover(_ context.Context, tokens []string) (*source.Discovery, error) {
	if len(tokens) == 0 {
		return nil, ingest.ErrNoPartitions
	}
	return p.discovery, p.err
}

type fakeQueue struct {
	tasks    map[string]models.SourceRef
	statuses map[string]*queue.TaskStatus
	fail     string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{tasks: map[string]models.SourceRef{}, statuses: map[string]*queue.TaskStatus{}}
}

func (q *fakeQueue) Enqueue(_ context.Context, ref models.SourceRef) (bool, error) {
	if ref.Key == q.fail {
		return false, errors.New("redis down")
	}
	id := queue.TaskID(ref)
	if _, ok := q.tasks[id]; ok {
		return false, nil
	}
	q.tasks[id] = ref
	return true, nil
}

func (q *fakeQueue) GetTaskStatus(_ context.Context, id string) (*queue.TaskStatus, error) {
	s, ok := q.statuses[id]
	if !ok {
		return nil, queue.ErrTaskNotFound
	}
	return s, nil
}

func (q *fakeQueue) SaveFinalStatus(_ context.Context, s *queue.TaskStatus) error {
	q.statuses[s.TaskID] = s
	return nil
}

func setup(t *testing.T) (*gin.Engine, *stubPipeline, *fakeQueue) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memory.New()
	log := logger.NewTestLogger()
	store := ledger.NewCSVStore(st, "ledgers/", log)
	p := &stubPipeline{
		success:   ledger.New(store, "processed.csv", ledger.SuccessHeader),
		failure:   ledger.New(store, "failed.csv", ledger.FailureHeader),
		markers:   marker.NewStore(st, "markers/", log, marker.WithClock(func() time.Time { return fixedNow })),
		inferer:   partition.NewInferer(partition.WithClock(func() time.Time { return fixedNow })),
		metrics:   metrics.NewMetrics(),
		discovery: &source.Discovery{},
	}
	q := newFakeQueue()

	r := gin.New()
	SetupRoutes(r, handlers.NewHandlers(p, q, log), p.metrics, log)
	return r, p, q
}

func do(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	r, _, _ := setup(t)

	w := do(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestGetLedger(t *testing.T) {
	r, p, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, p.failure.Append(ctx, "in/2019/a.pdf", "RemoteServiceError: 503"))

	w := do(r, http.MethodGet, "/api/v1/ledgers/failure", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[handlers.LedgerResponse](t, w)
	assert.Equal(t, "failed.csv", resp.Ledger)
	assert.Equal(t, ledger.FailureHeader, resp.Header)
	assert.Equal(t, [][]string{{"in/2019/a.pdf", "RemoteServiceError: 503"}}, resp.Rows)
	assert.Equal(t, 1, resp.Count)

	w = do(r, http.MethodGet, "/api/v1/ledgers/success", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[handlers.LedgerResponse](t, w).Count)

	w = do(r, http.MethodGet, "/api/v1/ledgers/audit", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetMarker(t *testing.T) {
	r, p, _ := setup(t)
	ref := models.SourceRef{Key: "a.pdf", Archive: "in/2019/bundle.zip"}
	require.NoError(t, p.markers.Write(context.Background(), ref, "out/2019/a.json"))

	w := do(r, http.MethodGet, "/api/v1/markers?key=a.pdf&archive=in/2019/bundle.zip", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[handlers.MarkerResponse](t, w)
	assert.True(t, resp.Exists)
	assert.Equal(t, "in/2019/bundle.zip::a.pdf", resp.DocumentID)
	assert.Equal(t, p.markers.Key(ref), resp.MarkerKey)
	require.NotNil(t, resp.Marker)
	assert.Equal(t, "out/2019/a.json", resp.Marker.JSONKey)
	assert.Equal(t, fixedNow.Unix(), resp.Marker.Timestamp)

	w = do(r, http.MethodGet, "/api/v1/markers?key=a.pdf", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[handlers.MarkerResponse](t, w)
	assert.False(t, resp.Exists)
	assert.Nil(t, resp.Marker)

	w = do(r, http.MethodGet, "/api/v1/markers", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInferYear(t *testing.T) {
	r, _, _ := setup(t)

	tests := []struct {
		query string
		year  string
		rule  string
	}{
		{"stem=Report_2019-03-31", "2019", "iso-date"},
		{"stem=annual_report&folder=2018_Q4", "2018", "folder"},
		{"stem=annual_report", "unknown", ""},
		{"stem=Plan_2099", "unknown", ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := do(r, http.MethodGet, "/api/v1/years?"+tt.query, "")
			require.Equal(t, http.StatusOK, w.Code)
			resp := decode[handlers.YearResponse](t, w)
			assert.Equal(t, tt.year, resp.Year)
			assert.Equal(t, tt.rule, resp.Rule)
		})
	}

	w := do(r, http.MethodGet, "/api/v1/years", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRun(t *testing.T) {
	r, p, q := setup(t)
	p.discovery = &source.Discovery{
		Partitions: []string{"in/2019/"},
		Candidates: []source.Candidate{
			{Ref: models.SourceRef{Key: "in/2019/a.pdf", Partition: "2019"}},
			{Ref: models.SourceRef{Key: "in/2019/b.pdf", Partition: "2019"}},
			{Ref: models.SourceRef{Key: "in/2019/broken.zip"}, Err: errors.New("zip: not a valid zip file")},
			{Ref: models.SourceRef{Key: "in/2019/c.pdf", Partition: "2019"}},
		},
	}
	q.fail = "in/2019/c.pdf"

	w := do(r, http.MethodPost, "/api/v1/runs", `{"partitions":["2019"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	resp := decode[handlers.RunResponse](t, w)
	assert.Equal(t, handlers.RunResponse{
		Partitions: []string{"in/2019/"},
		Documents:  4,
		Enqueued:   2,
		Broken:     1,
		Errors:     1,
	}, resp)

	w = do(r, http.MethodPost, "/api/v1/runs", `{"partitions":["2019"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	resp = decode[handlers.RunResponse](t, w)
	assert.Equal(t, 0, resp.Enqueued)
	assert.Equal(t, 2, resp.Duplicates)
}

func TestCreateRunErrors(t *testing.T) {
	r, p, _ := setup(t)

	w := do(r, http.MethodPost, "/api/v1/runs", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/runs", `{"partitions":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	p.err = errors.New("access denied")
	w = do(r, http.MethodPost, "/api/v1/runs", `{"partitions":["2019"]}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "access denied", decode[handlers.ErrorResponse](t, w).Error)
}

func TestGetTaskStatus(t *testing.T) {
	r, _, q := setup(t)
	require.NoError(t, q.SaveFinalStatus(context.Background(), &queue.TaskStatus{
		TaskID:    "abc",
		Status:    "ok",
		OutputKey: "out/2019/a.json",
	}))

	w := do(r, http.MethodGet, "/api/v1/tasks/abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "out/2019/a.json", decode[queue.TaskStatus](t, w).OutputKey)

	w = do(r, http.MethodGet, "/api/v1/tasks/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
