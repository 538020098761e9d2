package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/internal/service/ingest"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/queue"
)

type stubProcessor struct {
	refs []models.SourceRef
	out  ingest.Outcome
}

func (p *stubProcessor) ProcessOne(_ context.Context, ref models.SourceRef) ingest.Outcome {
	p.refs = append(p.refs, ref)
	o := p.out
	o.Ref = ref
	return o
}

type memStatuses struct {
	saved []*queue.TaskStatus
}

func (m *memStatuses) SaveFinalStatus(_ context.Context, s *queue.TaskStatus) error {
	m.saved = append(m.saved, s)
	return nil
}

func newWorker(p Processor, s StatusStore) *DocumentWorker {
	w := &DocumentWorker{
		BaseWorker: BaseWorker{mux: asynq.NewServeMux(), logger: logger.NewTestLogger()},
		processor:  p,
		statuses:   s,
		now:        func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) },
	}
	w.mux.HandleFunc(queue.TaskTypeDocumentOCR, w.handleDocument)
	return w
}

func task(t *testing.T, ref models.SourceRef) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(queue.DocumentPayload{Ref: ref})
	require.NoError(t, err)
	return asynq.NewTask(queue.TaskTypeDocumentOCR, payload)
}

func TestHandleDocument(t *testing.T) {
	p := &stubProcessor{out: ingest.Outcome{Status: models.StatusOK, OutputKey: "out/2019/a.json"}}
	s := &memStatuses{}
	w := newWorker(p, s)
	ref := models.SourceRef{Key: "in/2019/a.pdf", Partition: "2019"}

	require.NoError(t, w.mux.ProcessTask(context.Background(), task(t, ref)))
	assert.Equal(t, []models.SourceRef{ref}, p.refs)
	require.Len(t, s.saved, 1)
	assert.Equal(t, queue.TaskID(ref), s.saved[0].TaskID)
	assert.Equal(t, "ok", s.saved[0].Status)
	assert.Equal(t, "out/2019/a.json", s.saved[0].OutputKey)
}

func TestHandleDocumentFailureIsNotRetried(t *testing.T) {
	p := &stubProcessor{out: ingest.Outcome{
		Status: models.StatusFailed,
		Err:    &ingest.StageError{Stage: models.StageInvoking, Err: errors.New("503")},
	}}
	s := &memStatuses{}
	w := newWorker(p, s)

	require.NoError(t, w.mux.ProcessTask(context.Background(), task(t, models.SourceRef{Key: "in/b.pdf"})))
	require.Len(t, s.saved, 1)
	assert.Equal(t, "failed", s.saved[0].Status)
	assert.Equal(t, "invoking: 503", s.saved[0].Error)
}

func TestHandleDocumentBadPayload(t *testing.T) {
	p := &stubProcessor{}
	w := newWorker(p, &memStatuses{})

	err := w.mux.ProcessTask(context.Background(), asynq.NewTask(queue.TaskTypeDocumentOCR, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = w.mux.ProcessTask(context.Background(), asynq.NewTask(queue.TaskTypeDocumentOCR, []byte(`{"ref":{}}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, p.refs)
}
