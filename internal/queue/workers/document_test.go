package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/docassist/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProcessor struct {
	got uuid.UUID
	err error
}

func (s *stubProcessor) Process(_ context.Context, id uuid.UUID) error {
	s.got = id
	return s.err
}

func TestDocumentWorker_ProcessesPayload(t *testing.T) {
	proc := &stubProcessor{}
	w := NewDocumentWorker(proc)

	id := uuid.New()
	task, err := queue.NewDocumentProcessTask(id)
	require.NoError(t, err)

	require.NoError(t, w.ProcessTask(context.Background(), task))
	assert.Equal(t, id, proc.got)
}

func TestDocumentWorker_PipelineFailureIsNotRetried(t *testing.T) {
	w := NewDocumentWorker(&stubProcessor{err: errors.New("extraction failed")})
	task, err := queue.NewDocumentProcessTask(uuid.New())
	require.NoError(t, err)

	assert.NoError(t, w.ProcessTask(context.Background(), task))
}

func TestDocumentWorker_MalformedPayloadSkipsRetry(t *testing.T) {
	proc := &stubProcessor{}
	w := NewDocumentWorker(proc)

	err := w.ProcessTask(context.Background(), asynq.NewTask(queue.TypeDocumentProcess, []byte("garbage")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, uuid.Nil, proc.got)
}

func TestHandlersRegistry_RoutesByType(t *testing.T) {
	proc := &stubProcessor{}
	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeDocumentProcess, asynq.HandlerFunc(NewDocumentWorker(proc).ProcessTask))

	id := uuid.New()
	task, err := queue.NewDocumentProcessTask(id)
	require.NoError(t, err)

	require.NoError(t, registry.Mux().ProcessTask(context.Background(), task))
	assert.Equal(t, id, proc.got)

	err = registry.Mux().ProcessTask(context.Background(), asynq.NewTask("unknown:type", nil))
	assert.Error(t, err)
}
