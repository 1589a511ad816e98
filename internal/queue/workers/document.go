package workers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/docassist/internal/queue"
)

// DocumentWorker consumes document:process tasks.
type DocumentWorker struct {
	proc queue.Processor
}

func NewDocumentWorker(proc queue.Processor) *DocumentWorker {
	return &DocumentWorker{proc: proc}
}

// ProcessTask never asks asynq to retry. A bad payload is archived; a
// pipeline failure has already been recorded on the document.
func (w *DocumentWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	docID, err := queue.ParseDocumentProcessPayload(t.Payload())
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	slog.Info("processing document", "document_id", docID)
	if err := w.proc.Process(ctx, docID); err != nil {
		slog.Warn("document processing ended in failure", "document_id", docID, "error", err)
	}
	return nil
}

