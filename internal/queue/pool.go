package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

var ErrPoolClosed = errors.New("pool closed")

// Processor runs the ingestion pipeline for one document.
type Processor interface {
	Process(ctx context.Context, documentID uuid.UUID) error
}

// Pool runs processing in the API process itself, at most size documents at
// a time. Dispatch never blocks on the limit; waiting tasks queue on the
// semaphore.
type Pool struct {
	proc Processor
	sem  *semaphore.Weighted

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(proc Processor, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{proc: proc, sem: semaphore.NewWeighted(int64(size))}
}

// DispatchProcessing starts the pipeline detached from the caller's context,
// so the request that uploaded the document can finish first.
func (p *Pool) DispatchProcessing(ctx context.Context, documentID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go p.run(context.WithoutCancel(ctx), documentID)
	return nil
}

func (p *Pool) run(ctx context.Context, documentID uuid.UUID) {
	defer p.wg.Done()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer p.sem.Release(1)

	if err := p.proc.Process(ctx, documentID); err != nil {
		slog.Error("background processing failed", "document_id", documentID, "error", err)
	}
}

// Close stops accepting work and waits for queued and running tasks, or for
// ctx to end.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
