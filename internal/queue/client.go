package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/docassist/internal/config"
)

// AsynqDispatcher enqueues processing tasks on Redis for cmd/worker.
type AsynqDispatcher struct {
	client  *asynq.Client
	timeout time.Duration
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewAsynqDispatcher bounds each task by timeout; zero leaves asynq's default.
func NewAsynqDispatcher(cfg config.RedisConfig, timeout time.Duration) *AsynqDispatcher {
	return &AsynqDispatcher{
		client:  asynq.NewClient(RedisOpt(cfg)),
		timeout: timeout,
	}
}

func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

// DispatchProcessing enqueues without retries: a failed run leaves the
// document FAILED and a redelivery would be skipped anyway.
func (d *AsynqDispatcher) DispatchProcessing(ctx context.Context, documentID uuid.UUID) error {
	task, err := NewDocumentProcessTask(documentID)
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.MaxRetry(0)}
	if d.timeout > 0 {
		opts = append(opts, asynq.Timeout(d.timeout))
	}
	if _, err := d.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeDocumentProcess, err)
	}
	return nil
}
