package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/docassist/internal/repository"
)

const reconcileLockKey = "docassist:lock:reconcile"

// Locker grants a short exclusive lease across replicas.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Reconciler fails documents stuck before a terminal status, for example
// after a worker crashed mid-pipeline or an upload died halfway.
type Reconciler struct {
	docs     repository.DocumentRepository
	locker   Locker
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewReconciler accepts a nil locker for single-replica deployments.
func NewReconciler(docs repository.DocumentRepository, locker Locker, timeout, interval time.Duration) *Reconciler {
	return &Reconciler{
		docs:     docs,
		locker:   locker,
		timeout:  timeout,
		interval: interval,
		now:      repository.Now,
	}
}

// Sweep marks every UPLOADING or PROCESSING document untouched for longer
// than the timeout as FAILED and returns how many it moved.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	if r.locker != nil {
		ok, err := r.locker.TryLock(ctx, reconcileLockKey, r.interval)
		if err != nil {
			return 0, fmt.Errorf("acquire reconcile lock: %w", err)
		}
		if !ok {
			slog.Debug("reconcile sweep held by another replica")
			return 0, nil
		}
	}

	now := r.now()
	ids, err := r.docs.FailStale(ctx, now.Add(-r.timeout), now)
	if err != nil {
		return 0, fmt.Errorf("sweep stale documents: %w", err)
	}
	for _, id := range ids {
		slog.Warn("document processing timed out, marked failed", "document_id", id, "timeout", r.timeout)
	}
	return len(ids), nil
}

// Run sweeps once immediately and then every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			slog.Error("reconcile sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
