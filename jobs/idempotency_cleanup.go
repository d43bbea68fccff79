package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/fincore/internal/jobs"
)

const idempotencyCleanupJob = "idempotency_cleanup"

// KeyCleaner deletes idempotency keys older than a cutoff.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob purges keys so the table does not grow forever.
type IdempotencyCleanupJob struct {
	store     KeyCleaner
	retention time.Duration
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob builds the handler. retention applies when the
// payload does not set one.
func NewIdempotencyCleanupJob(store KeyCleaner, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencyCleanupJob{store: store, retention: retention, logger: logger, metrics: metrics}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("idempotency cleanup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = j.retention
	}
	if retention <= 0 {
		return fmt.Errorf("idempotency cleanup: retention must be positive: %w", asynq.SkipRetry)
	}

	tracker := j.metrics.Track(idempotencyCleanupJob)
	removed, err := j.store.Cleanup(ctx, retention)
	if err != nil {
		j.logger.Error("idempotency cleanup failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.AddItems(idempotencyCleanupJob, "deleted", int(removed))
	j.logger.Info("idempotency keys purged", slog.Int64("deleted", removed), slog.Duration("retention", retention))
	return tracker.End(nil)
}
