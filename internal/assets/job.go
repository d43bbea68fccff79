package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/fincore/internal/jobs"
)

// TaskDepreciationRun posts one month of depreciation for every active asset.
const TaskDepreciationRun = "assets:depreciation:run"

const jobName = "assets_depreciation"

// DepreciationRunPayload names the month to post, formatted YYYY-MM. An
// empty period means the month before the task runs.
type DepreciationRunPayload struct {
	Period string `json:"period,omitempty"`
}

// NewDepreciationRunTask constructs the asynq task.
func NewDepreciationRunTask(period string) (*asynq.Task, error) {
	body, err := json.Marshal(DepreciationRunPayload{Period: period})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDepreciationRun, body, asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)), nil
}

// DepreciationJob runs RunMonthly from the worker.
type DepreciationJob struct {
	service     *Service
	metrics     *jobmetrics.Metrics
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
}

// NewDepreciationJob constructs the job handler.
func NewDepreciationJob(service *Service, metrics *jobmetrics.Metrics, logger *slog.Logger, concurrency int) *DepreciationJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &DepreciationJob{service: service, metrics: metrics, logger: logger, concurrency: concurrency, now: time.Now}
}

// ResolvePeriod turns the payload period into the first day of that month.
func (p DepreciationRunPayload) ResolvePeriod(now time.Time) (time.Time, error) {
	if p.Period == "" {
		return PeriodStart(now).AddDate(0, -1, 0), nil
	}
	t, err := time.Parse("2006-01", p.Period)
	if err != nil {
		return time.Time{}, fmt.Errorf("assets: period %q must be YYYY-MM", p.Period)
	}
	return t, nil
}

// Handle processes TaskDepreciationRun tasks.
func (j *DepreciationJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload DepreciationRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("assets: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	period, err := payload.ResolvePeriod(j.now())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	tracker := j.metrics.Track(jobName)
	summary, err := j.service.RunMonthly(ctx, period, j.concurrency)
	j.metrics.AddItems(jobName, "posted", summary.Posted)
	j.metrics.AddItems(jobName, "skipped", summary.Skipped)
	j.metrics.AddItems(jobName, "failed", summary.Failed)
	j.logger.Info("depreciation run finished",
		slog.String("period", period.Format("2006-01")),
		slog.Int("posted", summary.Posted),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.String("total", summary.Total.String()),
	)
	return tracker.End(err)
}
