package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency:cleanup"
	// TaskLedgerIntegrity re-checks that posted journal entries still balance.
	TaskLedgerIntegrity = "ledger:integrity:scan"
)

// IdempotencyCleanupPayload controls how old a key must be to go.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}

// LedgerIntegrityPayload selects the fiscal year to scan; zero means the
// current one.
type LedgerIntegrityPayload struct {
	FiscalYear int `json:"fiscal_year"`
}

// NewLedgerIntegrityTask constructs an Asynq task.
func NewLedgerIntegrityTask(fiscalYear int) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerIntegrityPayload{FiscalYear: fiscalYear})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data, asynq.MaxRetry(3), asynq.Timeout(15*time.Minute)), nil
}
