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
	"github.com/odyssey-erp/fincore/internal/ledger"
)

const ledgerIntegrityJob = "ledger_integrity"

// PostedEntrySource lists the posted entries of a fiscal year.
type PostedEntrySource interface {
	ListPostedEntries(ctx context.Context, fiscalYear int) ([]ledger.JournalEntry, error)
}

// LedgerIntegrityJob verifies that every posted entry still balances. An
// unbalanced posted entry means the table was edited outside the service.
type LedgerIntegrityJob struct {
	source  PostedEntrySource
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLedgerIntegrityJob initialises the scan handler.
func NewLedgerIntegrityJob(source PostedEntrySource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerIntegrityJob{
		source:  source,
		logger:  logger,
		metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the integrity scan. Finding unbalanced entries is
// reported, not retried.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.source == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("ledger integrity: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.FiscalYear == 0 {
		payload.FiscalYear = j.clock().Year()
	}

	tracker := j.metrics.Track(ledgerIntegrityJob)
	entries, err := j.source.ListPostedEntries(ctx, payload.FiscalYear)
	if err != nil {
		j.logger.Error("ledger integrity: list posted entries", slog.Int("fiscal_year", payload.FiscalYear), slog.Any("error", err))
		return tracker.End(err)
	}

	unbalanced := 0
	for _, e := range entries {
		if err := ledger.ValidateBalance(e.Lines); err != nil {
			unbalanced++
			j.logger.Warn("posted entry does not balance",
				slog.String("entry_id", e.ID.String()),
				slog.Int("fiscal_year", e.FiscalYear),
				slog.Any("error", err))
		}
	}
	j.metrics.AddItems(ledgerIntegrityJob, "balanced", len(entries)-unbalanced)
	j.metrics.AddItems(ledgerIntegrityJob, "unbalanced", unbalanced)
	j.logger.Info("ledger integrity scan finished",
		slog.Int("fiscal_year", payload.FiscalYear),
		slog.Int("entries", len(entries)),
		slog.Int("unbalanced", unbalanced))
	return tracker.End(nil)
}
