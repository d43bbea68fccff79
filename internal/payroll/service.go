package payroll

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRecord(ctx context.Context, id uuid.UUID) (Record, error)
	ListPeriod(ctx context.Context, period Period) ([]Record, error)
}

// TxRepository exposes operations executed inside one transaction.
type TxRepository interface {
	// FindForPeriod returns the locked record for (employee, period) or nil.
	FindForPeriod(ctx context.Context, employeeRef string, period Period) (*Record, error)
	// Upsert inserts or overwrites on (employee, period); an existing row
	// is only overwritten while DRAFT.
	Upsert(ctx context.Context, rec Record) (bool, error)
	GetRecord(ctx context.Context, id uuid.UUID) (Record, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to lifecycle.State, at time.Time) (bool, error)
}

// Service generates payroll idempotently and drives record lifecycle.
type Service struct {
	repo    RepositoryPort
	locker  shared.Locker
	lockTTL time.Duration
	history shared.HistoryPort
	logger  *slog.Logger
	now     func() time.Time
	newID   func() uuid.UUID
}

// NewService constructs the payroll service. A nil locker disables locking.
func NewService(repo RepositoryPort, locker shared.Locker, lockTTL time.Duration, history shared.HistoryPort, logger *slog.Logger) *Service {
	if locker == nil {
		locker = shared.NoopLocker{}
	}
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		lockTTL: lockTTL,
		history: history,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.New,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Generate upserts the period's record for every employee. Each employee is
// written in its own transaction; a failure is reported on its result and
// does not stop the others. Running it again with the same data is a no-op.
func (s *Service) Generate(ctx context.Context, input GenerateInput) ([]GenerateResult, error) {
	if err := input.Period.Validate(); err != nil {
		return nil, err
	}
	if len(input.Employees) == 0 {
		return nil, ErrNoEmployees
	}
	release, err := s.locker.Acquire(ctx, shared.PayrollLockKey(input.Period.Month, input.Period.Year), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release payroll lock", slog.String("period", input.Period.String()), slog.Any("error", err))
		}
	}()

	results := make([]GenerateResult, 0, len(input.Employees))
	for _, emp := range input.Employees {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		ref := strings.TrimSpace(emp.EmployeeRef)
		rec, outcome, err := s.generateOne(ctx, Input{
			EmployeeRef: ref,
			Period:      input.Period,
			BasicSalary: emp.BasicSalary,
			Allowances:  emp.Allowances,
			Deductions:  emp.Deductions,
		}, input.ActorID)
		if err != nil {
			results = append(results, GenerateResult{Record: Record{EmployeeRef: ref, Period: input.Period}, Err: err})
			continue
		}
		results = append(results, GenerateResult{Record: rec, Outcome: outcome})
	}
	return results, nil
}

func (s *Service) generateOne(ctx context.Context, in Input, actorID int64) (Record, Outcome, error) {
	var (
		rec     Record
		outcome Outcome
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindForPeriod(ctx, in.EmployeeRef, in.Period)
		if err != nil {
			return err
		}
		next, out, err := Generate(existing, in)
		if err != nil {
			return err
		}
		if out == OutcomeUnchanged {
			rec, outcome = next, out
			return nil
		}
		now := s.now()
		if out == OutcomeNew {
			next.ID = s.newID()
			next.CreatedBy = actorID
			next.CreatedAt = now
		}
		next.UpdatedAt = now
		ok, err := tx.Upsert(ctx, next)
		if err != nil {
			return err
		}
		if !ok {
			return &shared.StaleStateError{Entity: "payroll_record", ID: in.EmployeeRef + "@" + in.Period.String(), Expected: string(lifecycle.StateDraft)}
		}
		rec, outcome = next, out
		return nil
	})
	if err != nil {
		return Record{}, "", err
	}
	if outcome != OutcomeUnchanged {
		s.audit(ctx, actorID, "payroll.record.generate", rec.ID, map[string]any{
			"employee":   rec.EmployeeRef,
			"period":     rec.Period.String(),
			"outcome":    string(outcome),
			"net_salary": rec.NetSalary.String(),
		})
	}
	return rec, outcome, nil
}

// GetRecord returns one payroll record.
func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (Record, error) {
	return s.repo.GetRecord(ctx, id)
}

// ListPeriod returns every record of a period.
func (s *Service) ListPeriod(ctx context.Context, period Period) ([]Record, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListPeriod(ctx, period)
}

// Transition applies a lifecycle action. Approve and pay require the stored
// figures to reconcile with the stored inputs.
func (s *Service) Transition(ctx context.Context, input TransitionInput) (Record, error) {
	if input.RecordID == uuid.Nil {
		return Record{}, errors.New("payroll: record id required")
	}
	var (
		out Record
		res lifecycle.Result
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetRecord(ctx, input.RecordID)
		if err != nil {
			return err
		}
		res, err = lifecycle.Apply(lifecycle.Request{
			Kind:     lifecycle.KindPayroll,
			ID:       current.ID.String(),
			Current:  current.Status,
			Expected: input.ExpectedStatus,
			Action:   input.Action,
		}, func(action lifecycle.Action, _ lifecycle.State) error {
			if action == lifecycle.ActionApprove || action == lifecycle.ActionPay {
				return RequireConsistent(current, action)
			}
			return nil
		})
		if err != nil {
			return err
		}
		now := s.now()
		ok, err := tx.CompareAndSetStatus(ctx, current.ID, res.From, res.To, now)
		if err != nil {
			return err
		}
		if !ok {
			return &shared.StaleStateError{Entity: "payroll_record", ID: current.ID.String(), Expected: string(res.From)}
		}
		current.Status = res.To
		current.UpdatedAt = now
		out = current
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	if s.history != nil {
		_ = s.history.RecordTransition(ctx, res.Log(input.ActorID, input.Note, s.now()))
	}
	return out, nil
}

func (s *Service) audit(ctx context.Context, actorID int64, action string, id uuid.UUID, meta map[string]any) {
	if s.history == nil {
		return
	}
	_ = s.history.RecordAudit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payroll_record",
		EntityID: id.String(),
		Meta:     meta,
		At:       s.now(),
	})
}
