package invoicing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

const (
	idempotencyModuleCreate  = "invoicing.create"
	idempotencyModulePayment = "invoicing.payment"
)

// StockPort reports quantities available for sale.
type StockPort interface {
	Available(ctx context.Context, productRefs []string) (map[string]int64, error)
}

// IdempotencyPort claims request keys so retries do not create duplicates.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	ListOpenInvoices(ctx context.Context) ([]Invoice, error)
}

// TxRepository exposes operations executed inside one transaction.
type TxRepository interface {
	NextNumber(ctx context.Context, year int) (string, error)
	InsertInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	// UpdatePaid stores the derived payment fields only if the paid amount
	// is still previousPaid.
	UpdatePaid(ctx context.Context, inv Invoice, previousPaid money.Money) (bool, error)
	InsertPayment(ctx context.Context, p Payment) error
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to lifecycle.State, at time.Time) (bool, error)
}

// Service coordinates invoice creation, payments and approvals.
type Service struct {
	repo        RepositoryPort
	stock       StockPort
	idempotency IdempotencyPort
	history     shared.HistoryPort
	now         func() time.Time
	newID       func() uuid.UUID
}

// NewService constructs the invoicing service.
func NewService(repo RepositoryPort, stock StockPort, idempotency IdempotencyPort, history shared.HistoryPort) *Service {
	return &Service{
		repo:        repo,
		stock:       stock,
		idempotency: idempotency,
		history:     history,
		now:         time.Now,
		newID:       uuid.New,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInvoice reads stock, derives the invoice and stores it as DRAFT.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInput) (inv Invoice, err error) {
	if input.ActorID == 0 {
		return Invoice{}, errors.New("invoicing: actor required")
	}
	release, err := s.claim(ctx, input.IdempotencyKey, idempotencyModuleCreate)
	if err != nil {
		return Invoice{}, err
	}
	defer func() { release(err) }()

	stock, err := s.stockFor(ctx, input.Lines)
	if err != nil {
		return Invoice{}, err
	}
	if input.IssueDate.IsZero() {
		input.IssueDate = s.now()
	}
	if input.DueDate.IsZero() {
		input.DueDate = input.IssueDate.AddDate(0, 0, 30)
	}
	inv, err = ComputeInvoice(input.Input, stock)
	if err != nil {
		return Invoice{}, err
	}
	now := s.now()
	inv.ID = s.newID()
	inv.Status = lifecycle.StateDraft
	inv.CreatedBy = input.ActorID
	inv.CreatedAt = now
	inv.UpdatedAt = now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, inv.IssueDate.Year())
		if err != nil {
			return err
		}
		inv.Number = number
		if err := tx.InsertInvoice(ctx, inv); err != nil {
			return err
		}
		if inv.PaidAmount.IsPositive() {
			return tx.InsertPayment(ctx, Payment{
				ID:        s.newID(),
				InvoiceID: inv.ID,
				Amount:    inv.PaidAmount,
				Method:    inv.PaymentMethod,
				PaidAt:    inv.IssueDate,
				Note:      "paid at issue",
				CreatedBy: input.ActorID,
			})
		}
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.audit(ctx, input.ActorID, "invoicing.invoice.create", inv.ID, map[string]any{
		"number": inv.Number,
		"total":  inv.TotalAmount.String(),
	})
	return inv, nil
}

// RecordPayment applies a payment and rederives the payment status.
func (s *Service) RecordPayment(ctx context.Context, input PaymentInput) (inv Invoice, err error) {
	if input.InvoiceID == uuid.Nil {
		return Invoice{}, errors.New("invoicing: invoice id required")
	}
	release, err := s.claim(ctx, input.IdempotencyKey, idempotencyModulePayment)
	if err != nil {
		return Invoice{}, err
	}
	defer func() { release(err) }()

	if input.PaidAt.IsZero() {
		input.PaidAt = s.now()
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoice(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if current.Status == lifecycle.StateCancelled {
			return &shared.IllegalTransitionError{
				DocumentKind: string(lifecycle.KindDocument),
				From:         string(current.Status),
				Action:       "RECORD_PAYMENT",
			}
		}
		updated, err := ApplyPayment(current, input.Amount)
		if err != nil {
			return err
		}
		updated.UpdatedAt = s.now()
		ok, err := tx.UpdatePaid(ctx, updated, current.PaidAmount)
		if err != nil {
			return err
		}
		if !ok {
			return &shared.StaleStateError{Entity: "invoice", ID: current.ID.String(), Expected: "paid " + current.PaidAmount.String()}
		}
		inv = updated
		return tx.InsertPayment(ctx, Payment{
			ID:        s.newID(),
			InvoiceID: current.ID,
			Amount:    input.Amount,
			Method:    strings.TrimSpace(input.Method),
			PaidAt:    input.PaidAt,
			Note:      input.Note,
			CreatedBy: input.ActorID,
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	s.audit(ctx, input.ActorID, "invoicing.payment.record", inv.ID, map[string]any{
		"amount":         input.Amount.String(),
		"payment_status": string(inv.PaymentStatus),
	})
	return inv, nil
}

// Transition applies a DOCUMENT lifecycle action. An invoice with payments
// cannot be cancelled.
func (s *Service) Transition(ctx context.Context, input TransitionInput) (Invoice, error) {
	var (
		inv Invoice
		res lifecycle.Result
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoice(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		res, err = lifecycle.Apply(lifecycle.Request{
			Kind:     lifecycle.KindDocument,
			ID:       current.ID.String(),
			Current:  current.Status,
			Expected: input.ExpectedStatus,
			Action:   input.Action,
		}, lifecycle.Guard(func() error {
			if !current.PaidAmount.IsZero() {
				return &shared.PreconditionFailedError{
					DocumentKind: string(lifecycle.KindDocument),
					Action:       string(lifecycle.ActionCancel),
					Reason:       "invoice has payments",
				}
			}
			return nil
		}, lifecycle.ActionCancel))
		if err != nil {
			return err
		}
		now := s.now()
		ok, err := tx.CompareAndSetStatus(ctx, current.ID, res.From, res.To, now)
		if err != nil {
			return err
		}
		if !ok {
			return &shared.StaleStateError{Entity: "invoice", ID: current.ID.String(), Expected: string(res.From)}
		}
		current.Status = res.To
		current.UpdatedAt = now
		inv = current
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	if s.history != nil {
		_ = s.history.RecordTransition(ctx, res.Log(input.ActorID, input.Note, s.now()))
	}
	return inv, nil
}

// GetInvoice returns an invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// AgingReport buckets open invoices as of asOf.
func (s *Service) AgingReport(ctx context.Context, asOf time.Time) (AgingBucket, error) {
	invoices, err := s.repo.ListOpenInvoices(ctx)
	if err != nil {
		return AgingBucket{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	return Aging(invoices, asOf), nil
}

func (s *Service) stockFor(ctx context.Context, lines []LineInput) (StockLookup, error) {
	refs := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		ref := strings.TrimSpace(l.ProductRef)
		if _, ok := seen[ref]; ok || ref == "" {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	if s.stock == nil || len(refs) == 0 {
		return StockLookup{}, nil
	}
	levels, err := s.stock.Available(ctx, refs)
	if err != nil {
		return nil, err
	}
	return StockLookup(levels), nil
}

// claim takes the idempotency key if one was supplied. The returned func
// frees the key again when the operation failed so the client may retry.
func (s *Service) claim(ctx context.Context, key, module string) (func(error), error) {
	key = strings.TrimSpace(key)
	if key == "" || s.idempotency == nil {
		return func(error) {}, nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, module); err != nil {
		return nil, err
	}
	return func(opErr error) {
		if opErr != nil {
			_ = s.idempotency.Delete(ctx, key, module)
		}
	}, nil
}

func (s *Service) audit(ctx context.Context, actorID int64, action string, id uuid.UUID, meta map[string]any) {
	if s.history == nil {
		return
	}
	_ = s.history.RecordAudit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "invoice",
		EntityID: id.String(),
		Meta:     meta,
		At:       s.now(),
	})
}
