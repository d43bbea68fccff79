package invoicing

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// StockLookup maps a product reference to the quantity available at invoice
// time. Products absent from the map have no stock.
type StockLookup map[string]int64

// ComputeLine derives subtotal, tax and total for one line. Tax is exclusive:
// it is added on top of quantity × unit price.
func ComputeLine(in LineInput, available int64) (InvoiceLine, error) {
	ref := strings.TrimSpace(in.ProductRef)
	if ref == "" {
		return InvoiceLine{}, &shared.InvalidLineShapeError{Reason: "product required"}
	}
	if in.Quantity <= 0 {
		return InvoiceLine{}, &shared.InvalidLineShapeError{Reason: fmt.Sprintf("quantity must be positive, got %d", in.Quantity)}
	}
	switch in.TaxMode {
	case "", TaxExclusive:
	default:
		return InvoiceLine{}, &shared.InvalidLineShapeError{Reason: fmt.Sprintf("tax mode %s not supported", in.TaxMode)}
	}
	if err := shared.RequireNonNegative("unit_price", in.UnitPrice); err != nil {
		return InvoiceLine{}, err
	}
	if err := shared.RequireNonNegative("discount", in.Discount); err != nil {
		return InvoiceLine{}, err
	}
	if available < in.Quantity {
		return InvoiceLine{}, &shared.InsufficientStockError{ProductRef: ref, Available: available, Requested: in.Quantity}
	}

	subtotal := in.UnitPrice.MulInt(in.Quantity).Round()
	tax := in.TaxRate.Of(subtotal).Round()
	gross := subtotal.Add(tax)
	if in.Discount.GreaterThan(gross) {
		return InvoiceLine{}, &shared.InvalidAmountError{Field: "discount", Reason: "exceeds line amount"}
	}
	return InvoiceLine{
		ProductRef:  ref,
		Description: strings.TrimSpace(in.Description),
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
		TaxRate:     in.TaxRate,
		Discount:    in.Discount,
		Subtotal:    subtotal,
		TaxAmount:   tax,
		Total:       gross.Sub(in.Discount),
	}, nil
}

// ComputeInvoice derives every line and the invoice aggregates. Stock is
// checked against the cumulative quantity per product across lines.
func ComputeInvoice(in Input, stock StockLookup) (Invoice, error) {
	if strings.TrimSpace(in.CustomerRef) == "" {
		return Invoice{}, ErrCustomerRequired
	}
	if len(in.Lines) == 0 {
		return Invoice{}, ErrNoLines
	}
	if !in.DueDate.IsZero() && in.DueDate.Before(in.IssueDate) {
		return Invoice{}, ErrDueBeforeIssue
	}
	if err := shared.RequireNonNegative("paid_amount", in.PaidAmount); err != nil {
		return Invoice{}, err
	}

	used := make(map[string]int64, len(in.Lines))
	lines := make([]InvoiceLine, 0, len(in.Lines))
	for i, raw := range in.Lines {
		ref := strings.TrimSpace(raw.ProductRef)
		line, err := ComputeLine(raw, stock[ref]-used[ref])
		if err != nil {
			return Invoice{}, numberLine(err, i+1, used[ref], stock[ref])
		}
		used[ref] += line.Quantity
		line.LineNumber = i + 1
		lines = append(lines, line)
	}

	inv := Invoice{
		CustomerRef:   strings.TrimSpace(in.CustomerRef),
		PaymentMethod: in.PaymentMethod,
		IssueDate:     in.IssueDate,
		DueDate:       in.DueDate,
		Lines:         lines,
		PaidAmount:    in.PaidAmount,
	}
	return Recompute(inv), nil
}

// numberLine attaches the line position to shape errors and reports stock
// shortfalls against the whole available quantity.
func numberLine(err error, n int, alreadyUsed, available int64) error {
	switch e := err.(type) {
	case *shared.InvalidLineShapeError:
		e.Line = n
	case *shared.InsufficientStockError:
		e.Available = available
		e.Requested += alreadyUsed
	}
	return err
}

// Recompute rederives the aggregates of inv from its lines and paid amount.
func Recompute(inv Invoice) Invoice {
	out := inv
	out.Lines = append([]InvoiceLine(nil), inv.Lines...)
	out.Subtotal, out.TaxAmount, out.Discount = money.Zero(), money.Zero(), money.Zero()
	for _, line := range out.Lines {
		out.Subtotal = out.Subtotal.Add(line.Subtotal)
		out.TaxAmount = out.TaxAmount.Add(line.TaxAmount)
		out.Discount = out.Discount.Add(line.Discount)
	}
	out.TotalAmount = out.Subtotal.Add(out.TaxAmount).Sub(out.Discount)
	out.RemainingAmount = Remaining(out.TotalAmount, out.PaidAmount)
	out.PaymentStatus = DerivePaymentStatus(out.TotalAmount, out.PaidAmount)
	return out
}

// DerivePaymentStatus classifies paid against total. Nothing paid is UNPAID
// whatever the payment method or total.
func DerivePaymentStatus(total, paid money.Money) PaymentStatus {
	switch {
	case paid.IsZero():
		return PaymentUnpaid
	case paid.GreaterOrEqual(total):
		return PaymentPaid
	default:
		return PaymentPartial
	}
}

// Remaining is total − paid floored at zero.
func Remaining(total, paid money.Money) money.Money {
	return money.Max(total.Sub(paid), money.Zero())
}

// ApplyPayment adds amount to the paid total and rederives the aggregates.
func ApplyPayment(inv Invoice, amount money.Money) (Invoice, error) {
	if !amount.IsPositive() {
		return Invoice{}, &shared.InvalidAmountError{Field: "amount", Reason: "must be positive"}
	}
	if !amount.Equal(amount.Round()) {
		return Invoice{}, &shared.InvalidAmountError{Field: "amount", Reason: "exceeds money scale"}
	}
	inv.PaidAmount = inv.PaidAmount.Add(amount)
	return Recompute(inv), nil
}

// Aging buckets the remaining amount of each open invoice by days past due.
func Aging(invoices []Invoice, asOf time.Time) AgingBucket {
	var bucket AgingBucket
	for _, inv := range invoices {
		if inv.RemainingAmount.IsZero() || inv.Status == lifecycle.StateCancelled {
			continue
		}
		days := int(asOf.Sub(inv.DueDate).Hours() / 24)
		switch {
		case days <= 0:
			bucket.Current = bucket.Current.Add(inv.RemainingAmount)
		case days <= 30:
			bucket.Bucket30 = bucket.Bucket30.Add(inv.RemainingAmount)
		case days <= 60:
			bucket.Bucket60 = bucket.Bucket60.Add(inv.RemainingAmount)
		case days <= 90:
			bucket.Bucket90 = bucket.Bucket90.Add(inv.RemainingAmount)
		default:
			bucket.Bucket120 = bucket.Bucket120.Add(inv.RemainingAmount)
		}
	}
	return bucket
}
