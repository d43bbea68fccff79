package tax

import (
	"sort"
	"strings"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// NewTransaction derives tax and total from base and rate.
func NewTransaction(in TransactionInput) (Transaction, error) {
	if !in.Direction.Valid() {
		return Transaction{}, &shared.InvalidLineShapeError{Line: in.LineNumber, Reason: "direction must be OUTPUT or INPUT"}
	}
	if err := shared.RequireNonNegative("base_amount", in.BaseAmount); err != nil {
		return Transaction{}, err
	}
	taxAmount := in.Rate.Of(in.BaseAmount).Round()
	return Transaction{
		LineNumber:      in.LineNumber,
		Direction:       in.Direction,
		Reference:       strings.TrimSpace(in.Reference),
		TransactionDate: in.TransactionDate,
		BaseAmount:      in.BaseAmount,
		Rate:            in.Rate,
		TaxAmount:       taxAmount,
		TotalAmount:     in.BaseAmount.Add(taxAmount),
	}, nil
}

// BuildTransactions derives every transaction, ordered by line number.
// Line numbers must be positive and unique.
func BuildTransactions(inputs []TransactionInput) ([]Transaction, error) {
	seen := make(map[int]struct{}, len(inputs))
	out := make([]Transaction, 0, len(inputs))
	for _, in := range inputs {
		if in.LineNumber <= 0 {
			return nil, &shared.InvalidLineShapeError{Line: in.LineNumber, Reason: "line number must be positive"}
		}
		if _, dup := seen[in.LineNumber]; dup {
			return nil, &shared.InvalidLineShapeError{Line: in.LineNumber, Reason: "duplicate line number"}
		}
		seen[in.LineNumber] = struct{}{}
		tx, err := NewTransaction(in)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineNumber < out[j].LineNumber })
	return out, nil
}

// Net sums output and input tax and derives the position. This is the only
// place the sign of a tax position is decided.
func Net(transactions []Transaction) NetResult {
	output := money.Zero()
	input := money.Zero()
	for _, t := range transactions {
		switch t.Direction {
		case DirectionOutput:
			output = output.Add(t.TaxAmount)
		case DirectionInput:
			input = input.Add(t.TaxAmount)
		}
	}
	net := output.Sub(input)
	return NetResult{
		OutputTax: output,
		InputTax:  input,
		NetTax:    net,
		Position:  PositionOf(net),
	}
}

// PositionOf maps a net figure to PAYABLE (≥ 0) or REFUNDABLE.
func PositionOf(net money.Money) Position {
	if net.IsNegative() {
		return PositionRefundable
	}
	return PositionPayable
}

// RequireFileable is the approval precondition: the return carries at
// least one transaction and its stored figures match a fresh netting.
func RequireFileable(r Return, action lifecycle.Action) error {
	if len(r.Transactions) == 0 {
		return &shared.PreconditionFailedError{
			DocumentKind: string(lifecycle.KindTaxReturn),
			Action:       string(action),
			Reason:       "return has no transactions",
		}
	}
	fresh := Net(r.Transactions)
	if !fresh.NetTax.Equal(r.Result.NetTax) || fresh.Position != r.Result.Position {
		return &shared.PreconditionFailedError{
			DocumentKind: string(lifecycle.KindTaxReturn),
			Action:       string(action),
			Reason:       "stored net tax " + r.Result.NetTax.String() + " does not match transactions " + fresh.NetTax.String(),
		}
	}
	return nil
}
