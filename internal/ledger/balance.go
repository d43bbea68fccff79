package ledger

import (
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// Totals sums debit and credit exactly.
func Totals(lines []EntryLine) (debit, credit money.Money) {
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// ValidateShape checks every line independently: positive unique line
// numbers, an account reference, amounts at money scale and exactly one of
// debit or credit set.
func ValidateShape(lines []EntryLine) error {
	seen := make(map[int]struct{}, len(lines))
	for _, line := range lines {
		if line.LineNumber <= 0 {
			return &shared.InvalidLineShapeError{Line: line.LineNumber, Reason: "line number must be positive"}
		}
		if _, dup := seen[line.LineNumber]; dup {
			return &shared.InvalidLineShapeError{Line: line.LineNumber, Reason: "duplicate line number"}
		}
		seen[line.LineNumber] = struct{}{}
		if line.AccountRef == "" {
			return &shared.InvalidLineShapeError{Line: line.LineNumber, Reason: "account required"}
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return &shared.InvalidLineShapeError{Line: line.LineNumber, Reason: "negative amount"}
		}
		if !line.Debit.Equal(line.Debit.Round()) || !line.Credit.Equal(line.Credit.Round()) {
			return &shared.InvalidLineShapeError{Line: line.LineNumber, Reason: "amount exceeds money scale"}
		}
		debitSet, creditSet := !line.Debit.IsZero(), !line.Credit.IsZero()
		if debitSet && creditSet {
			return &shared.InvalidLineShapeError{Line: line.LineNumber, Reason: "cannot be both debit and credit"}
		}
		if !debitSet && !creditSet {
			return &shared.InvalidLineShapeError{Line: line.LineNumber, Reason: "debit or credit required"}
		}
	}
	return nil
}

// ValidateBalance rejects malformed lines and requires Σdebit == Σcredit with
// exact decimal equality.
func ValidateBalance(lines []EntryLine) error {
	if err := ValidateShape(lines); err != nil {
		return err
	}
	debit, credit := Totals(lines)
	if !debit.Equal(credit) {
		return &shared.UnbalancedError{DebitTotal: debit, CreditTotal: credit}
	}
	return nil
}
