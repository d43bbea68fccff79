package tax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

func txn(line int, dir Direction, base, rate string) TransactionInput {
	return TransactionInput{LineNumber: line, Direction: dir, BaseAmount: money.MustParse(base), Rate: money.MustRate(rate)}
}

func TestNewTransactionDerivesTotals(t *testing.T) {
	tx, err := NewTransaction(txn(1, DirectionOutput, "1000.00", "11"))
	require.NoError(t, err)
	assert.Equal(t, "110.00", tx.TaxAmount.String())
	assert.Equal(t, "1110.00", tx.TotalAmount.String())

	tx, err = NewTransaction(txn(2, DirectionInput, "33.33", "12.5"))
	require.NoError(t, err)
	// 4.16625 rounds half up.
	assert.Equal(t, "4.17", tx.TaxAmount.String())
	assert.True(t, tx.TotalAmount.Equal(tx.BaseAmount.Add(tx.TaxAmount)))
}

func TestNewTransactionRejectsBadInput(t *testing.T) {
	_, err := NewTransaction(txn(1, "SIDEWAYS", "1.00", "10"))
	require.ErrorIs(t, err, shared.ErrInvalidLineShape)

	_, err = NewTransaction(txn(1, DirectionOutput, "-1.00", "10"))
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
}

func TestNetPayable(t *testing.T) {
	txs, err := BuildTransactions([]TransactionInput{
		txn(1, DirectionOutput, "10000.00", "11"),
		txn(2, DirectionInput, "4000.00", "11"),
		txn(3, DirectionInput, "1000.00", "0"),
	})
	require.NoError(t, err)
	res := Net(txs)
	assert.Equal(t, "1100.00", res.OutputTax.String())
	assert.Equal(t, "440.00", res.InputTax.String())
	assert.Equal(t, "660.00", res.NetTax.String())
	assert.Equal(t, PositionPayable, res.Position)
}

func TestNetRefundable(t *testing.T) {
	txs, err := BuildTransactions([]TransactionInput{
		txn(1, DirectionOutput, "1000.00", "11"),
		txn(2, DirectionInput, "5000.00", "11"),
	})
	require.NoError(t, err)
	res := Net(txs)
	assert.Equal(t, "-440.00", res.NetTax.String())
	assert.Equal(t, PositionRefundable, res.Position)
}

func TestNetZeroIsPayable(t *testing.T) {
	res := Net(nil)
	assert.True(t, res.NetTax.IsZero())
	assert.Equal(t, PositionPayable, res.Position)
}

func TestBuildTransactionsOrdersAndRejectsDuplicates(t *testing.T) {
	txs, err := BuildTransactions([]TransactionInput{txn(2, DirectionInput, "1.00", "0"), txn(1, DirectionOutput, "1.00", "0")})
	require.NoError(t, err)
	assert.Equal(t, 1, txs[0].LineNumber)

	_, err = BuildTransactions([]TransactionInput{txn(1, DirectionInput, "1.00", "0"), txn(1, DirectionOutput, "1.00", "0")})
	require.ErrorIs(t, err, shared.ErrInvalidLineShape)
}

func TestRequireFileable(t *testing.T) {
	err := RequireFileable(Return{}, lifecycle.ActionApprove)
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)

	txs, err := BuildTransactions([]TransactionInput{txn(1, DirectionOutput, "100.00", "10")})
	require.NoError(t, err)
	ret := Return{Transactions: txs, Result: Net(txs)}
	require.NoError(t, RequireFileable(ret, lifecycle.ActionApprove))

	ret.Result.NetTax = money.MustParse("1.00")
	require.ErrorIs(t, RequireFileable(ret, lifecycle.ActionPost), shared.ErrPreconditionFailed)
}
