package assets

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

const assetKind = "FIXED_ASSET"

// DepreciableBase is purchase cost less salvage value: the most that may
// ever be accumulated.
func DepreciableBase(a FixedAsset) money.Money {
	return a.PurchaseCost.Sub(a.SalvageValue)
}

// MonthlyDepreciation returns round((cost − salvage) / years / 12). Only
// straight-line has a defined formula.
func MonthlyDepreciation(a FixedAsset) (money.Money, error) {
	if a.Method != MethodStraightLine {
		return money.Money{}, &shared.UnsupportedMethodError{Method: string(a.Method)}
	}
	if a.UsefulLifeYears <= 0 {
		return money.Money{}, &shared.DivisionUndefinedError{Quantity: "monthly depreciation"}
	}
	monthly, _ := DepreciableBase(a).Div(decimal.NewFromInt(int64(a.UsefulLifeYears) * 12))
	return monthly.Round(), nil
}

// PeriodStart normalises a date to the first day of its month in UTC.
func PeriodStart(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// PostDepreciation books one month against the asset. The caller passes the
// accumulated amount it read; a mismatch means another posting won. The
// final posting is clamped so accumulated never passes cost − salvage.
func PostDepreciation(a FixedAsset, previousAccumulated money.Money, periodDate time.Time) (FixedAsset, DepreciationRecord, error) {
	id := a.ID.String()
	if a.Status == StatusDisposed {
		return FixedAsset{}, DepreciationRecord{}, &shared.AssetDisposedError{AssetID: id}
	}
	if !previousAccumulated.Equal(a.AccumulatedDepreciation) {
		return FixedAsset{}, DepreciationRecord{}, &shared.StaleStateError{
			Entity:   "fixed_asset",
			ID:       id,
			Expected: "accumulated " + previousAccumulated.String(),
			Actual:   "accumulated " + a.AccumulatedDepreciation.String(),
		}
	}
	monthly, err := MonthlyDepreciation(a)
	if err != nil {
		return FixedAsset{}, DepreciationRecord{}, err
	}
	period := PeriodStart(periodDate)
	if a.LastDepreciatedPeriod != nil && !period.After(PeriodStart(*a.LastDepreciatedPeriod)) {
		return FixedAsset{}, DepreciationRecord{}, &shared.PreconditionFailedError{
			DocumentKind: assetKind,
			Action:       "DEPRECIATE",
			Reason:       "period " + period.Format("2006-01") + " already depreciated",
		}
	}
	remaining := DepreciableBase(a).Sub(a.AccumulatedDepreciation)
	if !remaining.IsPositive() {
		return FixedAsset{}, DepreciationRecord{}, &shared.PreconditionFailedError{
			DocumentKind: assetKind,
			Action:       "DEPRECIATE",
			Reason:       "fully depreciated",
		}
	}

	amount := money.Min(monthly, remaining)
	next := a
	next.AccumulatedDepreciation = a.AccumulatedDepreciation.Add(amount)
	next.CurrentValue = a.PurchaseCost.Sub(next.AccumulatedDepreciation)
	next.LastDepreciatedPeriod = &period
	record := DepreciationRecord{
		AssetID:                 a.ID,
		PeriodDate:              period,
		Amount:                  amount,
		AccumulatedDepreciation: next.AccumulatedDepreciation,
		BookValue:               next.CurrentValue,
	}
	return next, record, nil
}

// Dispose records the disposal and moves the asset to DISPOSED.
// GainLoss = sale price − book value; negative is a loss.
func Dispose(a FixedAsset, salePrice money.Money, date time.Time) (FixedAsset, AssetDisposal, error) {
	if a.Status == StatusDisposed {
		return FixedAsset{}, AssetDisposal{}, &shared.AssetDisposedError{AssetID: a.ID.String()}
	}
	if err := shared.RequireNonNegative("sale_price", salePrice); err != nil {
		return FixedAsset{}, AssetDisposal{}, err
	}
	next := a
	next.Status = StatusDisposed
	disposal := AssetDisposal{
		AssetID:      a.ID,
		DisposalDate: date,
		SalePrice:    salePrice,
		BookValue:    a.CurrentValue,
		GainLoss:     salePrice.Sub(a.CurrentValue),
	}
	return next, disposal, nil
}

// Schedule projects up to months postings from the month after the last
// depreciated period (or from). It stops early once the asset is fully
// depreciated.
func Schedule(a FixedAsset, from time.Time, months int) ([]DepreciationRecord, error) {
	if a.Status == StatusDisposed {
		return nil, &shared.AssetDisposedError{AssetID: a.ID.String()}
	}
	period := PeriodStart(from)
	if a.LastDepreciatedPeriod != nil {
		if next := PeriodStart(*a.LastDepreciatedPeriod).AddDate(0, 1, 0); next.After(period) {
			period = next
		}
	}
	var out []DepreciationRecord
	current := a
	for i := 0; i < months; i++ {
		if !DepreciableBase(current).Sub(current.AccumulatedDepreciation).IsPositive() {
			break
		}
		next, record, err := PostDepreciation(current, current.AccumulatedDepreciation, period)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
		current = next
		period = period.AddDate(0, 1, 0)
	}
	return out, nil
}
