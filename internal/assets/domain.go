package assets

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// Method selects a depreciation formula.
type Method string

const (
	MethodStraightLine     Method = "STRAIGHT_LINE"
	MethodDecliningBalance Method = "DECLINING_BALANCE"
	MethodSumOfYears       Method = "SUM_OF_YEARS"
)

// Valid reports whether m is a known method, computable or not.
func (m Method) Valid() bool {
	switch m {
	case MethodStraightLine, MethodDecliningBalance, MethodSumOfYears:
		return true
	}
	return false
}

// Status enumerates asset states. DISPOSED is terminal.
type Status string

const (
	StatusActive           Status = "ACTIVE"
	StatusUnderMaintenance Status = "UNDER_MAINTENANCE"
	StatusDisposed         Status = "DISPOSED"
)

// FixedAsset is a depreciable asset snapshot.
type FixedAsset struct {
	ID                      uuid.UUID
	Code                    string
	Name                    string
	PurchaseDate            time.Time
	PurchaseCost            money.Money
	SalvageValue            money.Money
	UsefulLifeYears         int
	Method                  Method
	AccumulatedDepreciation money.Money
	CurrentValue            money.Money
	Status                  Status
	LastDepreciatedPeriod   *time.Time
	CreatedBy               int64
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// DepreciationRecord is an append-only posting with snapshots taken after it.
type DepreciationRecord struct {
	ID                      uuid.UUID
	AssetID                 uuid.UUID
	PeriodDate              time.Time
	Amount                  money.Money
	AccumulatedDepreciation money.Money
	BookValue               money.Money
	CreatedBy               int64
	CreatedAt               time.Time
}

// AssetDisposal records the sale or write-off of an asset.
type AssetDisposal struct {
	ID           uuid.UUID
	AssetID      uuid.UUID
	DisposalDate time.Time
	SalePrice    money.Money
	BookValue    money.Money
	GainLoss     money.Money
	CreatedBy    int64
	CreatedAt    time.Time
}

// CreateInput registers a new asset.
type CreateInput struct {
	Code            string
	Name            string
	PurchaseDate    time.Time
	PurchaseCost    money.Money
	SalvageValue    money.Money
	UsefulLifeYears int
	Method          Method
	ActorID         int64
}

// PostInput requests one month of depreciation. PreviousAccumulated is the
// snapshot the caller read; the posting fails if the asset moved since.
type PostInput struct {
	AssetID             uuid.UUID
	PeriodDate          time.Time
	PreviousAccumulated money.Money
	ActorID             int64
}

// DisposeInput requests disposal of an asset.
type DisposeInput struct {
	AssetID      uuid.UUID
	DisposalDate time.Time
	SalePrice    money.Money
	ActorID      int64
}

var (
	// ErrAssetNotFound indicates missing asset.
	ErrAssetNotFound = fmt.Errorf("assets: asset %w", shared.ErrNotFound)
	// ErrCodeRequired indicates a missing asset code.
	ErrCodeRequired = shared.Invalid("assets: code required")
	// ErrUsefulLife indicates a non-positive useful life.
	ErrUsefulLife = shared.Invalid("assets: useful life must be at least one year")
	// ErrUnknownMethod indicates a method outside the known set.
	ErrUnknownMethod = shared.Invalid("assets: unknown depreciation method")
)

// Validate checks the registration input.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return ErrCodeRequired
	}
	if in.UsefulLifeYears <= 0 {
		return ErrUsefulLife
	}
	if !in.Method.Valid() {
		return ErrUnknownMethod
	}
	if !in.PurchaseCost.IsPositive() {
		return &shared.InvalidAmountError{Field: "purchase_cost", Reason: "must be positive"}
	}
	if err := shared.RequireNonNegative("salvage_value", in.SalvageValue); err != nil {
		return err
	}
	if in.SalvageValue.GreaterThan(in.PurchaseCost) {
		return &shared.InvalidAmountError{Field: "salvage_value", Reason: "exceeds purchase cost"}
	}
	return nil
}

// NewAsset builds an ACTIVE asset with nothing depreciated yet.
func NewAsset(in CreateInput) (FixedAsset, error) {
	if err := in.Validate(); err != nil {
		return FixedAsset{}, err
	}
	return FixedAsset{
		Code:                    strings.TrimSpace(in.Code),
		Name:                    strings.TrimSpace(in.Name),
		PurchaseDate:            in.PurchaseDate,
		PurchaseCost:            in.PurchaseCost,
		SalvageValue:            in.SalvageValue,
		UsefulLifeYears:         in.UsefulLifeYears,
		Method:                  in.Method,
		AccumulatedDepreciation: money.Zero(),
		CurrentValue:            in.PurchaseCost,
		Status:                  StatusActive,
		CreatedBy:               in.ActorID,
	}, nil
}
