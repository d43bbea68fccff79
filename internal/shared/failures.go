package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/platform/db"
)

// Kind classifies a core failure so callers can decide between retrying,
// surfacing to the user, or aborting.
type Kind string

const (
	KindUnbalanced         Kind = "UNBALANCED"
	KindInvalidLineShape   Kind = "INVALID_LINE_SHAPE"
	KindInsufficientStock  Kind = "INSUFFICIENT_STOCK"
	KindIllegalTransition  Kind = "ILLEGAL_TRANSITION"
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"
	KindStaleState         Kind = "STALE_STATE"
	KindAssetDisposed      Kind = "ASSET_DISPOSED"
	KindDivisionUndefined  Kind = "DIVISION_UNDEFINED"
	KindUnsupportedMethod  Kind = "UNSUPPORTED_METHOD"
	KindInvalidAmount      Kind = "INVALID_AMOUNT"
)

type sentinel struct {
	kind Kind
}

func (s *sentinel) Error() string {
	return "fincore: " + strings.ToLower(strings.ReplaceAll(string(s.kind), "_", " "))
}

// Sentinels for errors.Is matching against the typed failures below.
var (
	ErrUnbalanced         error = &sentinel{KindUnbalanced}
	ErrInvalidLineShape   error = &sentinel{KindInvalidLineShape}
	ErrInsufficientStock  error = &sentinel{KindInsufficientStock}
	ErrIllegalTransition  error = &sentinel{KindIllegalTransition}
	ErrPreconditionFailed error = &sentinel{KindPreconditionFailed}
	ErrStaleState         error = &sentinel{KindStaleState}
	ErrAssetDisposed      error = &sentinel{KindAssetDisposed}
	ErrDivisionUndefined  error = &sentinel{KindDivisionUndefined}
	ErrUnsupportedMethod  error = &sentinel{KindUnsupportedMethod}
	ErrInvalidAmount      error = &sentinel{KindInvalidAmount}
)

func matches(kind Kind, target error) bool {
	s, ok := target.(*sentinel)
	return ok && s.kind == kind
}

// UnbalancedError reports ledger lines whose debit and credit totals differ.
type UnbalancedError struct {
	DebitTotal  money.Money
	CreditTotal money.Money
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("ledger: lines unbalanced (debit %s, credit %s)", e.DebitTotal, e.CreditTotal)
}
func (e *UnbalancedError) Kind() Kind           { return KindUnbalanced }
func (e *UnbalancedError) Is(target error) bool { return matches(KindUnbalanced, target) }

// InvalidLineShapeError reports a structurally invalid line: both or neither
// of debit/credit set, a negative amount, or a non-positive quantity.
type InvalidLineShapeError struct {
	Line   int
	Reason string
}

func (e *InvalidLineShapeError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}
func (e *InvalidLineShapeError) Kind() Kind           { return KindInvalidLineShape }
func (e *InvalidLineShapeError) Is(target error) bool { return matches(KindInvalidLineShape, target) }

// InsufficientStockError reports a quantity above the caller-supplied stock.
type InsufficientStockError struct {
	ProductRef string
	Available  int64
	Requested  int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("invoicing: insufficient stock for %s (available %d, requested %d)", e.ProductRef, e.Available, e.Requested)
}
func (e *InsufficientStockError) Kind() Kind           { return KindInsufficientStock }
func (e *InsufficientStockError) Is(target error) bool { return matches(KindInsufficientStock, target) }

// IllegalTransitionError reports an action not reachable from the current state.
type IllegalTransitionError struct {
	DocumentKind string
	From         string
	Action       string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("lifecycle: %s cannot %s from %s", strings.ToLower(e.DocumentKind), strings.ToLower(e.Action), e.From)
}
func (e *IllegalTransitionError) Kind() Kind           { return KindIllegalTransition }
func (e *IllegalTransitionError) Is(target error) bool { return matches(KindIllegalTransition, target) }

// PreconditionFailedError reports a kind-specific business rule that blocked
// a transition. Err carries the underlying failure when there is one.
type PreconditionFailedError struct {
	DocumentKind string
	Action       string
	Reason       string
	Err          error
}

func (e *PreconditionFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lifecycle: %s %s precondition failed: %s: %v", strings.ToLower(e.DocumentKind), strings.ToLower(e.Action), e.Reason, e.Err)
	}
	return fmt.Sprintf("lifecycle: %s %s precondition failed: %s", strings.ToLower(e.DocumentKind), strings.ToLower(e.Action), e.Reason)
}
func (e *PreconditionFailedError) Kind() Kind           { return KindPreconditionFailed }
func (e *PreconditionFailedError) Is(target error) bool { return matches(KindPreconditionFailed, target) }
func (e *PreconditionFailedError) Unwrap() error        { return e.Err }

// StaleStateError reports that the persisted state moved on since the caller
// read its snapshot. Callers may re-read and retry.
type StaleStateError struct {
	Entity   string
	ID       string
	Expected string
	Actual   string
	Err      error
}

func (e *StaleStateError) Error() string {
	if e.ID == "" && e.Err != nil {
		return fmt.Sprintf("%s: concurrent update: %v", e.Entity, e.Err)
	}
	if e.Actual == "" {
		return fmt.Sprintf("%s %s: state changed since %s was read", e.Entity, e.ID, e.Expected)
	}
	return fmt.Sprintf("%s %s: expected %s, found %s", e.Entity, e.ID, e.Expected, e.Actual)
}
func (e *StaleStateError) Kind() Kind           { return KindStaleState }
func (e *StaleStateError) Is(target error) bool { return matches(KindStaleState, target) }
func (e *StaleStateError) Unwrap() error        { return e.Err }

// StaleOnConflict converts a lost repeatable-read write race (SQLSTATE 40001)
// into a StaleStateError for entity. Other errors pass through unchanged.
func StaleOnConflict(err error, entity string) error {
	if err == nil || !db.IsSerializationFailure(err) {
		return err
	}
	var stale *StaleStateError
	if errors.As(err, &stale) {
		return err
	}
	return &StaleStateError{Entity: entity, Expected: "snapshot", Err: err}
}

// AssetDisposedError reports an operation against a disposed asset.
type AssetDisposedError struct {
	AssetID string
}

func (e *AssetDisposedError) Error() string {
	return fmt.Sprintf("assets: asset %s is disposed", e.AssetID)
}
func (e *AssetDisposedError) Kind() Kind           { return KindAssetDisposed }
func (e *AssetDisposedError) Is(target error) bool { return matches(KindAssetDisposed, target) }

// DivisionUndefinedError reports a ratio whose denominator is zero.
type DivisionUndefinedError struct {
	Quantity string
}

func (e *DivisionUndefinedError) Error() string {
	return fmt.Sprintf("%s undefined: zero denominator", e.Quantity)
}
func (e *DivisionUndefinedError) Kind() Kind           { return KindDivisionUndefined }
func (e *DivisionUndefinedError) Is(target error) bool { return matches(KindDivisionUndefined, target) }

// UnsupportedMethodError reports a depreciation method without a defined formula.
type UnsupportedMethodError struct {
	Method string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("assets: depreciation method %s not supported", e.Method)
}
func (e *UnsupportedMethodError) Kind() Kind           { return KindUnsupportedMethod }
func (e *UnsupportedMethodError) Is(target error) bool { return matches(KindUnsupportedMethod, target) }

// InvalidAmountError reports a malformed or out-of-range monetary input.
type InvalidAmountError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InvalidAmountError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
func (e *InvalidAmountError) Kind() Kind           { return KindInvalidAmount }
func (e *InvalidAmountError) Is(target error) bool { return matches(KindInvalidAmount, target) }
func (e *InvalidAmountError) Unwrap() error        { return e.Err }

type kinded interface {
	Kind() Kind
}

// KindOf returns the taxonomy kind carried by err, or "" for errors outside it.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	var perr *money.ParseError
	if errors.As(err, &perr) {
		return KindInvalidAmount
	}
	if db.IsSerializationFailure(err) {
		return KindStaleState
	}
	return ""
}

// Retryable reports whether the caller may re-read state and try again.
func Retryable(err error) bool {
	return KindOf(err) == KindStaleState
}

// RequireNonNegative fails with InvalidAmountError when m is below zero.
func RequireNonNegative(field string, m money.Money) error {
	if m.IsNegative() {
		return &InvalidAmountError{Field: field, Reason: "must not be negative"}
	}
	return nil
}
