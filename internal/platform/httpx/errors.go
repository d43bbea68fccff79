// Package httpx provides HTTP response utilities.
package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/fincore/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

const problemBase = "https://fincore.odyssey-erp.dev/problems/"

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	p := ProblemFor(err)
	if p.Status == http.StatusInternalServerError {
		slog.Error("unhandled request error", slog.Any("error", err))
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// ProblemFor builds the problem document for err without writing it.
// Internal errors carry no detail.
func ProblemFor(err error) ProblemDetail {
	if kind := shared.KindOf(err); kind != "" {
		status := statusForKind(kind)
		return ProblemDetail{
			Type:      problemBase + string(kind),
			Title:     http.StatusText(status),
			Status:    status,
			Detail:    err.Error(),
			Kind:      string(kind),
			Retryable: shared.Retryable(err),
		}
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return problem(http.StatusBadRequest, "Validation Failed", verrs.Error())
	case errors.Is(err, shared.ErrNotFound):
		return problem(http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrLockHeld):
		p := problem(http.StatusConflict, "Busy", err.Error())
		p.Retryable = true
		return p
	case errors.Is(err, ErrDuplicate), errors.Is(err, shared.ErrIdempotencyConflict):
		return problem(http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrConflict):
		return problem(http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, shared.ErrInvalidInput):
		return problem(http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnauthorized):
		return problem(http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		return problem(http.StatusInternalServerError, "Internal Error", "")
	}
}

func problem(status int, title, detail string) ProblemDetail {
	return ProblemDetail{Title: title, Status: status, Detail: detail}
}

func statusForKind(kind shared.Kind) int {
	switch kind {
	case shared.KindIllegalTransition, shared.KindPreconditionFailed, shared.KindAssetDisposed, shared.KindStaleState:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}
