package ledger

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/platform/httpx"
)

// Handler wires journal entry endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/entries", h.createEntry)
	r.Get("/entries/{id}", h.getEntry)
	r.Put("/entries/{id}/lines", h.replaceLines)
	r.Post("/entries/{id}/transitions", h.transition)
	r.Post("/entries/{id}/reverse", h.reverse)
}

type lineRequest struct {
	LineNumber  int         `json:"line_number" validate:"required,min=1"`
	AccountRef  string      `json:"account_ref" validate:"required,max=64"`
	Debit       money.Money `json:"debit"`
	Credit      money.Money `json:"credit"`
	Description string      `json:"description" validate:"max=255"`
}

type entryRequest struct {
	FiscalYear int           `json:"fiscal_year" validate:"required,min=1900,max=9999"`
	Type       string        `json:"type" validate:"required,oneof=OPENING CLOSING ADJUSTING RESULT"`
	Memo       string        `json:"memo" validate:"max=500"`
	Lines      []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type linesRequest struct {
	Lines []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type transitionRequest struct {
	Action         string `json:"action" validate:"required,oneof=APPROVE POST PAY CANCEL"`
	ExpectedStatus string `json:"expected_status" validate:"required"`
	Note           string `json:"note" validate:"max=255"`
}

type reverseRequest struct {
	Memo string `json:"memo" validate:"max=500"`
}

type entryResponse struct {
	ID          string        `json:"id"`
	FiscalYear  int           `json:"fiscal_year"`
	Type        string        `json:"type"`
	Memo        string        `json:"memo"`
	Status      string        `json:"status"`
	StatusLabel string        `json:"status_label"`
	ReversalOf  string        `json:"reversal_of,omitempty"`
	DebitTotal  money.Money   `json:"debit_total"`
	CreditTotal money.Money   `json:"credit_total"`
	Lines       []lineRequest `json:"lines"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func toLines(in []lineRequest) []EntryLine {
	lines := make([]EntryLine, 0, len(in))
	for _, l := range in {
		lines = append(lines, EntryLine(l))
	}
	return lines
}

func toResponse(r *http.Request, e JournalEntry) entryResponse {
	debit, credit := Totals(e.Lines)
	resp := entryResponse{
		ID:          e.ID.String(),
		FiscalYear:  e.FiscalYear,
		Type:        string(e.Type),
		Memo:        e.Memo,
		Status:      string(e.Status),
		StatusLabel: lifecycle.Label(e.Status, lifecycle.MatchLanguage(r.Header.Get("Accept-Language"))),
		DebitTotal:  debit,
		CreditTotal: credit,
		Lines:       make([]lineRequest, 0, len(e.Lines)),
		UpdatedAt:   e.UpdatedAt,
	}
	if e.ReversalOf != nil {
		resp.ReversalOf = e.ReversalOf.String()
	}
	for _, l := range e.Lines {
		resp.Lines = append(resp.Lines, lineRequest(l))
	}
	return resp
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.CreateEntry(r.Context(), EntryInput{
		FiscalYear: req.FiscalYear,
		Type:       EntryType(req.Type),
		Memo:       req.Memo,
		ActorID:    actorID,
		Lines:      toLines(req.Lines),
	})
	if err != nil {
		h.logger.Warn("create journal entry", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(r, entry))
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(r, entry))
}

func (h *Handler) replaceLines(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req linesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.ReplaceLines(r.Context(), id, actorID, toLines(req.Lines))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(r, entry))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	expected, err := lifecycle.ParseState(req.ExpectedStatus)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Transition(r.Context(), TransitionInput{
		EntryID:        id,
		Action:         lifecycle.Action(req.Action),
		ExpectedStatus: expected,
		ActorID:        actorID,
		Note:           req.Note,
	})
	if err != nil {
		h.logger.Info("journal entry transition rejected", slog.String("id", id.String()), slog.String("action", req.Action), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(r, entry))
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.ReverseEntry(r.Context(), ReverseInput{EntryID: id, ActorID: actorID, Memo: req.Memo})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(r, entry))
}
