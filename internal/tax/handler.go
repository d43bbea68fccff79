package tax

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/platform/httpx"
)

// Handler wires tax endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for the tax module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/net", h.net)
	r.Post("/returns", h.createReturn)
	r.Get("/returns/{id}", h.getReturn)
	r.Put("/returns/{id}/transactions", h.replaceTransactions)
	r.Post("/returns/{id}/transitions", h.transition)
}

type transactionRequest struct {
	LineNumber      int         `json:"line_number" validate:"required,min=1"`
	Direction       string      `json:"direction" validate:"required,oneof=OUTPUT INPUT"`
	Reference       string      `json:"reference" validate:"max=64"`
	TransactionDate string      `json:"transaction_date" validate:"omitempty,datetime=2006-01-02"`
	BaseAmount      money.Money `json:"base_amount"`
	Rate            money.Rate  `json:"rate"`
}

type netRequest struct {
	Transactions []transactionRequest `json:"transactions" validate:"dive"`
}

type returnRequest struct {
	Month        int                  `json:"month" validate:"required,min=1,max=12"`
	Year         int                  `json:"year" validate:"required,min=1900,max=9999"`
	Transactions []transactionRequest `json:"transactions" validate:"dive"`
}

type transitionRequest struct {
	Action         string `json:"action" validate:"required,oneof=APPROVE POST CANCEL"`
	ExpectedStatus string `json:"expected_status" validate:"required"`
	Note           string `json:"note" validate:"max=255"`
}

type transactionResponse struct {
	LineNumber      int         `json:"line_number"`
	Direction       string      `json:"direction"`
	Reference       string      `json:"reference"`
	TransactionDate string      `json:"transaction_date"`
	BaseAmount      money.Money `json:"base_amount"`
	Rate            money.Rate  `json:"rate"`
	TaxAmount       money.Money `json:"tax_amount"`
	TotalAmount     money.Money `json:"total_amount"`
}

type netResponse struct {
	OutputTax    money.Money           `json:"output_tax"`
	InputTax     money.Money           `json:"input_tax"`
	NetTax       money.Money           `json:"net_tax"`
	Position     string                `json:"position"`
	Transactions []transactionResponse `json:"transactions"`
}

type returnResponse struct {
	netResponse
	ID          string    `json:"id"`
	Period      string    `json:"period"`
	Status      string    `json:"status"`
	StatusLabel string    `json:"status_label"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toInputs(in []transactionRequest) []TransactionInput {
	out := make([]TransactionInput, 0, len(in))
	for _, t := range in {
		var date time.Time
		if t.TransactionDate != "" {
			date, _ = time.Parse(time.DateOnly, t.TransactionDate)
		}
		out = append(out, TransactionInput{
			LineNumber:      t.LineNumber,
			Direction:       Direction(t.Direction),
			Reference:       t.Reference,
			TransactionDate: date,
			BaseAmount:      t.BaseAmount,
			Rate:            t.Rate,
		})
	}
	return out
}

func toNetResponse(txs []Transaction, result NetResult) netResponse {
	resp := netResponse{
		OutputTax:    result.OutputTax,
		InputTax:     result.InputTax,
		NetTax:       result.NetTax,
		Position:     string(result.Position),
		Transactions: make([]transactionResponse, 0, len(txs)),
	}
	for _, t := range txs {
		resp.Transactions = append(resp.Transactions, transactionResponse{
			LineNumber:      t.LineNumber,
			Direction:       string(t.Direction),
			Reference:       t.Reference,
			TransactionDate: t.TransactionDate.Format(time.DateOnly),
			BaseAmount:      t.BaseAmount,
			Rate:            t.Rate,
			TaxAmount:       t.TaxAmount,
			TotalAmount:     t.TotalAmount,
		})
	}
	return resp
}

func toReturnResponse(r *http.Request, ret Return) returnResponse {
	return returnResponse{
		netResponse: toNetResponse(ret.Transactions, ret.Result),
		ID:          ret.ID.String(),
		Period:      ret.Period.String(),
		Status:      string(ret.Status),
		StatusLabel: lifecycle.Label(ret.Status, lifecycle.MatchLanguage(r.Header.Get("Accept-Language"))),
		UpdatedAt:   ret.UpdatedAt,
	}
}

func (h *Handler) net(w http.ResponseWriter, r *http.Request) {
	var req netRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	txs, result, err := h.service.Preview(toInputs(req.Transactions))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toNetResponse(txs, result))
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req returnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := h.service.CreateReturn(r.Context(), CreateInput{
		Period:       Period{Month: req.Month, Year: req.Year},
		Transactions: toInputs(req.Transactions),
		ActorID:      actorID,
	})
	if err != nil {
		h.logger.Warn("create tax return", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReturnResponse(r, ret))
}

func (h *Handler) getReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := h.service.GetReturn(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReturnResponse(r, ret))
}

func (h *Handler) replaceTransactions(w http.ResponseWriter, r *http.Request) {
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
	var req netRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := h.service.ReplaceTransactions(r.Context(), id, actorID, toInputs(req.Transactions))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReturnResponse(r, ret))
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
	ret, err := h.service.Transition(r.Context(), TransitionInput{
		ReturnID:       id,
		Action:         lifecycle.Action(req.Action),
		ExpectedStatus: expected,
		ActorID:        actorID,
		Note:           req.Note,
	})
	if err != nil {
		h.logger.Info("tax return transition rejected", slog.String("id", id.String()), slog.String("action", req.Action), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReturnResponse(r, ret))
}
