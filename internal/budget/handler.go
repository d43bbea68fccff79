package budget

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/platform/httpx"
)

// Handler wires budget endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for the budget module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createBudget)
	r.Get("/{id}", h.getBudget)
	r.Put("/{id}/items", h.replaceItems)
	r.Put("/{id}/actuals", h.recordActuals)
	r.Post("/{id}/transitions", h.transition)
}

type itemRequest struct {
	LineNumber   int         `json:"line_number" validate:"required,min=1"`
	Category     string      `json:"category" validate:"max=64"`
	Description  string      `json:"description" validate:"max=255"`
	BudgetAmount money.Money `json:"budget_amount"`
	ActualAmount money.Money `json:"actual_amount"`
}

type createRequest struct {
	Code             string        `json:"code" validate:"required,max=64"`
	Name             string        `json:"name" validate:"required,max=255"`
	FiscalYear       int           `json:"fiscal_year" validate:"required,min=1900,max=9999"`
	ThresholdAmount  *money.Money  `json:"threshold_amount"`
	ThresholdPercent *money.Rate   `json:"threshold_percent"`
	Items            []itemRequest `json:"items" validate:"dive"`
}

type itemsRequest struct {
	Items []itemRequest `json:"items" validate:"required,dive"`
}

type actualRequest struct {
	LineNumber   int         `json:"line_number" validate:"required,min=1"`
	ActualAmount money.Money `json:"actual_amount"`
}

type actualsRequest struct {
	Actuals []actualRequest `json:"actuals" validate:"required,min=1,dive"`
}

type transitionRequest struct {
	Action         string `json:"action" validate:"required,oneof=APPROVE POST CANCEL"`
	ExpectedStatus string `json:"expected_status" validate:"required"`
	Note           string `json:"note" validate:"max=255"`
}

type itemResponse struct {
	LineNumber         int         `json:"line_number"`
	Category           string      `json:"category"`
	Description        string      `json:"description"`
	BudgetAmount       money.Money `json:"budget_amount"`
	ActualAmount       money.Money `json:"actual_amount"`
	VarianceAmount     money.Money `json:"variance_amount"`
	VariancePercentage Ratio       `json:"variance_percentage"`
	Flagged            bool        `json:"flagged"`
}

type budgetResponse struct {
	ID                      string         `json:"id"`
	Code                    string         `json:"code"`
	Name                    string         `json:"name"`
	FiscalYear              int            `json:"fiscal_year"`
	Status                  string         `json:"status"`
	StatusLabel             string         `json:"status_label"`
	TotalBudget             money.Money    `json:"total_budget"`
	TotalActual             money.Money    `json:"total_actual"`
	TotalVariance           money.Money    `json:"total_variance"`
	TotalVariancePercentage Ratio          `json:"total_variance_percentage"`
	Items                   []itemResponse `json:"items"`
	UpdatedAt               time.Time      `json:"updated_at"`
}

func toItems(in []itemRequest) []ItemInput {
	items := make([]ItemInput, 0, len(in))
	for _, it := range in {
		items = append(items, ItemInput(it))
	}
	return items
}

func toResponse(r *http.Request, b Budget) budgetResponse {
	resp := budgetResponse{
		ID:                      b.ID.String(),
		Code:                    b.Code,
		Name:                    b.Name,
		FiscalYear:              b.FiscalYear,
		Status:                  string(b.Status),
		StatusLabel:             lifecycle.Label(b.Status, lifecycle.MatchLanguage(r.Header.Get("Accept-Language"))),
		TotalBudget:             b.TotalBudget,
		TotalActual:             b.TotalActual,
		TotalVariance:           b.TotalVariance,
		TotalVariancePercentage: b.TotalVariancePercentage(),
		Items:                   make([]itemResponse, 0, len(b.Items)),
		UpdatedAt:               b.UpdatedAt,
	}
	for _, it := range b.Items {
		resp.Items = append(resp.Items, itemResponse(it))
	}
	return resp
}

func (h *Handler) createBudget(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.CreateBudget(r.Context(), CreateInput{
		Code:       req.Code,
		Name:       req.Name,
		FiscalYear: req.FiscalYear,
		Threshold:  Threshold{Amount: req.ThresholdAmount, Percent: req.ThresholdPercent},
		Items:      toItems(req.Items),
		ActorID:    actorID,
	})
	if err != nil {
		h.logger.Warn("create budget", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(r, b))
}

func (h *Handler) getBudget(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.GetBudget(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(r, b))
}

func (h *Handler) replaceItems(w http.ResponseWriter, r *http.Request) {
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
	var req itemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.ReplaceItems(r.Context(), id, actorID, toItems(req.Items))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(r, b))
}

func (h *Handler) recordActuals(w http.ResponseWriter, r *http.Request) {
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
	var req actualsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actuals := make([]ActualInput, 0, len(req.Actuals))
	for _, a := range req.Actuals {
		actuals = append(actuals, ActualInput(a))
	}
	b, err := h.service.RecordActuals(r.Context(), id, actorID, actuals)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(r, b))
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
	b, err := h.service.Transition(r.Context(), TransitionInput{
		BudgetID:       id,
		Action:         lifecycle.Action(req.Action),
		ExpectedStatus: expected,
		ActorID:        actorID,
		Note:           req.Note,
	})
	if err != nil {
		h.logger.Info("budget transition rejected", slog.String("id", id.String()), slog.String("action", req.Action), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(r, b))
}
