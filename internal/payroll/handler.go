package payroll

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/platform/httpx"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// Handler wires payroll endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for the payroll module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/generate", h.generate)
	r.Get("/", h.listPeriod)
	r.Get("/{id}", h.getRecord)
	r.Post("/{id}/transitions", h.transition)
}

type componentRequest struct {
	Code   string      `json:"code" validate:"required,max=32"`
	Amount money.Money `json:"amount"`
}

type employeeRequest struct {
	EmployeeRef string             `json:"employee_ref" validate:"required,max=64"`
	BasicSalary money.Money        `json:"basic_salary"`
	Allowances  []componentRequest `json:"allowances" validate:"dive"`
	Deductions  []componentRequest `json:"deductions" validate:"dive"`
}

type generateRequest struct {
	Month     int               `json:"month" validate:"required,min=1,max=12"`
	Year      int               `json:"year" validate:"required,min=1900,max=9999"`
	Employees []employeeRequest `json:"employees" validate:"required,min=1,dive"`
}

type transitionRequest struct {
	Action         string `json:"action" validate:"required,oneof=APPROVE PAY CANCEL"`
	ExpectedStatus string `json:"expected_status" validate:"required"`
	Note           string `json:"note" validate:"max=255"`
}

type recordResponse struct {
	ID              string      `json:"id"`
	EmployeeRef     string      `json:"employee_ref"`
	Period          string      `json:"period"`
	BasicSalary     money.Money `json:"basic_salary"`
	Allowances      []Component `json:"allowances"`
	Deductions      []Component `json:"deductions"`
	TotalAllowances money.Money `json:"total_allowances"`
	TotalDeductions money.Money `json:"total_deductions"`
	NetSalary       money.Money `json:"net_salary"`
	Status          string      `json:"status"`
	StatusLabel     string      `json:"status_label"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type resultResponse struct {
	EmployeeRef string               `json:"employee_ref"`
	Outcome     string               `json:"outcome,omitempty"`
	Record      *recordResponse      `json:"record,omitempty"`
	Error       *httpx.ProblemDetail `json:"error,omitempty"`
}

func toComponents(in []componentRequest) []Component {
	out := make([]Component, 0, len(in))
	for _, c := range in {
		out = append(out, Component(c))
	}
	return out
}

func toResponse(r *http.Request, rec Record) recordResponse {
	return recordResponse{
		ID:              rec.ID.String(),
		EmployeeRef:     rec.EmployeeRef,
		Period:          rec.Period.String(),
		BasicSalary:     rec.BasicSalary,
		Allowances:      rec.Allowances,
		Deductions:      rec.Deductions,
		TotalAllowances: rec.TotalAllowances,
		TotalDeductions: rec.TotalDeductions,
		NetSalary:       rec.NetSalary,
		Status:          string(rec.Status),
		StatusLabel:     lifecycle.Label(rec.Status, lifecycle.MatchLanguage(r.Header.Get("Accept-Language"))),
		UpdatedAt:       rec.UpdatedAt,
	}
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := GenerateInput{Period: Period{Month: req.Month, Year: req.Year}, ActorID: actorID}
	for _, e := range req.Employees {
		input.Employees = append(input.Employees, EmployeeInput{
			EmployeeRef: e.EmployeeRef,
			BasicSalary: e.BasicSalary,
			Allowances:  toComponents(e.Allowances),
			Deductions:  toComponents(e.Deductions),
		})
	}
	results, err := h.service.Generate(r.Context(), input)
	if err != nil {
		h.logger.Warn("generate payroll", slog.String("period", input.Period.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]resultResponse, 0, len(results))
	for _, res := range results {
		item := resultResponse{EmployeeRef: res.Record.EmployeeRef}
		if res.Err != nil {
			problem := httpx.ProblemFor(res.Err)
			item.Error = &problem
		} else {
			rec := toResponse(r, res.Record)
			item.Outcome = string(res.Outcome)
			item.Record = &rec
		}
		out = append(out, item)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"period": input.Period.String(), "results": out})
}

func (h *Handler) listPeriod(w http.ResponseWriter, r *http.Request) {
	month, errMonth := strconv.Atoi(r.URL.Query().Get("month"))
	year, errYear := strconv.Atoi(r.URL.Query().Get("year"))
	if errMonth != nil || errYear != nil {
		httpx.RespondError(w, shared.Invalid("payroll: month and year query parameters required"))
		return
	}
	records, err := h.service.ListPeriod(r.Context(), Period{Month: month, Year: year})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toResponse(r, rec))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.GetRecord(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(r, rec))
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
	rec, err := h.service.Transition(r.Context(), TransitionInput{
		RecordID:       id,
		Action:         lifecycle.Action(req.Action),
		ExpectedStatus: expected,
		ActorID:        actorID,
		Note:           req.Note,
	})
	if err != nil {
		h.logger.Info("payroll transition rejected", slog.String("id", id.String()), slog.String("action", req.Action), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(r, rec))
}
