package invoicing

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/platform/httpx"
)

// IdempotencyHeader lets clients retry create and payment calls safely.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires invoice endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for the invoicing module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createInvoice)
	r.Get("/aging", h.aging)
	r.Get("/{id}", h.getInvoice)
	r.Post("/{id}/payments", h.recordPayment)
	r.Post("/{id}/transitions", h.transition)
}

type lineRequest struct {
	ProductRef  string      `json:"product_ref" validate:"required,max=64"`
	Description string      `json:"description" validate:"max=255"`
	Quantity    int64       `json:"quantity"`
	UnitPrice   money.Money `json:"unit_price"`
	TaxRate     money.Rate  `json:"tax_rate"`
	Discount    money.Money `json:"discount"`
	TaxMode     string      `json:"tax_mode"`
}

type invoiceRequest struct {
	CustomerRef   string        `json:"customer_ref" validate:"required,max=64"`
	PaymentMethod string        `json:"payment_method" validate:"omitempty,oneof=CASH TRANSFER CREDIT CARD"`
	IssueDate     string        `json:"issue_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate       string        `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	PaidAmount    money.Money   `json:"paid_amount"`
	Lines         []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type paymentRequest struct {
	Amount money.Money `json:"amount"`
	Method string      `json:"method" validate:"max=32"`
	PaidAt string      `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
	Note   string      `json:"note" validate:"max=255"`
}

type transitionRequest struct {
	Action         string `json:"action" validate:"required,oneof=APPROVE POST PAY CANCEL"`
	ExpectedStatus string `json:"expected_status" validate:"required"`
	Note           string `json:"note" validate:"max=255"`
}

type lineResponse struct {
	LineNumber  int         `json:"line_number"`
	ProductRef  string      `json:"product_ref"`
	Description string      `json:"description,omitempty"`
	Quantity    int64       `json:"quantity"`
	UnitPrice   money.Money `json:"unit_price"`
	TaxRate     money.Rate  `json:"tax_rate"`
	Discount    money.Money `json:"discount"`
	Subtotal    money.Money `json:"subtotal"`
	TaxAmount   money.Money `json:"tax_amount"`
	Total       money.Money `json:"total"`
}

type invoiceResponse struct {
	ID              string         `json:"id"`
	Number          string         `json:"number"`
	CustomerRef     string         `json:"customer_ref"`
	IssueDate       string         `json:"issue_date"`
	DueDate         string         `json:"due_date"`
	Status          string         `json:"status"`
	StatusLabel     string         `json:"status_label"`
	Subtotal        money.Money    `json:"subtotal"`
	TaxAmount       money.Money    `json:"tax_amount"`
	Discount        money.Money    `json:"discount"`
	TotalAmount     money.Money    `json:"total_amount"`
	PaidAmount      money.Money    `json:"paid_amount"`
	RemainingAmount money.Money    `json:"remaining_amount"`
	PaymentStatus   string         `json:"payment_status"`
	Lines           []lineResponse `json:"lines"`
}

type agingResponse struct {
	AsOf      string      `json:"as_of"`
	Current   money.Money `json:"current"`
	Bucket30  money.Money `json:"bucket_30"`
	Bucket60  money.Money `json:"bucket_60"`
	Bucket90  money.Money `json:"bucket_90"`
	Bucket120 money.Money `json:"bucket_120"`
	Total     money.Money `json:"total"`
}

const dateLayout = "2006-01-02"

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	// Format already checked by the datetime validator.
	t, _ := time.Parse(dateLayout, raw)
	return t
}

func toResponse(r *http.Request, inv Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:              inv.ID.String(),
		Number:          inv.Number,
		CustomerRef:     inv.CustomerRef,
		IssueDate:       inv.IssueDate.Format(dateLayout),
		DueDate:         inv.DueDate.Format(dateLayout),
		Status:          string(inv.Status),
		StatusLabel:     lifecycle.Label(inv.Status, lifecycle.MatchLanguage(r.Header.Get("Accept-Language"))),
		Subtotal:        inv.Subtotal,
		TaxAmount:       inv.TaxAmount,
		Discount:        inv.Discount,
		TotalAmount:     inv.TotalAmount,
		PaidAmount:      inv.PaidAmount,
		RemainingAmount: inv.RemainingAmount,
		PaymentStatus:   string(inv.PaymentStatus),
		Lines:           make([]lineResponse, 0, len(inv.Lines)),
	}
	for _, l := range inv.Lines {
		resp.Lines = append(resp.Lines, lineResponse(l))
	}
	return resp
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, LineInput{
			ProductRef:  l.ProductRef,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TaxRate:     l.TaxRate,
			Discount:    l.Discount,
			TaxMode:     TaxMode(l.TaxMode),
		})
	}
	inv, err := h.service.CreateInvoice(r.Context(), CreateInput{
		Input: Input{
			CustomerRef:   req.CustomerRef,
			PaymentMethod: req.PaymentMethod,
			IssueDate:     parseDate(req.IssueDate),
			DueDate:       parseDate(req.DueDate),
			PaidAmount:    req.PaidAmount,
			Lines:         lines,
		},
		ActorID:        actorID,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.logger.Warn("create invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(r, inv))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(r, inv))
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
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
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.RecordPayment(r.Context(), PaymentInput{
		InvoiceID:      id,
		Amount:         req.Amount,
		Method:         req.Method,
		PaidAt:         parseDate(req.PaidAt),
		Note:           req.Note,
		ActorID:        actorID,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(r, inv))
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
	inv, err := h.service.Transition(r.Context(), TransitionInput{
		InvoiceID:      id,
		Action:         lifecycle.Action(req.Action),
		ExpectedStatus: expected,
		ActorID:        actorID,
		Note:           req.Note,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(r, inv))
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	var asOf time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: as_of must be YYYY-MM-DD", httpx.ErrValidation))
			return
		}
		asOf = t
	}
	bucket, err := h.service.AgingReport(r.Context(), asOf)
	if err != nil {
		h.logger.Error("calculate invoice aging", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	httpx.JSON(w, http.StatusOK, agingResponse{
		AsOf:      asOf.Format(dateLayout),
		Current:   bucket.Current,
		Bucket30:  bucket.Bucket30,
		Bucket60:  bucket.Bucket60,
		Bucket90:  bucket.Bucket90,
		Bucket120: bucket.Bucket120,
		Total:     bucket.Total(),
	})
}
