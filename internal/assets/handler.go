package assets

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/platform/httpx"
)

const maxScheduleMonths = 600

// Handler wires fixed asset endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for the assets module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createAsset)
	r.Get("/{id}", h.getAsset)
	r.Get("/{id}/records", h.listRecords)
	r.Get("/{id}/schedule", h.schedule)
	r.Post("/{id}/depreciation", h.postDepreciation)
	r.Post("/{id}/disposal", h.dispose)
}

type createRequest struct {
	Code            string      `json:"code" validate:"required,max=64"`
	Name            string      `json:"name" validate:"required,max=255"`
	PurchaseDate    string      `json:"purchase_date" validate:"required,datetime=2006-01-02"`
	PurchaseCost    money.Money `json:"purchase_cost"`
	SalvageValue    money.Money `json:"salvage_value"`
	UsefulLifeYears int         `json:"useful_life_years" validate:"required,min=1,max=100"`
	Method          string      `json:"method" validate:"required,oneof=STRAIGHT_LINE DECLINING_BALANCE SUM_OF_YEARS"`
}

type depreciationRequest struct {
	PeriodDate          string       `json:"period_date" validate:"required,datetime=2006-01-02"`
	PreviousAccumulated *money.Money `json:"previous_accumulated" validate:"required"`
}

type disposalRequest struct {
	DisposalDate string      `json:"disposal_date" validate:"omitempty,datetime=2006-01-02"`
	SalePrice    money.Money `json:"sale_price"`
}

type assetResponse struct {
	ID                      string      `json:"id"`
	Code                    string      `json:"code"`
	Name                    string      `json:"name"`
	PurchaseDate            string      `json:"purchase_date"`
	PurchaseCost            money.Money `json:"purchase_cost"`
	SalvageValue            money.Money `json:"salvage_value"`
	UsefulLifeYears         int         `json:"useful_life_years"`
	Method                  string      `json:"method"`
	AccumulatedDepreciation money.Money `json:"accumulated_depreciation"`
	CurrentValue            money.Money `json:"current_value"`
	Status                  string      `json:"status"`
	LastDepreciatedPeriod   string      `json:"last_depreciated_period,omitempty"`
}

type recordResponse struct {
	PeriodDate              string      `json:"period_date"`
	Amount                  money.Money `json:"amount"`
	AccumulatedDepreciation money.Money `json:"accumulated_depreciation"`
	BookValue               money.Money `json:"book_value"`
}

type disposalResponse struct {
	Asset        assetResponse `json:"asset"`
	DisposalDate string        `json:"disposal_date"`
	SalePrice    money.Money   `json:"sale_price"`
	BookValue    money.Money   `json:"book_value"`
	GainLoss     money.Money   `json:"gain_loss"`
}

func toAssetResponse(a FixedAsset) assetResponse {
	resp := assetResponse{
		ID:                      a.ID.String(),
		Code:                    a.Code,
		Name:                    a.Name,
		PurchaseDate:            a.PurchaseDate.Format(time.DateOnly),
		PurchaseCost:            a.PurchaseCost,
		SalvageValue:            a.SalvageValue,
		UsefulLifeYears:         a.UsefulLifeYears,
		Method:                  string(a.Method),
		AccumulatedDepreciation: a.AccumulatedDepreciation,
		CurrentValue:            a.CurrentValue,
		Status:                  string(a.Status),
	}
	if a.LastDepreciatedPeriod != nil {
		resp.LastDepreciatedPeriod = a.LastDepreciatedPeriod.Format("2006-01")
	}
	return resp
}

func toRecordResponses(records []DepreciationRecord) []recordResponse {
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordResponse{
			PeriodDate:              rec.PeriodDate.Format(time.DateOnly),
			Amount:                  rec.Amount,
			AccumulatedDepreciation: rec.AccumulatedDepreciation,
			BookValue:               rec.BookValue,
		})
	}
	return out
}

func (h *Handler) createAsset(w http.ResponseWriter, r *http.Request) {
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
	purchased, _ := time.Parse(time.DateOnly, req.PurchaseDate)
	asset, err := h.service.CreateAsset(r.Context(), CreateInput{
		Code:            req.Code,
		Name:            req.Name,
		PurchaseDate:    purchased,
		PurchaseCost:    req.PurchaseCost,
		SalvageValue:    req.SalvageValue,
		UsefulLifeYears: req.UsefulLifeYears,
		Method:          Method(req.Method),
		ActorID:         actorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAssetResponse(asset))
}

func (h *Handler) getAsset(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asset, err := h.service.GetAsset(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(asset))
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	records, err := h.service.ListRecords(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponses(records))
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	months := 12
	if raw := r.URL.Query().Get("months"); raw != "" {
		months, err = strconv.Atoi(raw)
		if err != nil || months <= 0 || months > maxScheduleMonths {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
	}
	records, err := h.service.Schedule(r.Context(), id, months)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponses(records))
}

func (h *Handler) postDepreciation(w http.ResponseWriter, r *http.Request) {
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
	var req depreciationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, _ := time.Parse(time.DateOnly, req.PeriodDate)
	asset, record, err := h.service.PostDepreciation(r.Context(), PostInput{
		AssetID:             id,
		PeriodDate:          period,
		PreviousAccumulated: *req.PreviousAccumulated,
		ActorID:             actorID,
	})
	if err != nil {
		h.logger.Info("depreciation rejected", slog.String("asset", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"asset":  toAssetResponse(asset),
		"record": toRecordResponses([]DepreciationRecord{record})[0],
	})
}

func (h *Handler) dispose(w http.ResponseWriter, r *http.Request) {
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
	var req disposalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var date time.Time
	if req.DisposalDate != "" {
		date, _ = time.Parse(time.DateOnly, req.DisposalDate)
	}
	asset, disposal, err := h.service.Dispose(r.Context(), DisposeInput{
		AssetID:      id,
		DisposalDate: date,
		SalePrice:    req.SalePrice,
		ActorID:      actorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, disposalResponse{
		Asset:        toAssetResponse(asset),
		DisposalDate: disposal.DisposalDate.Format(time.DateOnly),
		SalePrice:    disposal.SalePrice,
		BookValue:    disposal.BookValue,
		GainLoss:     disposal.GainLoss,
	})
}
