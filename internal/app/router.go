package app

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fincore/internal/assets"
	"github.com/odyssey-erp/fincore/internal/budget"
	"github.com/odyssey-erp/fincore/internal/invoicing"
	"github.com/odyssey-erp/fincore/internal/ledger"
	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/observability"
	"github.com/odyssey-erp/fincore/internal/payroll"
	"github.com/odyssey-erp/fincore/internal/platform/httpx"
	"github.com/odyssey-erp/fincore/internal/shared"
	"github.com/odyssey-erp/fincore/internal/tax"
	"github.com/odyssey-erp/fincore/jobs"
)

// TransitionLister reads the recorded lifecycle history of one document.
type TransitionLister interface {
	ListTransitions(ctx context.Context, kind, ref string) ([]shared.TransitionLog, error)
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Metrics          *observability.Metrics
	History          TransitionLister
	LedgerHandler    *ledger.Handler
	InvoicingHandler *invoicing.Handler
	AssetsHandler    *assets.Handler
	BudgetHandler    *budget.Handler
	PayrollHandler   *payroll.Handler
	TaxHandler       *tax.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with fincore defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.LedgerHandler != nil {
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
	}
	if params.InvoicingHandler != nil {
		r.Route("/invoices", params.InvoicingHandler.MountRoutes)
	}
	if params.AssetsHandler != nil {
		r.Route("/assets", params.AssetsHandler.MountRoutes)
	}
	if params.BudgetHandler != nil {
		r.Route("/budgets", params.BudgetHandler.MountRoutes)
	}
	if params.PayrollHandler != nil {
		r.Route("/payroll", params.PayrollHandler.MountRoutes)
	}
	if params.TaxHandler != nil {
		r.Route("/tax", params.TaxHandler.MountRoutes)
	}
	if params.History != nil {
		r.Get("/history/{kind}/{id}", historyHandler(params.History))
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

type transitionResponse struct {
	Action  string    `json:"action"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	ActorID int64     `json:"actor_id"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

func historyHandler(history TransitionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := lifecycle.Kind(strings.ToUpper(chi.URLParam(r, "kind")))
		if !kind.Known() {
			httpx.RespondError(w, shared.Invalid("history: unknown document kind %q", chi.URLParam(r, "kind")))
			return
		}
		id, err := httpx.UUIDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		logs, err := history.ListTransitions(r.Context(), string(kind), id.String())
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		out := make([]transitionResponse, 0, len(logs))
		for _, l := range logs {
			out = append(out, transitionResponse{Action: l.Action, From: l.From, To: l.To, ActorID: l.ActorID, Note: l.Note, At: l.At})
		}
		httpx.JSON(w, http.StatusOK, out)
	}
}
