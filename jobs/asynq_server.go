package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fincore/internal/assets"
	"github.com/odyssey-erp/fincore/internal/payroll"
	"github.com/odyssey-erp/fincore/internal/platform/httpx"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn("task failed",
				slog.String("type", task.Type()),
				slog.Int("retried", retried),
				slog.Int("max_retry", maxRetry),
				slog.Any("error", err))
		}),
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, fmt.Errorf("jobs: register %s: %w", entry.Task.Type(), err)
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Enqueuer submits tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueInspector reports queue depth. *asynq.Inspector satisfies it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes HTTP endpoints to trigger and observe jobs.
type Handler struct {
	enqueuer  Enqueuer
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(enqueuer Enqueuer, inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{enqueuer: enqueuer, inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/depreciation-run", h.depreciationRun)
	r.Post("/payroll-generate", h.payrollGenerate)
	r.Post("/ledger-integrity", h.ledgerIntegrity)
}

type queueResponse struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Active  int    `json:"active"`
	Retry   int    `json:"retry"`
}

type enqueuedResponse struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type"`
	Queue  string `json:"queue"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := queueResponse{Queue: QueueDefault}
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, resp)
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "queue not reachable")
		return
	}
	if info != nil {
		resp.Queue = info.Queue
		resp.Pending = info.Pending
		resp.Active = info.Active
		resp.Retry = info.Retry
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type depreciationRunRequest struct {
	Period string `json:"period" validate:"omitempty,datetime=2006-01"`
}

func (h *Handler) depreciationRun(w http.ResponseWriter, r *http.Request) {
	var req depreciationRunRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	task, err := assets.NewDepreciationRunTask(req.Period)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.enqueue(w, r, task)
}

func (h *Handler) payrollGenerate(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload payroll.GeneratePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := payload.ToInput()
	if err := input.Period.Validate(); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if len(input.Employees) == 0 {
		httpx.RespondError(w, payroll.ErrNoEmployees)
		return
	}
	payload.ActorID = actorID
	task, err := payroll.NewGenerateTask(payload)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.enqueue(w, r, task)
}

type ledgerIntegrityRequest struct {
	FiscalYear int `json:"fiscal_year" validate:"omitempty,min=1900,max=9999"`
}

func (h *Handler) ledgerIntegrity(w http.ResponseWriter, r *http.Request) {
	var req ledgerIntegrityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	task, err := NewLedgerIntegrityTask(req.FiscalYear)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.enqueue(w, r, task)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, task *asynq.Task) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "job queue not configured")
		return
	}
	info, err := h.enqueuer.EnqueueContext(r.Context(), task, asynq.Queue(QueueDefault))
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
			httpx.RespondError(w, fmt.Errorf("%w: %s already queued", httpx.ErrDuplicate, task.Type()))
			return
		}
		h.logger.Error("enqueue task", slog.String("type", task.Type()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("task enqueued", slog.String("type", task.Type()), slog.String("task_id", info.ID))
	httpx.JSON(w, http.StatusAccepted, enqueuedResponse{TaskID: info.ID, Type: info.Type, Queue: info.Queue})
}
