package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/fincore/cmd/fincore/cli"
	"github.com/odyssey-erp/fincore/internal/app"
	"github.com/odyssey-erp/fincore/internal/assets"
	"github.com/odyssey-erp/fincore/internal/budget"
	"github.com/odyssey-erp/fincore/internal/invoicing"
	"github.com/odyssey-erp/fincore/internal/ledger"
	"github.com/odyssey-erp/fincore/internal/observability"
	"github.com/odyssey-erp/fincore/internal/payroll"
	"github.com/odyssey-erp/fincore/internal/platform/cache"
	"github.com/odyssey-erp/fincore/internal/platform/db"
	"github.com/odyssey-erp/fincore/internal/shared"
	"github.com/odyssey-erp/fincore/internal/tax"
	"github.com/odyssey-erp/fincore/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobsCommand(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	historyStore := shared.NewHistoryStore(dbpool, logger)
	history := metrics.InstrumentHistory(historyStore)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	locker := shared.NewRedisLocker(redisClient)

	ledgerService := ledger.NewService(ledger.NewRepository(dbpool), history)
	invoicingService := invoicing.NewService(invoicing.NewRepository(dbpool), invoicing.NewStockRepository(dbpool), idempotencyStore, history)
	assetsService := assets.NewService(assets.NewRepository(dbpool), locker, cfg.LockTTL, history, logger)
	budgetService := budget.NewService(budget.NewRepository(dbpool), history)
	payrollService := payroll.NewService(payroll.NewRepository(dbpool), locker, cfg.LockTTL, history, logger)
	taxService := tax.NewService(tax.NewRepository(dbpool), history)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	asynqClient := asynq.NewClient(redisOpts)
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		History:          historyStore,
		LedgerHandler:    ledger.NewHandler(logger, ledgerService),
		InvoicingHandler: invoicing.NewHandler(logger, invoicingService),
		AssetsHandler:    assets.NewHandler(logger, assetsService),
		BudgetHandler:    budget.NewHandler(logger, budgetService),
		PayrollHandler:   payroll.NewHandler(logger, payrollService),
		TaxHandler:       tax.NewHandler(logger, taxService),
		JobHandler:       jobs.NewHandler(asynqClient, inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runJobsCommand handles `fincore jobs trigger <type> [arg]`,
// `fincore jobs stats` and `fincore jobs scheduled`.
func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: fincore jobs trigger <type> [arg] | stats | scheduled")
	}
	helper, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = helper.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("usage: fincore jobs trigger <type> [arg]")
		}
		arg := ""
		if len(args) > 2 {
			arg = args[2]
		}
		info, err := helper.Trigger(ctx, args[1], arg)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := helper.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	case "scheduled":
		tasks, err := helper.ListScheduled(ctx, 20)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Printf("%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
	return nil
}
