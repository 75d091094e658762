package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/procurio/procurio/internal/app"
	"github.com/procurio/procurio/internal/identity"
	"github.com/procurio/procurio/internal/masterdata/departments"
	"github.com/procurio/procurio/internal/masterdata/suppliers"
	"github.com/procurio/procurio/internal/platform/cache"
	"github.com/procurio/procurio/internal/platform/db"
	"github.com/procurio/procurio/internal/platform/storage"
	"github.com/procurio/procurio/internal/procurement"
	"github.com/procurio/procurio/internal/shared"
	"github.com/procurio/procurio/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	blobStore, err := storage.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		logger.Error("connect object store", slog.Any("error", err))
		os.Exit(1)
	}

	notifier := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	reviewRecorder := shared.NewReviewRecorder(pool, logger)
	idempotency := shared.NewIdempotencyStore(pool)
	listCache := procurement.NewListCache(redisClient, cfg.ListCacheTTL)

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurementRepo, blobStore, reviewRecorder, auditLogger, idempotency, notifier, listCache)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	supplierHandler := suppliers.NewHandler(logger, suppliers.NewService(suppliers.NewRepository(pool)))
	departmentHandler := departments.NewHandler(logger, departments.NewService(departments.NewRepository(pool)))

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Pool:               pool,
		Auth:               identity.Middleware{Logger: logger},
		ProcurementHandler: procurementHandler,
		SupplierHandler:    supplierHandler,
		DepartmentHandler:  departmentHandler,
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
